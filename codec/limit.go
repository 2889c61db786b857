package codec

import "fmt"

// Limit wraps another codec to reject oversized payloads. Encode fails
// when the produced record exceeds MaxEncode; Decode fails before invoking
// Inner when the incoming payload exceeds MaxDecode. A non-positive bound
// disables that side's check.
//
// Typical use: keep one tenant from parking multi-megabyte blobs in a
// shared store.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{Inner: JSON[struct{}]{}}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("codec: encoded record too large: %d > %d", len(b), c.MaxEncode)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
