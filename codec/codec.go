// Package codec provides pluggable (de)serialization for stored records.
//
// tenantcache stores each cache entry as one envelope record; the envelope
// encoding is selected at construction time. JSON is the default and
// matches the documented persisted layout; Msgpack and CBOR trade
// readability for size. All codecs must round-trip exactly for the
// supported payload shapes (scalars, nested maps and sequences).
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
