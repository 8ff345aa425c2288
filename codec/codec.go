// Package codec defines the value serializers used by tiercache for
// compaction and for the persistent tiers. The encoded length also feeds
// the default size estimator, so a more compact codec shifts eviction
// accounting accordingly.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
