package embeddings

// Vector is an embedding. Its length is D for every successful call.
type Vector []float32

// Empty is the zero-length sentinel returned by a failed embedding.
var Empty = Vector{}

// IsEmpty reports whether v carries no values.
func (v Vector) IsEmpty() bool {
	return len(v) == 0
}
