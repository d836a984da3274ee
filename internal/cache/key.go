package cache

// Key is the contract a StreamedCache key type must satisfy: a fixed-width
// value type with a total order, equality, serialization, and a display
// form.
type Key interface {
	Less(other Key) bool
	Equal(other Key) bool

	// Bytes returns the key's fixed-width serialized form. Every key of a
	// given concrete type must return the same length.
	Bytes() []byte

	String() string
}

// KeyCodec reconstructs a concrete Key type from its fixed-width bytes and
// reports that fixed width, supplied once at cache construction since Go
// generics cannot invoke a constructor on a bare type parameter.
type KeyCodec[K Key] interface {
	Decode([]byte) K
	Size() int
}
