package texture

import "time"

// Subresource is one mip level of one array layer of a source image,
// holding its raw (uncompressed) pixel data and pitch information.
type Subresource struct {
	RowPitch   int64
	SlicePitch int64
	Raw        []byte
}

// SourceImage is the abstract contract a caller implements to feed an
// image into the conversion pipeline; decoding the source file format is
// out of scope here.
type SourceImage interface {
	URI() string
	Timestamp() time.Time
	Channels() int
	ColorSpace() ColorSpace

	// Bytes returns the image's raw encoded file content, hashed for
	// cache-dedup decisions.
	Bytes() ([]byte, error)

	// Subresources returns one entry per mip level per array layer, in
	// the fixed order the compressed payload is serialized in.
	Subresources() ([]Subresource, error)
}

// Compressor compresses one subresource's raw pixel data into a given
// block-compression format. The bit-level codecs are abstract; callers
// supply a GPU-backed or CPU implementation.
type Compressor interface {
	Compress(format Format, sub Subresource) ([]byte, error)
}
