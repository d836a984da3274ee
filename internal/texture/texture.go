// Package texture is the canonical consumer of the task graph and the
// streamed cache: it converts source images into block-compressed texture
// artifacts, deduplicating expensive compression work across runs via the
// cache's content hash. The compression codecs themselves are abstract —
// callers supply a Compressor, since the bit-level BC4/5/6H/7 algorithms
// are out of scope here.
package texture

// ColorSpace describes the intended interpretation of a source image's
// pixel data, which along with channel count selects a compression format.
type ColorSpace int

const (
	Linear ColorSpace = iota
	SRGB
	HDR
)

func (cs ColorSpace) String() string {
	switch cs {
	case Linear:
		return "linear"
	case SRGB:
		return "srgb"
	case HDR:
		return "hdr"
	default:
		return "unknown"
	}
}

// Format identifies a block-compression codec.
type Format uint64

const (
	FormatUnknown Format = iota
	FormatBC4
	FormatBC5
	FormatBC7
	FormatBC7SRGB
	FormatBC6H
)

func (f Format) String() string {
	switch f {
	case FormatBC4:
		return "BC4"
	case FormatBC5:
		return "BC5"
	case FormatBC7:
		return "BC7"
	case FormatBC7SRGB:
		return "BC7-sRGB"
	case FormatBC6H:
		return "BC6H"
	default:
		return "unknown"
	}
}

// ChooseFormat picks the compression format for an image with the given
// channel count and color space: 1 channel -> BC4, 2 -> BC5, 3/4 in linear
// RGB -> BC7, 3/4 sRGB -> BC7-sRGB, 3/4 HDR -> BC6H.
func ChooseFormat(channels int, cs ColorSpace) Format {
	switch channels {
	case 1:
		return FormatBC4
	case 2:
		return FormatBC5
	default:
		switch cs {
		case SRGB:
			return FormatBC7SRGB
		case HDR:
			return FormatBC6H
		default:
			return FormatBC7
		}
	}
}
