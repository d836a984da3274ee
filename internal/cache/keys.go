package cache

import (
	"encoding/binary"
	"strings"
)

// TexturePathKey is a fixed-width 4096-byte UTF-8 path key, used by the
// texture conversion pipeline's cache.
type TexturePathKey struct {
	path [4096]byte
}

// NewTexturePathKey builds a TexturePathKey from a path string, truncating
// (never panicking) if the UTF-8 encoding exceeds 4096 bytes.
func NewTexturePathKey(path string) TexturePathKey {
	var k TexturePathKey
	n := copy(k.path[:], path)
	_ = n
	return k
}

var _ Key = TexturePathKey{}

func (k TexturePathKey) Less(other Key) bool {
	o := other.(TexturePathKey)
	return string(bytesTrimNil(k.path[:])) < string(bytesTrimNil(o.path[:]))
}

func (k TexturePathKey) Equal(other Key) bool {
	o, ok := other.(TexturePathKey)
	return ok && k.path == o.path
}

func (k TexturePathKey) Bytes() []byte {
	b := make([]byte, len(k.path))
	copy(b, k.path[:])
	return b
}

func (k TexturePathKey) String() string {
	return string(bytesTrimNil(k.path[:]))
}

func bytesTrimNil(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

// TexturePathKeyCodec decodes TexturePathKey values from their fixed-width
// 4096-byte form.
type TexturePathKeyCodec struct{}

func (TexturePathKeyCodec) Size() int { return 4096 }
func (TexturePathKeyCodec) Decode(b []byte) TexturePathKey {
	var k TexturePathKey
	copy(k.path[:], b)
	return k
}

// ShaderKey identifies a compiled DXIL blob by source path, shader model,
// and a content hash.
type ShaderKey struct {
	Path        [260]byte
	ShaderModel uint16
	Hash        uint64
}

var _ Key = ShaderKey{}

// NewShaderKey builds a ShaderKey, truncating path to 260 bytes.
func NewShaderKey(path string, shaderModel uint16, hash uint64) ShaderKey {
	var k ShaderKey
	copy(k.Path[:], path)
	k.ShaderModel = shaderModel
	k.Hash = hash
	return k
}

func (k ShaderKey) Less(other Key) bool {
	o := other.(ShaderKey)
	if p1, p2 := k.pathString(), o.pathString(); p1 != p2 {
		return p1 < p2
	}
	if k.ShaderModel != o.ShaderModel {
		return k.ShaderModel < o.ShaderModel
	}
	return k.Hash < o.Hash
}

func (k ShaderKey) Equal(other Key) bool {
	o, ok := other.(ShaderKey)
	return ok && k.Path == o.Path && k.ShaderModel == o.ShaderModel && k.Hash == o.Hash
}

func (k ShaderKey) pathString() string {
	return string(bytesTrimNil(k.Path[:]))
}

func (k ShaderKey) Bytes() []byte {
	b := make([]byte, 260+2+8)
	copy(b, k.Path[:])
	binary.LittleEndian.PutUint16(b[260:262], k.ShaderModel)
	binary.LittleEndian.PutUint64(b[262:270], k.Hash)
	return b
}

func (k ShaderKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.pathString())
	sb.WriteByte(':')
	sb.WriteString(string(rune('0' + k.ShaderModel%10)))
	return sb.String()
}

// ShaderKeyCodec decodes ShaderKey values from their fixed-width 270-byte
// form.
type ShaderKeyCodec struct{}

func (ShaderKeyCodec) Size() int { return 270 }
func (ShaderKeyCodec) Decode(b []byte) ShaderKey {
	var k ShaderKey
	copy(k.Path[:], b[:260])
	k.ShaderModel = binary.LittleEndian.Uint16(b[260:262])
	k.Hash = binary.LittleEndian.Uint64(b[262:270])
	return k
}
