package spirv

import "encoding/binary"

// ModuleBuilder assembles a SPIR-V binary word by word. Tools and tests
// use it to produce modules without a shading-language front-end.
type ModuleBuilder struct {
	words []uint32
	bound uint32
}

// NewModuleBuilder returns an empty module with the given id bound.
func NewModuleBuilder(bound uint32) *ModuleBuilder {
	return &ModuleBuilder{bound: bound}
}

// Op appends one instruction.
func (b *ModuleBuilder) Op(op Opcode, operands ...uint32) *ModuleBuilder {
	b.words = append(b.words, uint32(len(operands)+1)<<16|uint32(op))
	b.words = append(b.words, operands...)
	return b
}

// OpStr appends one instruction whose trailing operands are literal
// words followed by a NUL-terminated string.
func (b *ModuleBuilder) OpStr(op Opcode, s string, before []uint32, after ...uint32) *ModuleBuilder {
	operands := append(append([]uint32(nil), before...), EncodeString(s)...)
	operands = append(operands, after...)
	return b.Op(op, operands...)
}

// EncodeString packs a string into NUL-terminated little-endian words.
func EncodeString(s string) []uint32 {
	data := append([]byte(s), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words
}

// Bytes serializes the module with its header.
func (b *ModuleBuilder) Bytes() []byte {
	header := []uint32{
		MagicNumber,
		0x00010300, // version 1.3
		0,          // unregistered generator
		b.bound,
		0, // schema
	}
	out := make([]byte, 0, (len(header)+len(b.words))*4)
	for _, w := range append(header, b.words...) {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], w)
		out = append(out, buf[:]...)
	}
	return out
}
