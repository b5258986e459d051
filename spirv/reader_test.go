package spirv

import (
	"encoding/binary"
	"errors"
	"testing"
)

// recorder collects everything the parser hands out.
type recorder struct {
	header Header
	ins    []Instruction
}

func (r *recorder) Header(h Header) error {
	r.header = h
	return nil
}

func (r *recorder) Instruction(ins Instruction) error {
	r.ins = append(r.ins, ins)
	return nil
}

func TestParseHeader(t *testing.T) {
	b := NewModuleBuilder(42)
	b.Op(OpCapability, uint32(CapabilityShader))

	var rec recorder
	if err := Parse(b.Bytes(), &rec); err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if rec.header.Bound != 42 {
		t.Errorf("Bound = %d, want 42", rec.header.Bound)
	}
	if rec.header.Major() != 1 || rec.header.Minor() != 3 {
		t.Errorf("version = %d.%d, want 1.3", rec.header.Major(), rec.header.Minor())
	}
	if len(rec.ins) != 1 || rec.ins[0].Opcode != OpCapability {
		t.Errorf("instructions = %+v", rec.ins)
	}
}

func TestParseErrors(t *testing.T) {
	valid := NewModuleBuilder(10).Op(OpCapability, uint32(CapabilityShader)).Bytes()

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0xFF

	truncated := valid[:len(valid)-4]

	oddSize := append(append([]byte(nil), valid...), 0xAB)

	zeroCount := append([]byte(nil), valid...)
	// Overwrite the capability instruction's word count with zero.
	binary.LittleEndian.PutUint32(zeroCount[HeaderWords*4:], uint32(OpCapability))

	overrun := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(overrun[HeaderWords*4:], 9<<16|uint32(OpCapability))

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 0x00020000)

	kernelCap := NewModuleBuilder(10).Op(OpCapability, 6).Bytes()

	tests := []struct {
		name     string
		data     []byte
		wantKind ErrorKind
	}{
		{"bad magic", badMagic, MalformedBinary},
		{"truncated instruction", truncated, MalformedBinary},
		{"odd byte length", oddSize, MalformedBinary},
		{"zero word count", zeroCount, MalformedBinary},
		{"word count past the end", overrun, MalformedBinary},
		{"unsupported version", badVersion, MalformedBinary},
		{"too small for header", valid[:8], MalformedBinary},
		{"kernel capability", kernelCap, UnsupportedFeature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			err := Parse(tt.data, &rec)
			var spvErr *Error
			if !errors.As(err, &spvErr) {
				t.Fatalf("Parse() = %v, want a spirv error", err)
			}
			if spvErr.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", spvErr.Kind, tt.wantKind)
			}
		})
	}
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name      string
		s         string
		wantWords int
	}{
		{"short", "abc", 1},
		{"exactly one word", "abcd", 2}, // the NUL needs a second word
		{"longer", "GLSL.std.450", 4},
		{"empty", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := Instruction{Opcode: OpName, Operands: append([]uint32{7}, EncodeString(tt.s)...)}
			got, words := ins.DecodeString(1)
			if got != tt.s {
				t.Errorf("DecodeString() = %q, want %q", got, tt.s)
			}
			if words != tt.wantWords {
				t.Errorf("words = %d, want %d", words, tt.wantWords)
			}
		})
	}
}

func TestDecodeStringWithTrailingOperands(t *testing.T) {
	// OpEntryPoint packs interface IDs after the name.
	operands := []uint32{4, 2}
	operands = append(operands, EncodeString("main")...)
	operands = append(operands, 9, 10)
	ins := Instruction{Opcode: OpEntryPoint, Operands: operands}

	name, words := ins.DecodeString(2)
	if name != "main" {
		t.Fatalf("name = %q", name)
	}
	rest := ins.Operands[2+words:]
	if len(rest) != 2 || rest[0] != 9 || rest[1] != 10 {
		t.Errorf("interface ids = %v", rest)
	}
}

func TestOpcodeString(t *testing.T) {
	if got := OpFMul.String(); got != "OpFMul" {
		t.Errorf("OpFMul.String() = %q", got)
	}
	if got := Opcode(9999).String(); got != "Op9999" {
		t.Errorf("unknown opcode String() = %q", got)
	}
}
