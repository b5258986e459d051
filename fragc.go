// Package fragc compiles SPIR-V fragment shaders for a RISC-V-like
// soft GPU core.
//
// fragc consumes a SPIR-V binary and either lowers it to a scalar
// assembly listing or evaluates it per fragment:
//
//	asm, err := fragc.Compile(spirvBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The compilation pipeline is:
//  1. Parse the binary into the typed SSA IR
//  2. Compute the control-flow graph and dominator tree
//  3. Rewrite phis into per-predecessor copies
//  4. Expand vector instructions to scalars
//  5. Fold small constant adds, compute liveness, assign registers
//  6. Emit assembly text
//
// The spirv, ir, riscv, and interp packages expose the individual
// stages for callers that need more control.
package fragc

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/softgpu/fragc/interp"
	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/riscv"
	"github.com/softgpu/fragc/spirv"
)

// Options configures compilation.
type Options struct {
	// Library is assembly text appended verbatim to the listing; it
	// provides the math routines the emitted code calls.
	Library string

	// ThrowOnUnimplemented makes unknown opcodes fatal instead of
	// #error# placeholder lines.
	ThrowOnUnimplemented bool

	// Verbose is passed through to ir.Options, where no pass reads it;
	// the library logs no debug-level messages.
	Verbose bool

	// Logger receives diagnostics; defaults to the standard logger.
	Logger logrus.FieldLogger
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{}
}

// Compile lowers a SPIR-V fragment shader binary to assembly using
// default options.
func Compile(binary []byte) (string, error) {
	return CompileWithOptions(binary, DefaultOptions())
}

// CompileWithOptions lowers a SPIR-V fragment shader binary to
// assembly.
func CompileWithOptions(binary []byte, opts Options) (string, error) {
	prog, err := Parse(binary, opts)
	if err != nil {
		return "", err
	}
	if err := Transform(prog); err != nil {
		return "", fmt.Errorf("transform error: %w", err)
	}
	asm, err := riscv.Compile(prog, riscv.Options{
		Library:              opts.Library,
		ThrowOnUnimplemented: opts.ThrowOnUnimplemented,
	})
	if err != nil {
		return "", fmt.Errorf("code generation error: %w", err)
	}
	return asm, nil
}

// Parse decodes a SPIR-V binary into the typed SSA program.
func Parse(binary []byte, opts Options) (*ir.Program, error) {
	prog := ir.NewProgram(ir.Options{
		ThrowOnUnimplemented: opts.ThrowOnUnimplemented,
		Verbose:              opts.Verbose,
		Logger:               opts.Logger,
	})
	if err := spirv.Parse(binary, ir.NewBuilder(prog)); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := prog.PostParse(); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return prog, nil
}

// Transform runs the IR passes that prepare a parsed program for code
// generation: CFG and dominators, phi rewriting, vector expansion.
func Transform(prog *ir.Program) error {
	if err := ir.ComputeCFG(prog); err != nil {
		return err
	}
	if err := ir.RewritePhis(prog); err != nil {
		return err
	}
	if err := ir.ExpandVectors(prog); err != nil {
		return err
	}
	return ir.Validate(prog)
}

// Evaluate interprets the shader for the pixel at (x, y) of a
// width×height image and returns its color. The boolean reports whether
// the fragment was discarded.
func Evaluate(binary []byte, x, y, width, height int, opts Options) (interp.Color, bool, error) {
	prog, err := Parse(binary, opts)
	if err != nil {
		return interp.Color{}, false, err
	}
	return interp.Evaluate(prog, x, y, width, height)
}
