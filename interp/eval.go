package interp

import (
	"fmt"
	"sort"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// Color is one RGBA fragment color.
type Color [4]float32

// Evaluate runs the shader for the pixel at (x, y) of a width×height
// image: gl_FragCoord and iResolution are seeded, the entry function
// runs, and the Output-class color variable is read back. The second
// result reports whether the fragment was discarded.
func Evaluate(prog *ir.Program, x, y, width, height int) (Color, bool, error) {
	ip := New(prog)

	if addr, ok := fragCoordAddress(prog); ok {
		ip.WriteMemory(addr, []uint32{
			fromFloat(float32(x) + 0.5),
			fromFloat(float32(y) + 0.5),
			fromFloat(0),
			fromFloat(1),
		})
	}
	if info, ok := prog.NamedVariables["iResolution"]; ok {
		ip.WriteMemory(info.Address, []uint32{
			fromFloat(float32(width)),
			fromFloat(float32(height)),
		})
	}

	if err := ip.Run(); err != nil {
		return Color{}, false, err
	}
	if ip.Killed() {
		return Color{}, true, nil
	}

	addr, ok := outputAddress(prog)
	if !ok {
		return Color{}, false, fmt.Errorf("shader has no output variable")
	}
	words := ip.ReadMemory(addr, 4)
	var color Color
	for i, w := range words {
		color[i] = toFloat(w)
	}
	return color, false, nil
}

// fragCoordAddress finds the input decorated as the FragCoord builtin,
// falling back to the gl_FragCoord name.
func fragCoordAddress(prog *ir.Program) (uint32, bool) {
	for _, id := range sortedVarIDs(prog) {
		v := prog.Variables[id]
		if decs, ok := prog.Decorations[id]; ok {
			if ops, ok := decs[spirv.DecorationBuiltIn]; ok && len(ops) > 0 &&
				spirv.BuiltIn(ops[0]) == spirv.BuiltInFragCoord {
				return v.Address, true
			}
		}
	}
	if info, ok := prog.NamedVariables["gl_FragCoord"]; ok {
		return info.Address, true
	}
	return 0, false
}

// outputAddress finds the first Output-class variable.
func outputAddress(prog *ir.Program) (uint32, bool) {
	for _, id := range sortedVarIDs(prog) {
		v := prog.Variables[id]
		if v.Class == spirv.StorageClassOutput {
			return v.Address, true
		}
	}
	return 0, false
}

func sortedVarIDs(prog *ir.Program) []ir.ID {
	ids := make([]ir.ID, 0, len(prog.Variables))
	for id := range prog.Variables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
