package interp

import (
	"fmt"
	"math"

	"github.com/softgpu/fragc/ir"
	"github.com/softgpu/fragc/spirv"
)

// broadcast returns lane i of v, reusing lane 0 when v is scalar.
func broadcast(v value, lane int) uint32 {
	if len(v) == 1 {
		return v[0]
	}
	return v[lane]
}

func (ip *Interpreter) stepUnOp(i *ir.UnOp) error {
	x, err := ip.valueOf(i.X)
	if err != nil {
		return err
	}
	out := make(value, len(x))
	for lane := range x {
		v := x[lane]
		switch i.Op {
		case spirv.OpFNegate:
			out[lane] = fromFloat(-toFloat(v))
		case spirv.OpSNegate:
			out[lane] = uint32(-int32(v))
		case spirv.OpConvertFToS:
			out[lane] = uint32(int32(toFloat(v)))
		case spirv.OpConvertFToU:
			out[lane] = uint32(toFloat(v))
		case spirv.OpConvertSToF:
			out[lane] = fromFloat(float32(int32(v)))
		case spirv.OpConvertUToF:
			out[lane] = fromFloat(float32(v))
		case spirv.OpBitcast, spirv.OpCopyObject, spirv.OpAny, spirv.OpAll:
			out[lane] = v
		case spirv.OpLogicalNot:
			out[lane] = fromBool(v == 0)
		case spirv.OpNot:
			out[lane] = ^v
		case spirv.OpIsNan:
			out[lane] = fromBool(math.IsNaN(float64(toFloat(v))))
		case spirv.OpIsInf:
			out[lane] = fromBool(math.IsInf(float64(toFloat(v)), 0))
		default:
			return fmt.Errorf("cannot interpret %s", i.Op)
		}
	}
	// Any and All reduce a boolean vector to one lane.
	switch i.Op {
	case spirv.OpAny:
		acc := uint32(0)
		for _, v := range x {
			acc |= v
		}
		out = scalar(fromBool(acc != 0))
	case spirv.OpAll:
		acc := true
		for _, v := range x {
			acc = acc && v != 0
		}
		out = scalar(fromBool(acc))
	}
	ip.regs[i.Result] = out
	return nil
}

//nolint:gocyclo,cyclop,funlen // one case per operator
func (ip *Interpreter) stepBinOp(i *ir.BinOp) error {
	x, err := ip.valueOf(i.X)
	if err != nil {
		return err
	}
	y, err := ip.valueOf(i.Y)
	if err != nil {
		return err
	}

	if i.Op == spirv.OpDot {
		var acc float32
		for lane := range x {
			acc += toFloat(x[lane]) * toFloat(y[lane])
		}
		ip.regs[i.Result] = scalar(fromFloat(acc))
		return nil
	}

	n := len(x)
	if len(y) > n {
		n = len(y)
	}
	out := make(value, n)
	for lane := 0; lane < n; lane++ {
		a, b := broadcast(x, lane), broadcast(y, lane)
		fa, fb := toFloat(a), toFloat(b)
		sa, sb := int32(a), int32(b)
		var r uint32
		switch i.Op {
		case spirv.OpFAdd:
			r = fromFloat(fa + fb)
		case spirv.OpFSub:
			r = fromFloat(fa - fb)
		case spirv.OpFMul:
			r = fromFloat(fa * fb)
		case spirv.OpFDiv:
			r = fromFloat(fa / fb)
		case spirv.OpFMod, spirv.OpFRem:
			r = fromFloat(float32(math.Mod(float64(fa), float64(fb))))
		case spirv.OpIAdd:
			r = a + b
		case spirv.OpISub:
			r = a - b
		case spirv.OpIMul:
			r = a * b
		case spirv.OpSDiv:
			r = uint32(sa / sb)
		case spirv.OpUDiv:
			r = a / b
		case spirv.OpSRem, spirv.OpSMod:
			r = uint32(sa % sb)
		case spirv.OpUMod:
			r = a % b
		case spirv.OpBitwiseAnd, spirv.OpLogicalAnd:
			r = a & b
		case spirv.OpBitwiseOr, spirv.OpLogicalOr:
			r = a | b
		case spirv.OpBitwiseXor:
			r = a ^ b
		case spirv.OpShiftLeftLogical:
			r = a << (b & 31)
		case spirv.OpShiftRightLogical:
			r = a >> (b & 31)
		case spirv.OpShiftRightArithmetic:
			r = uint32(sa >> (b & 31))
		case spirv.OpIEqual, spirv.OpLogicalEqual:
			r = fromBool(a == b)
		case spirv.OpINotEqual, spirv.OpLogicalNotEqual:
			r = fromBool(a != b)
		case spirv.OpSLessThan:
			r = fromBool(sa < sb)
		case spirv.OpSLessThanEqual:
			r = fromBool(sa <= sb)
		case spirv.OpSGreaterThan:
			r = fromBool(sa > sb)
		case spirv.OpSGreaterThanEqual:
			r = fromBool(sa >= sb)
		case spirv.OpULessThan:
			r = fromBool(a < b)
		case spirv.OpULessThanEqual:
			r = fromBool(a <= b)
		case spirv.OpUGreaterThan:
			r = fromBool(a > b)
		case spirv.OpUGreaterThanEqual:
			r = fromBool(a >= b)
		case spirv.OpFOrdEqual:
			r = fromBool(fa == fb)
		case spirv.OpFOrdNotEqual:
			r = fromBool(fa != fb)
		case spirv.OpFOrdLessThan:
			r = fromBool(fa < fb)
		case spirv.OpFOrdLessThanEqual:
			r = fromBool(fa <= fb)
		case spirv.OpFOrdGreaterThan:
			r = fromBool(fa > fb)
		case spirv.OpFOrdGreaterThanEqual:
			r = fromBool(fa >= fb)
		default:
			return fmt.Errorf("cannot interpret %s", i.Op)
		}
		out[lane] = r
	}
	ip.regs[i.Result] = out
	return nil
}

func (ip *Interpreter) stepTerOp(i *ir.TerOp) error {
	if i.Op != spirv.OpSelect {
		return fmt.Errorf("cannot interpret %s", i.Op)
	}
	cond, err := ip.valueOf(i.X)
	if err != nil {
		return err
	}
	t, err := ip.valueOf(i.Y)
	if err != nil {
		return err
	}
	f, err := ip.valueOf(i.Z)
	if err != nil {
		return err
	}
	out := make(value, len(t))
	for lane := range t {
		if broadcast(cond, lane) != 0 {
			out[lane] = t[lane]
		} else {
			out[lane] = f[lane]
		}
	}
	ip.regs[i.Result] = out
	return nil
}

func (ip *Interpreter) stepMatrixTimesVector(i *ir.MatrixTimesVector) error {
	m, err := ip.valueOf(i.Matrix)
	if err != nil {
		return err
	}
	v, err := ip.valueOf(i.Vector)
	if err != nil {
		return err
	}
	rows := int(ip.prog.LaneCount(i.Type))
	cols := len(v)
	out := make(value, rows)
	for r := 0; r < rows; r++ {
		var acc float32
		for c := 0; c < cols; c++ {
			// Column-major: element (r, c) is flat lane c*rows + r.
			acc += toFloat(m[c*rows+r]) * toFloat(v[c])
		}
		out[r] = fromFloat(acc)
	}
	ip.regs[i.Result] = out
	return nil
}

//nolint:gocyclo,cyclop,funlen // one case per extended instruction
func (ip *Interpreter) stepExtInst(i *ir.ExtInst) error {
	args := make([]value, len(i.Args))
	for j, argID := range i.Args {
		v, err := ip.valueOf(argID)
		if err != nil {
			return err
		}
		args[j] = v
	}

	// Geometric instructions first; everything else is componentwise.
	switch i.Ext {
	case spirv.GLSLstd450Length:
		ip.regs[i.Result] = scalar(fromFloat(length(args[0])))
		return nil
	case spirv.GLSLstd450Distance:
		diff := make(value, len(args[0]))
		for lane := range diff {
			diff[lane] = fromFloat(toFloat(args[0][lane]) - toFloat(args[1][lane]))
		}
		ip.regs[i.Result] = scalar(fromFloat(length(diff)))
		return nil
	case spirv.GLSLstd450Normalize:
		l := length(args[0])
		out := make(value, len(args[0]))
		for lane := range out {
			out[lane] = fromFloat(toFloat(args[0][lane]) / l)
		}
		ip.regs[i.Result] = out
		return nil
	case spirv.GLSLstd450Cross:
		a, b := args[0], args[1]
		out := make(value, 3)
		for lane := 0; lane < 3; lane++ {
			j, k := (lane+1)%3, (lane+2)%3
			out[lane] = fromFloat(toFloat(a[j])*toFloat(b[k]) - toFloat(a[k])*toFloat(b[j]))
		}
		ip.regs[i.Result] = out
		return nil
	}

	n := 1
	for _, a := range args {
		if len(a) > n {
			n = len(a)
		}
	}
	out := make(value, n)
	for lane := 0; lane < n; lane++ {
		get := func(j int) float32 { return toFloat(broadcast(args[j], lane)) }
		var r float32
		switch i.Ext {
		case spirv.GLSLstd450Round:
			r = float32(math.Round(float64(get(0))))
		case spirv.GLSLstd450Trunc:
			r = float32(math.Trunc(float64(get(0))))
		case spirv.GLSLstd450FAbs:
			r = float32(math.Abs(float64(get(0))))
		case spirv.GLSLstd450FSign:
			switch {
			case get(0) > 0:
				r = 1
			case get(0) < 0:
				r = -1
			}
		case spirv.GLSLstd450Floor:
			r = float32(math.Floor(float64(get(0))))
		case spirv.GLSLstd450Ceil:
			r = float32(math.Ceil(float64(get(0))))
		case spirv.GLSLstd450Fract:
			v := float64(get(0))
			r = float32(v - math.Floor(v))
		case spirv.GLSLstd450Radians:
			r = get(0) * math.Pi / 180
		case spirv.GLSLstd450Degrees:
			r = get(0) * 180 / math.Pi
		case spirv.GLSLstd450Sin:
			r = float32(math.Sin(float64(get(0))))
		case spirv.GLSLstd450Cos:
			r = float32(math.Cos(float64(get(0))))
		case spirv.GLSLstd450Tan:
			r = float32(math.Tan(float64(get(0))))
		case spirv.GLSLstd450Asin:
			r = float32(math.Asin(float64(get(0))))
		case spirv.GLSLstd450Acos:
			r = float32(math.Acos(float64(get(0))))
		case spirv.GLSLstd450Atan:
			r = float32(math.Atan(float64(get(0))))
		case spirv.GLSLstd450Atan2:
			r = float32(math.Atan2(float64(get(0)), float64(get(1))))
		case spirv.GLSLstd450Pow:
			r = float32(math.Pow(float64(get(0)), float64(get(1))))
		case spirv.GLSLstd450Exp:
			r = float32(math.Exp(float64(get(0))))
		case spirv.GLSLstd450Log:
			r = float32(math.Log(float64(get(0))))
		case spirv.GLSLstd450Exp2:
			r = float32(math.Exp2(float64(get(0))))
		case spirv.GLSLstd450Log2:
			r = float32(math.Log2(float64(get(0))))
		case spirv.GLSLstd450Sqrt:
			r = float32(math.Sqrt(float64(get(0))))
		case spirv.GLSLstd450InverseSqrt:
			r = float32(1 / math.Sqrt(float64(get(0))))
		case spirv.GLSLstd450FMin:
			r = float32(math.Min(float64(get(0)), float64(get(1))))
		case spirv.GLSLstd450FMax:
			r = float32(math.Max(float64(get(0)), float64(get(1))))
		case spirv.GLSLstd450FClamp:
			r = float32(math.Min(math.Max(float64(get(0)), float64(get(1))), float64(get(2))))
		case spirv.GLSLstd450FMix:
			r = get(0)*(1-get(2)) + get(1)*get(2)
		case spirv.GLSLstd450Step:
			r = fromBoolFloat(get(1) >= get(0))
		case spirv.GLSLstd450SmoothStep:
			edge0, edge1, x := get(0), get(1), get(2)
			t := clamp01((x - edge0) / (edge1 - edge0))
			r = t * t * (3 - 2*t)
		default:
			return fmt.Errorf("cannot interpret extended instruction %s", i.Ext)
		}
		out[lane] = fromFloat(r)
	}
	ip.regs[i.Result] = out
	return nil
}

func length(v value) float32 {
	var acc float64
	for _, lane := range v {
		f := float64(toFloat(lane))
		acc += f * f
	}
	return float32(math.Sqrt(acc))
}

func fromBoolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
