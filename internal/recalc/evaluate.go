package recalc

import (
	"math"
	"strings"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// Evaluate computes a sync field from the row values. Fields that are not
// sync-computed evaluate to their current value.
func Evaluate(def field.Definition, values map[string]any, env Env) any {
	switch cfg := def.Config.(type) {
	case field.FormulaConfig:
		return formula(cfg, values)
	case field.ConcatConfig:
		return concat(cfg, values)
	}
	return values[def.ID]
}

// formula returns nil when an operand is missing or not numeric, or when
// the result is not finite. avg, min and max skip empty operands instead.
func formula(cfg field.FormulaConfig, values map[string]any) any {
	nums := make([]float64, 0, len(cfg.Operands))
	for _, id := range cfg.Operands {
		v := values[id]
		n, ok := row.Number(v)
		if !ok {
			if row.IsEmpty(v) && skipsEmpty(cfg.Op) {
				continue
			}
			return nil
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return nil
	}

	var out float64
	switch cfg.Op {
	case field.OpAdd:
		for _, n := range nums {
			out += n
		}
	case field.OpSub:
		out = nums[0]
		for _, n := range nums[1:] {
			out -= n
		}
	case field.OpMul:
		out = 1
		for _, n := range nums {
			out *= n
		}
	case field.OpDiv:
		out = nums[0]
		for _, n := range nums[1:] {
			if n == 0 {
				return nil
			}
			out /= n
		}
	case field.OpAvg:
		for _, n := range nums {
			out += n
		}
		out /= float64(len(nums))
	case field.OpMin:
		out = nums[0]
		for _, n := range nums[1:] {
			out = math.Min(out, n)
		}
	case field.OpMax:
		out = nums[0]
		for _, n := range nums[1:] {
			out = math.Max(out, n)
		}
	default:
		return nil
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil
	}
	return out
}

func skipsEmpty(op field.FormulaOp) bool {
	return op == field.OpAvg || op == field.OpMin || op == field.OpMax
}

func concat(cfg field.ConcatConfig, values map[string]any) string {
	parts := make([]string, 0, len(cfg.Sources))
	for _, id := range cfg.Sources {
		if s := row.Text(values[id]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, cfg.Separator)
}
