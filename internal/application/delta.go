package application

import (
	"encoding/json"
	"math/big"
	"reflect"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// DiffPolicy controls how far ComputeDelta descends into nested mappings.
//
// Only mapping values are ever recursed into. Arrays are compared as a whole
// and, when they differ, sent whole. Fields present only in the original are
// never represented: the backend applies a PATCH with exclude-unset semantics,
// so an absent field means "unchanged" and a removal cannot be expressed.
// A nested mapping whose only change is a removal therefore yields no entry
// at all, not an empty mapping.
type DiffPolicy struct {
	// MaxDepth is the deepest level at which changed fields are picked out
	// individually; a changed mapping at that level is sent whole. Top-level
	// fields are depth 1. Zero means unbounded.
	MaxDepth int
}

// ComputeDelta returns the fields of edited that differ from original under
// the unbounded policy.
func ComputeDelta(edited, original model.Record) model.Delta {
	return DiffPolicy{}.Compute(edited, original)
}

// Compute returns the subset of edited that differs from original. The result
// is never nil.
func (p DiffPolicy) Compute(edited, original model.Record) model.Delta {
	return p.diff(edited, original, 1)
}

func (p DiffPolicy) diff(edited, original map[string]any, depth int) model.Delta {
	delta := model.Delta{}
	for field, next := range edited {
		prev, existed := original[field]
		if existed && valuesEqual(next, prev) {
			continue
		}

		nextMap, nextIsMap := asMapping(next)
		prevMap, prevIsMap := asMapping(prev)
		if existed && nextIsMap && prevIsMap && (p.MaxDepth == 0 || depth < p.MaxDepth) {
			// Only removals differ below here; nothing to send.
			if nested := p.diff(nextMap, prevMap, depth+1); len(nested) > 0 {
				delta[field] = nested
			}
			continue
		}

		delta[field] = next
	}
	return delta
}

func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Record:
		return m, true
	}
	return nil, false
}

// valuesEqual is deep structural equality over decoded JSON. Numbers compare
// by value whatever their Go representation, so json.Number("3"), 3 and 3.0
// are equal.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := numberValue(a); ok {
		y, ok := numberValue(b)
		return ok && x.Cmp(y) == 0
	}

	if am, ok := asMapping(a); ok {
		bm, ok := asMapping(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if isList(av) {
		if !isList(bv) || av.Len() != bv.Len() {
			return false
		}
		for i := range av.Len() {
			if !valuesEqual(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func isList(v reflect.Value) bool {
	return v.Kind() == reflect.Slice || v.Kind() == reflect.Array
}

// numberValue converts any Go numeric or json.Number to an exact rational.
func numberValue(v any) (*big.Rat, bool) {
	r := new(big.Rat)
	switch n := v.(type) {
	case json.Number:
		if _, ok := r.SetString(n.String()); !ok {
			return nil, false
		}
		return r, true
	case float64:
		if r.SetFloat64(n) == nil {
			return nil, false
		}
		return r, true
	case float32:
		if r.SetFloat64(float64(n)) == nil {
			return nil, false
		}
		return r, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return r.SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return r.SetFrac(new(big.Int).SetUint64(rv.Uint()), big.NewInt(1)), true
	}
	return nil, false
}
