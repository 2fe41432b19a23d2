// Package dedupe collapses extraction-batch entities that denote the same
// real-world entity, so "J. Smith" and "Jane Smith" in one message become a
// single entity whose alias set carries both variants into the graph merge.
package dedupe

import (
	"strings"

	"github.com/agenthands/loom/internal/core/model"
)

// Collapse returns one entity per real-world referent. Detection is
// deterministic: equal normalized names, or person-style initial variants
// (same surname, one given name an initial of the other). The survivor is
// the variant with the longer name; aliases accumulate every variant.
func Collapse(entities []model.Entity) []model.Entity {
	var out []model.Entity

	for _, e := range entities {
		merged := false
		for i := range out {
			if out[i].Type != e.Type {
				continue
			}
			if !sameReferent(out[i], e) {
				continue
			}
			absorb(&out[i], e)
			merged = true
			break
		}
		if !merged {
			ent := e
			ent.Aliases = append([]string(nil), e.AllVariants()...)
			out = append(out, ent)
		}
	}

	return out
}

func sameReferent(a, b model.Entity) bool {
	for _, va := range a.AllVariants() {
		for _, vb := range b.AllVariants() {
			if va == vb || initialVariant(va, vb) {
				return true
			}
		}
	}
	return false
}

// initialVariant matches "j. smith" against "jane smith": identical surname
// and one given name abbreviating the other.
func initialVariant(a, b string) bool {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	if len(at) < 2 || len(bt) < 2 {
		return false
	}
	if at[len(at)-1] != bt[len(bt)-1] {
		return false
	}
	return abbreviates(at[0], bt[0]) || abbreviates(bt[0], at[0])
}

// abbreviates reports whether short is an initial form ("j" or "j.") of long.
func abbreviates(short, long string) bool {
	short = strings.TrimSuffix(short, ".")
	if len(short) != 1 || len(long) < 2 {
		return false
	}
	return strings.HasPrefix(long, short)
}

func absorb(dst *model.Entity, src model.Entity) {
	if len(src.Name) > len(dst.Name) {
		dst.Name = src.Name
		dst.NormalizedName = src.NormalizedName
	}
	if src.Confidence > dst.Confidence {
		dst.Confidence = src.Confidence
	}
	for _, v := range src.AllVariants() {
		if !hasVariant(dst.Aliases, v) {
			dst.Aliases = append(dst.Aliases, v)
		}
	}
}

func hasVariant(aliases []string, v string) bool {
	for _, a := range aliases {
		if a == v {
			return true
		}
	}
	return false
}
