// Package invalidate matches mutation patterns against live keys and removes
// the entries a completed write could have made stale.
package invalidate

import "github.com/stayfinder/go-stay-cache/model"

// Pattern is a partial key matcher. Category is required; empty Scope and
// Entity match anything, and ParamMatch matches keys whose params contain
// every listed pair.
type Pattern struct {
	Category   model.Category
	Scope      string
	Entity     string
	ParamMatch map[string]string
}

// Matches reports whether k falls under the pattern.
func (p Pattern) Matches(k model.Key) bool {
	if p.Category != k.Category() {
		return false
	}
	if p.Scope != "" && p.Scope != k.Scope() {
		return false
	}
	if p.Entity != "" && p.Entity != k.Entity() {
		return false
	}
	for name, want := range p.ParamMatch {
		got, ok := k.Param(name)
		if !ok || got != want {
			return false
		}
	}
	return true
}
