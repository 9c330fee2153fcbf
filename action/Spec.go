package action

import (
	"sort"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

var LogAction = base.NewLogCategory("Action")

/***************************************
 * ActionSpec (§3 "Action spec")
 ***************************************/

// ActionSpec is the value-typed, fingerprintable description of one
// subprocess invocation. Two specs with equal fields fingerprint equal
// (§8 property 1), so the engine can memoize action execution the same way
// it memoizes a key's compute.
type ActionSpec struct {
	Arguments        []string
	Environment      map[string][]string
	WorkingDirectory string
	PreActions       []PreAction
}

// PreAction runs before the main action; Background=true lets it run
// concurrently with the main action rather than gating it.
type PreAction struct {
	Spec       ActionSpec
	Background bool
}

func (x *ActionSpec) Serialize(ar base.Archive) {
	base.SerializeMany(ar, func(s *string) { ar.String(s) }, &x.Arguments)

	names := make([]string, 0, len(x.Environment))
	for name := range x.Environment {
		names = append(names, name)
	}
	sort.Strings(names)

	base.SerializeMany(ar, func(name *string) {
		ar.String(name)
		values := x.Environment[*name]
		base.SerializeMany(ar, func(v *string) { ar.String(v) }, &values)
	}, &names)

	ar.String(&x.WorkingDirectory)

	base.SerializeMany(ar, func(pre *PreAction) {
		pre.Spec.Serialize(ar)
		ar.Bool(&pre.Background)
	}, &x.PreActions)
}

// Fingerprint is the deterministic identifier of this spec (§3): equal
// fields (environment keys sorted, pre-actions in declared order) always
// yield equal bytes (§8 property 1).
func (x *ActionSpec) Fingerprint() base.Digest {
	return base.SerializeDigest(x, base.Digest{})
}
