package engine

import (
	"sort"

	"github.com/llbuild2/llbuild2-go/action"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * Fingerprint (§4.5)
 *
 * fingerprint(key) = blake3(typeID || sorted flag tokens || effective
 * version || resource contribution). Grounded on the teacher's utils.MakeBuildFingerprint /
 * SerializeFingerpint pattern (hash an archive-encoded stream), with
 * sha256 swapped for the blake3-based base.Digest already adopted
 * throughout this module (cas.DataID, ActionSpec.Fingerprint).
 ***************************************/

// Fingerprint is the stable hash used both as a function-cache key and as
// the in-flight dedup key (§4.5, §4.7); it shares the DataID's 32-byte
// blake3 digest shape, same as cache.Fingerprint.
type Fingerprint = base.Digest

// KeyFingerprint computes fingerprint(key) per §4.5: the key's TypeID,
// its field dictionary as flag tokens, its effective version, then the
// fingerprint contribution of every resource it's entitled to (§4.9:
// "only their version/buildID participates in fingerprints") -- each
// folded into one blake3 stream in that order so token boundaries can
// never be confused with adjacent fields (ar.String length-prefixes each
// token).
func KeyFingerprint(key Key, effectiveVersion int, resourceBytes []byte) Fingerprint {
	tokens := EncodeFlags(key)
	digest, err := base.SerializeAnyDigest(func(ar base.Archive) error {
		typeID := string(key.TypeID())
		ar.String(&typeID)
		base.SerializeMany(ar, func(s *string) { ar.String(s) }, &tokens)
		version := int64(effectiveVersion)
		ar.Int64(&version)
		ar.Raw(resourceBytes)
		return nil
	}, base.Digest{})
	base.LogPanicIfFailed(LogEngine, err)
	return digest
}

// ResourceFingerprintContribution folds fingerprintContribution over
// every resource key's entitlements, sorted so the result doesn't depend
// on registration or entitlement-list order.
func ResourceFingerprintContribution(key Key, resources resourceRegistry, buildID string) []byte {
	entitlements := append([]ResourceKey(nil), key.ResourceEntitlements()...)
	sort.Slice(entitlements, func(i, j int) bool { return entitlements[i] < entitlements[j] })

	var buf []byte
	for _, rk := range entitlements {
		res, ok := resources.find(rk)
		if !ok {
			continue
		}
		buf = append(buf, []byte(rk)...)
		buf = append(buf, fingerprintContribution(res, buildID)...)
	}
	return buf
}

// EffectiveVersion implements §4.5's aggregatedVersion recurrence:
// version + sum of effectiveVersion(dep) over declared version
// dependencies + sum of fingerprint-derived versions over declared action
// dependencies. versionOf resolves a zero-value key for each declared
// TypeID dependency (the engine's key registry owns that lookup; see
// Engine.go's registeredKeys).
func EffectiveVersion(key Key, versionOf func(TypeID) (Key, bool)) int {
	total := key.Version()
	seen := map[TypeID]bool{key.TypeID(): true}
	total += effectiveVersionDeps(key, versionOf, seen)
	for _, dep := range key.ActionDependencies() {
		total += int(actionDepContribution(dep))
	}
	return total
}

func effectiveVersionDeps(key Key, versionOf func(TypeID) (Key, bool), seen map[TypeID]bool) int {
	sum := 0
	for _, depID := range key.VersionDependencies() {
		if seen[depID] {
			continue // version aggregation ignores cycles in the dependency declaration itself
		}
		depKey, ok := versionOf(depID)
		if !ok {
			continue
		}
		seen[depID] = true
		sum += depKey.Version()
		for _, spec := range depKey.ActionDependencies() {
			sum += int(actionDepContribution(spec))
		}
		sum += effectiveVersionDeps(depKey, versionOf, seen)
	}
	return sum
}

// actionDepContribution folds an ActionSpec's own fingerprint bytes down
// to a small integer contribution -- enough that changing the action's
// shape changes the aggregated version, without requiring the version
// arithmetic itself to carry a full 32-byte digest.
func actionDepContribution(spec action.ActionSpec) uint32 {
	digest := spec.Fingerprint()
	b := digest.Slice()
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// FingerprintOfValue computes the fingerprint contribution of a value
// field the way §4.5's "Fingerprint sensitivity" clause requires: a bare
// DataID field contributes its bytes verbatim, but a Value that *wraps* a
// DataID (and may carry additional metadata alongside it) contributes its
// full encoding -- refs and codableValue both -- so that two wrapper
// values over the same DataID but different metadata fingerprint
// differently (§8 scenario S7).
func FingerprintOfValue(v Value) []byte {
	var buf []byte
	for _, ref := range v.Refs() {
		buf = append(buf, ref.Slice()...)
	}
	buf = append(buf, v.CodableValue()...)
	return buf
}
