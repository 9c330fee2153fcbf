package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/llbuild2/llbuild2-go/action"
	"github.com/llbuild2/llbuild2-go/cache"
	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Test fixtures: a minimal IntValue and a couple of arithmetic keys.
 *
 * These stand in for the spec's "Sum"/"AbsoluteSum" scenarios (§8 S1/S2)
 * without spawning a real action subprocess -- the engine's contract
 * (fingerprint, cache, dedup, cycle detection) doesn't depend on *how* a
 * key computes its value, only on the Key/Value shapes, so a pure-Go sum
 * exercises the same evaluate() path a spawned action would.
 ***************************************/

type IntValue struct {
	Total int
}

func (v IntValue) TypeID() TypeID         { return "engine_test.IntValue" }
func (v IntValue) Refs() []cas.DataID     { return nil }
func (v IntValue) CodableValue() []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v.Total))
	return buf[:]
}

func decodeIntValue(refs []cas.DataID, data []byte) (Value, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("malformed IntValue")
	}
	return IntValue{Total: int(binary.LittleEndian.Uint64(data))}, nil
}

type SumKey struct {
	Values []int
}

func (k SumKey) TypeID() TypeID                         { return "engine_test.SumKey" }
func (k SumKey) Version() int                           { return 1 }
func (k SumKey) VersionDependencies() []TypeID          { return nil }
func (k SumKey) ActionDependencies() []action.ActionSpec   { return nil }
func (k SumKey) Volatile() bool                         { return false }
func (k SumKey) ResourceEntitlements() []ResourceKey     { return nil }

func (k SumKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	total := 0
	for _, v := range k.Values {
		total += v
	}
	return IntValue{Total: total}, nil
}

// AbsoluteSumKey mirrors S2: its Compute always returns the absolute
// value's sum, but a stale cached Sum of total=-9 can be planted under
// its fingerprint, exercising FixCached rather than Compute.
type AbsoluteSumKey struct {
	Values []int
}

func (k AbsoluteSumKey) TypeID() TypeID                       { return "engine_test.AbsoluteSumKey" }
func (k AbsoluteSumKey) Version() int                         { return 1 }
func (k AbsoluteSumKey) VersionDependencies() []TypeID        { return nil }
func (k AbsoluteSumKey) ActionDependencies() []action.ActionSpec { return nil }
func (k AbsoluteSumKey) Volatile() bool                       { return false }
func (k AbsoluteSumKey) ResourceEntitlements() []ResourceKey  { return nil }

func (k AbsoluteSumKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	total := 0
	for _, v := range k.Values {
		if v < 0 {
			v = -v
		}
		total += v
	}
	return IntValue{Total: total}, nil
}

func (k AbsoluteSumKey) FixCached(fi *ComputeContext, ctx context.Context, rejected Value) (Value, bool) {
	var total int
	switch v := rejected.(type) {
	case IntValue:
		total = v.Total
	case rejectedIntValue:
		total = v.Total
	default:
		return nil, false
	}
	if total < 0 {
		total = -total
	}
	return IntValue{Total: total}, true
}

// rejectedIntValue wraps IntValue so ValidateCache can reject it --
// AbsoluteSumKey's planted entry always fails validation, forcing
// FixCached.
type rejectedIntValue struct {
	IntValue
}

func (v rejectedIntValue) ValidateCache(ctx context.Context) bool { return false }

func decodeRejectedIntValue(refs []cas.DataID, data []byte) (Value, error) {
	iv, err := decodeIntValue(refs, data)
	if err != nil {
		return nil, err
	}
	return rejectedIntValue{IntValue: iv.(IntValue)}, nil
}

// CyclicKey mirrors S3: its Compute always requests CyclicKey{-Value}.
type CyclicKey struct {
	Value int
}

func (k CyclicKey) TypeID() TypeID                       { return "engine_test.CyclicKey" }
func (k CyclicKey) Version() int                         { return 1 }
func (k CyclicKey) VersionDependencies() []TypeID        { return nil }
func (k CyclicKey) ActionDependencies() []action.ActionSpec { return nil }
func (k CyclicKey) Volatile() bool                       { return true } // never muddy the cache with a key that never finishes
func (k CyclicKey) ResourceEntitlements() []ResourceKey  { return nil }

func (k CyclicKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	_, err := fi.Request(ctx, CyclicKey{Value: -k.Value})
	return nil, err
}

/***************************************
 * Helpers
 ***************************************/

func newTestEngine() *Engine {
	store := cas.NewMemStore()
	backend := cache.NewMemBackend()
	e := NewEngine(store, backend)
	e.RegisterValueType("engine_test.SumKey", decodeIntValue)
	e.RegisterValueType("engine_test.CountingSumKey", decodeIntValue)
	return e
}

/***************************************
 * S1: basic math
 ***************************************/

func TestEvaluateSum(t *testing.T) {
	e := newTestEngine()
	value, err := e.Evaluate(context.Background(), SumKey{Values: []int{2, 3, 4}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	iv, ok := value.(IntValue)
	if !ok || iv.Total != 9 {
		t.Fatalf("got %#v, want IntValue{Total:9}", value)
	}
}

/***************************************
 * S2: weird math / fixCached
 ***************************************/

func TestEvaluateAbsoluteSumFixCached(t *testing.T) {
	e := newTestEngine()
	key := AbsoluteSumKey{Values: []int{-2, -3, -4}}

	fp := KeyFingerprint(key, EffectiveVersion(key, e.versionOf), nil)

	stale := rejectedIntValue{IntValue: IntValue{Total: -9}}
	id, err := e.store.Put(context.Background(), stale.Refs(), stale.CodableValue())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	// plant the stale entry under a type tag whose decoder always rejects,
	// standing in for "a cached value that validateCache subsequently
	// disowns" without needing a second real key type.
	e.valueDecoders["engine_test.AbsoluteSumKey"] = decodeRejectedIntValue
	if err := e.cacheBackend.Update(context.Background(), cache.Fingerprint(fp), id); err != nil {
		t.Fatalf("Update: %v", err)
	}

	value, err := e.Evaluate(context.Background(), key)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	iv, ok := value.(IntValue)
	if !ok || iv.Total != 9 {
		t.Fatalf("got %#v, want IntValue{Total:9}", value)
	}
}

/***************************************
 * S3: cycle
 ***************************************/

func TestEvaluateCyclicKeyDetectsCycle(t *testing.T) {
	e := newTestEngine()
	_, err := e.Evaluate(context.Background(), CyclicKey{Value: 4})
	if err == nil {
		t.Fatalf("expected a CycleDetected error")
	}

	var cycleErr CycleDetected
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error %v does not wrap a CycleDetected", err)
	}
	if len(cycleErr.Path) != 3 {
		t.Fatalf("cycle path length = %d, want 3", len(cycleErr.Path))
	}
}

/***************************************
 * Property 6: a 4-node ring fails closing the loop, not before
 ***************************************/

func TestAddEdgeCycleOfFour(t *testing.T) {
	e := newTestEngine()
	fp := func(b byte) Fingerprint {
		var d Fingerprint
		d[0] = b
		return d
	}
	n1, n2, n3, n4 := fp(1), fp(2), fp(3), fp(4)

	if err := e.addEdge(n1, n2); err != nil {
		t.Fatalf("1->2: %v", err)
	}
	if err := e.addEdge(n2, n3); err != nil {
		t.Fatalf("2->3: %v", err)
	}
	if err := e.addEdge(n3, n4); err != nil {
		t.Fatalf("3->4: %v", err)
	}
	err := e.addEdge(n4, n1)
	if err == nil {
		t.Fatalf("4->1 should have closed a cycle")
	}
	var cycleErr CycleDetected
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error %v is not a CycleDetected", err)
	}
	if len(cycleErr.Path) != 5 {
		t.Fatalf("cycle path length = %d, want 5", len(cycleErr.Path))
	}
}

/***************************************
 * S5: dedup
 ***************************************/

func TestEvaluateDedupConcurrent(t *testing.T) {
	e := newTestEngine()

	var computeCount int32
	key := countingSumKey{values: []int{1, 2, 3}, counter: &computeCount}

	const N = 16
	var wg sync.WaitGroup
	results := make([]Value, N)
	errs := make([]error, N)
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Evaluate(context.Background(), key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < N; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		iv, ok := results[i].(IntValue)
		if !ok || iv.Total != 6 {
			t.Fatalf("caller %d got %#v, want IntValue{Total:6}", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&computeCount); got != 1 {
		t.Fatalf("compute ran %d times, want exactly 1", got)
	}
}

type countingSumKey struct {
	values  []int
	counter *int32
}

func (k countingSumKey) TypeID() TypeID                       { return "engine_test.CountingSumKey" }
func (k countingSumKey) Version() int                         { return 1 }
func (k countingSumKey) VersionDependencies() []TypeID        { return nil }
func (k countingSumKey) ActionDependencies() []action.ActionSpec { return nil }
func (k countingSumKey) Volatile() bool                       { return false }
func (k countingSumKey) ResourceEntitlements() []ResourceKey  { return nil }

func (k countingSumKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	atomic.AddInt32(k.counter, 1)
	total := 0
	for _, v := range k.values {
		total += v
	}
	return IntValue{Total: total}, nil
}

/***************************************
 * S8: flag encoder round trip
 ***************************************/

type flagEncoderFixture struct {
	Name    string
	Count   int
	Enabled bool
	Tags    []string
	Labels  map[string]string
}

func TestFlagEncoderRoundTrip(t *testing.T) {
	src := flagEncoderFixture{
		Name:    "widget",
		Count:   3,
		Enabled: true,
		Tags:    []string{"a", "b", "c"},
		Labels:  map[string]string{"color": "red"},
	}

	tokens := EncodeFlags(src)

	var dst flagEncoderFixture
	if err := DecodeFlags(&dst, tokens); err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}

	if dst.Name != src.Name || dst.Count != src.Count || dst.Enabled != src.Enabled {
		t.Fatalf("got %#v, want %#v", dst, src)
	}
	if len(dst.Tags) != len(src.Tags) {
		t.Fatalf("tags: got %v, want %v", dst.Tags, src.Tags)
	}
	for i := range src.Tags {
		if dst.Tags[i] != src.Tags[i] {
			t.Fatalf("tags[%d]: got %q, want %q", i, dst.Tags[i], src.Tags[i])
		}
	}
	if dst.Labels["color"] != "red" {
		t.Fatalf("labels[color]: got %q, want %q", dst.Labels["color"], "red")
	}
}

func TestFlagEncoderBoolFlagFormEqualsExplicitTrue(t *testing.T) {
	tokens := []string{"Enabled"} // bare flag-form token
	var dst flagEncoderFixture
	if err := DecodeFlags(&dst, tokens); err != nil {
		t.Fatalf("DecodeFlags: %v", err)
	}
	if !dst.Enabled {
		t.Fatalf("bare flag token should decode as true")
	}
}

func TestFlagEncoderDeterministicOrdering(t *testing.T) {
	a := flagEncoderFixture{Name: "x", Tags: []string{"z", "a"}}
	b := flagEncoderFixture{Name: "x", Tags: []string{"z", "a"}}

	ta := EncodeFlags(a)
	tb := EncodeFlags(b)
	if len(ta) != len(tb) {
		t.Fatalf("token count differs: %v vs %v", ta, tb)
	}
	for i := range ta {
		if ta[i] != tb[i] {
			t.Fatalf("token %d differs: %q vs %q", i, ta[i], tb[i])
		}
	}
}

/***************************************
 * S7: fingerprint stability of DataID-carrying keys
 ***************************************/

type artifactRef struct {
	ID  cas.DataID
	Tag string
}

type artifactKey struct {
	Artifact artifactRef
}

func (k artifactKey) TypeID() TypeID                       { return "engine_test.ArtifactKey" }
func (k artifactKey) Version() int                         { return 1 }
func (k artifactKey) VersionDependencies() []TypeID        { return nil }
func (k artifactKey) ActionDependencies() []action.ActionSpec { return nil }
func (k artifactKey) Volatile() bool                       { return false }
func (k artifactKey) ResourceEntitlements() []ResourceKey  { return nil }
func (k artifactKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	return IntValue{}, nil
}

func TestFingerprintDistinguishesWrapperMetadataOverSameDataID(t *testing.T) {
	e := newTestEngine()
	var id cas.DataID
	id[0] = 0x42

	k1 := artifactKey{Artifact: artifactRef{ID: id, Tag: "v1"}}
	k2 := artifactKey{Artifact: artifactRef{ID: id, Tag: "v2"}}

	fp1 := KeyFingerprint(k1, EffectiveVersion(k1, e.versionOf), nil)
	fp2 := KeyFingerprint(k2, EffectiveVersion(k2, e.versionOf), nil)

	if fp1 == fp2 {
		t.Fatalf("two wrapper values over the same DataID but different metadata must fingerprint differently")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	e := newTestEngine()
	k1 := SumKey{Values: []int{1, 2, 3}}
	k2 := SumKey{Values: []int{1, 2, 3}}

	fp1 := KeyFingerprint(k1, EffectiveVersion(k1, e.versionOf), nil)
	fp2 := KeyFingerprint(k2, EffectiveVersion(k2, e.versionOf), nil)
	if fp1 != fp2 {
		t.Fatalf("equal keys must produce equal fingerprints")
	}

	k3 := SumKey{Values: []int{1, 2, 4}}
	fp3 := KeyFingerprint(k3, EffectiveVersion(k3, e.versionOf), nil)
	if fp1 == fp3 {
		t.Fatalf("different keys must not collide")
	}
}

/***************************************
 * §4.9: resources participate in fingerprints by lifetime, and
 * entitlement gates Resource() access.
 ***************************************/

type toolchainResource struct {
	version int
}

func (r toolchainResource) ResourceKey() ResourceKey   { return "toolchain" }
func (r toolchainResource) Lifetime() ResourceLifetime { return RESOURCE_VERSIONED }
func (r toolchainResource) Version() int               { return r.version }

type toolchainKey struct{}

func (k toolchainKey) TypeID() TypeID                         { return "engine_test.ToolchainKey" }
func (k toolchainKey) Version() int                           { return 1 }
func (k toolchainKey) VersionDependencies() []TypeID          { return nil }
func (k toolchainKey) ActionDependencies() []action.ActionSpec { return nil }
func (k toolchainKey) Volatile() bool                         { return false }
func (k toolchainKey) ResourceEntitlements() []ResourceKey    { return []ResourceKey{"toolchain"} }
func (k toolchainKey) Compute(fi *ComputeContext, ctx context.Context) (Value, error) {
	return IntValue{}, nil
}

func TestFingerprintChangesWithVersionedResourceVersion(t *testing.T) {
	e1 := NewEngine(cas.NewMemStore(), cache.NewMemBackend(), OptionEngineResources(toolchainResource{version: 1}))
	e2 := NewEngine(cas.NewMemStore(), cache.NewMemBackend(), OptionEngineResources(toolchainResource{version: 2}))

	key := toolchainKey{}
	fp1 := KeyFingerprint(key, EffectiveVersion(key, e1.versionOf), ResourceFingerprintContribution(key, e1.resources, e1.buildID))
	fp2 := KeyFingerprint(key, EffectiveVersion(key, e2.versionOf), ResourceFingerprintContribution(key, e2.resources, e2.buildID))
	if fp1 == fp2 {
		t.Fatalf("a key entitled to a RESOURCE_VERSIONED resource must fingerprint differently across resource versions")
	}
}

func TestComputeContextResourceRejectsUnentitledAccess(t *testing.T) {
	e := NewEngine(cas.NewMemStore(), cache.NewMemBackend(), OptionEngineResources(toolchainResource{version: 1}))
	fi := &ComputeContext{engine: e}

	if _, ok := fi.Resource("toolchain", nil); ok {
		t.Fatalf("Resource() must refuse access when the key's own entitlement list doesn't name it")
	}
	if _, ok := fi.Resource("toolchain", []ResourceKey{"toolchain"}); !ok {
		t.Fatalf("Resource() must succeed once the caller's entitlement list names the resource")
	}
}
