package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/llbuild2/llbuild2-go/action"
	"github.com/llbuild2/llbuild2-go/cache"
	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * Evaluation engine (§4.7)
 *
 * Grounded on utils.BuildGraph: an in-flight table keyed by fingerprint
 * instead of BuildAlias (buildGraph.nodes / node.future), and the same
 * "bounded depth-first walk from the destination looking for the source"
 * cycle check the teacher's own GetDependencyChain performs (there via
 * Dijkstra for the shortest *named* chain; here via plain DFS since we
 * only need yes/no-plus-witness-path on the hot insert path). The shared
 * mutex-guards-O(1)-updates-only discipline of §5 matches
 * buildGraph.nodes' own node.state.Lock() scoping: the lock never spans
 * a Compute call, a CAS round-trip, or an action execution.
 ***************************************/

type ValueDecoder func(refs []cas.DataID, data []byte) (Value, error)

type inflightEntry struct {
	future base.Future[Value]
}

type Engine struct {
	store        cas.Store
	cacheBackend cache.Backend
	executor     *action.Executor
	resources    resourceRegistry
	buildID      string

	registeredKeys map[TypeID]Key
	valueDecoders  map[TypeID]ValueDecoder

	mu       sync.Mutex
	inflight map[Fingerprint]*inflightEntry
	depGraph map[Fingerprint][]Fingerprint
}

type EngineOptionFunc func(*Engine)

// OptionEngineExecutor wires the action executor a key's Compute reaches
// through ComputeContext.Spawn (§4.4); an engine built for tests that
// never spawn a real action (S1's arithmetic scenarios, for instance) can
// omit it.
func OptionEngineExecutor(executor *action.Executor) EngineOptionFunc {
	return func(e *Engine) { e.executor = executor }
}
func OptionEngineResources(resources ...Resource) EngineOptionFunc {
	return func(e *Engine) { e.resources = newResourceRegistry(resources...) }
}
func OptionEngineBuildID(buildID string) EngineOptionFunc {
	return func(e *Engine) { e.buildID = buildID }
}

func NewEngine(store cas.Store, cacheBackend cache.Backend, options ...EngineOptionFunc) *Engine {
	e := &Engine{
		store:          store,
		cacheBackend:   cacheBackend,
		registeredKeys: make(map[TypeID]Key),
		valueDecoders:  make(map[TypeID]ValueDecoder),
		inflight:       make(map[Fingerprint]*inflightEntry),
		depGraph:       make(map[Fingerprint][]Fingerprint),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.buildID == "" {
		e.buildID = uuid.NewString()
	}
	return e
}

// RegisterKeyType records a zero-value instance of a key type so
// EffectiveVersion can resolve VersionDependencies by TypeID (§4.5).
func (e *Engine) RegisterKeyType(zero Key) {
	e.registeredKeys[zero.TypeID()] = zero
}

// RegisterValueType records how to decode a CAS object back into the Value
// computed by keys of the given key TypeID; cache lookups select the decoder
// by key.TypeID() (the "type-tag registry" of §9's design notes).
func (e *Engine) RegisterValueType(typeID TypeID, decode ValueDecoder) {
	e.valueDecoders[typeID] = decode
}

func (e *Engine) versionOf(id TypeID) (Key, bool) {
	k, ok := e.registeredKeys[id]
	return k, ok
}

// Evaluate runs the request (nil parent, key) per §4.7's algorithm and
// is the only entry point a caller outside a Compute uses; keys reach
// the same logic through ComputeContext.Request.
func (e *Engine) Evaluate(ctx context.Context, key Key) (Value, error) {
	return e.evaluate(ctx, nil, key)
}

// evaluate runs the algorithm of §4.7. path is the chain of fingerprints of
// every key already being computed on the way down to this request (root
// first), used only to populate ValueComputationError.PathToKey (§7) on
// failure and to find the immediate parent for cycle detection -- it is
// not shared with any sibling Request, so concurrent children never race
// over it.
func (e *Engine) evaluate(ctx context.Context, path []Fingerprint, key Key) (Value, error) {
	resourceBytes := ResourceFingerprintContribution(key, e.resources, e.buildID)
	fp := KeyFingerprint(key, EffectiveVersion(key, e.versionOf), resourceBytes)

	if len(path) > 0 {
		parent := path[len(path)-1]
		if err := e.addEdge(parent, fp); err != nil {
			return nil, err
		}
		defer e.removeEdge(parent, fp)
	}

	childPath := append(append(make([]Fingerprint, 0, len(path)+1), path...), fp)

	if !key.Volatile() {
		if value, hit, err := e.lookupCache(ctx, childPath, fp, key); err != nil {
			return nil, err
		} else if hit {
			return value, nil
		}
	}

	future, isNewEntry := e.joinOrStartCompute(ctx, childPath, fp, key)
	result := future.Join()
	if isNewEntry {
		e.mu.Lock()
		delete(e.inflight, fp)
		e.mu.Unlock()
	}

	value, err := result.Get()
	if err != nil {
		return nil, ValueComputationError{Key: key.TypeID(), Cause: err, PathToKey: path}
	}
	return value, nil
}

// lookupCache consults the function cache and, on a hit, decodes the CAS
// object and runs the validate/fixCached sequence of §4.8.
func (e *Engine) lookupCache(ctx context.Context, path []Fingerprint, fp Fingerprint, key Key) (Value, bool, error) {
	id, ok := e.cacheBackend.Get(ctx, cache.Fingerprint(fp))
	if !ok {
		return nil, false, nil
	}
	value, err := e.decodeValueAt(ctx, key.TypeID(), id)
	if err != nil {
		return nil, false, nil // malformed cache entry is treated as a miss, not an error
	}

	if validating, ok := value.(ValidatingValue); ok && !validating.ValidateCache(ctx) {
		fixable, ok := key.(FixableKey)
		if !ok {
			return nil, false, nil
		}
		fi := &ComputeContext{engine: e, fp: fp, path: path}
		fixed, ok := fixable.FixCached(fi, ctx, value)
		if !ok {
			return nil, false, nil
		}
		newID, err := e.store.Put(ctx, fixed.Refs(), fixed.CodableValue())
		if err != nil {
			return nil, false, err
		}
		_ = e.cacheBackend.Update(ctx, cache.Fingerprint(fp), newID)
		return fixed, true, nil
	}

	return value, true, nil
}

func (e *Engine) decodeValueAt(ctx context.Context, typeID TypeID, id cas.DataID) (Value, error) {
	decode, ok := e.valueDecoders[typeID]
	if !ok {
		return nil, UnknownKeyIdentifier{ID: typeID}
	}
	obj, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("engine: cached DataID %v not found in CAS", id.ShortString())
	}
	return decode(obj.Refs, obj.Data)
}

// joinOrStartCompute implements the in-flight dedup of §4.7/§5/scenario
// S5: the first caller for a fingerprint creates the entry and runs
// Compute; every other concurrent caller observed before it's removed
// joins the same future.
func (e *Engine) joinOrStartCompute(ctx context.Context, path []Fingerprint, fp Fingerprint, key Key) (base.Future[Value], bool) {
	e.mu.Lock()
	if existing, ok := e.inflight[fp]; ok {
		e.mu.Unlock()
		return existing.future, false
	}

	entry := &inflightEntry{}
	e.inflight[fp] = entry
	e.mu.Unlock()

	entry.future = base.MakeAsyncFuture(func() (Value, error) {
		fi := &ComputeContext{engine: e, fp: fp, path: path}
		value, err := key.Compute(fi, ctx)
		if err != nil {
			return nil, err
		}
		if !key.Volatile() {
			id, putErr := e.store.Put(ctx, value.Refs(), value.CodableValue())
			if putErr != nil {
				return nil, putErr
			}
			_ = e.cacheBackend.Update(ctx, cache.Fingerprint(fp), id)
		}
		return value, nil
	})

	return entry.future, true
}

/***************************************
 * Dependency graph / cycle detection
 ***************************************/

func (e *Engine) addEdge(parent, child Fingerprint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if path, found := e.findPath(child, parent, make(map[Fingerprint]bool)); found {
		full := append([]Fingerprint{parent}, path...)
		return CycleDetected{Path: full}
	}
	e.depGraph[parent] = append(e.depGraph[parent], child)
	return nil
}

func (e *Engine) removeEdge(parent, child Fingerprint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edges := e.depGraph[parent]
	for i, fp := range edges {
		if fp == child {
			e.depGraph[parent] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
	if len(e.depGraph[parent]) == 0 {
		delete(e.depGraph, parent)
	}
}

// findPath performs a bounded depth-first walk from `from` looking for
// `to`, returning the path from->...->to if one exists. Must be called
// with e.mu held.
func (e *Engine) findPath(from, to Fingerprint, visited map[Fingerprint]bool) ([]Fingerprint, bool) {
	if from == to {
		return []Fingerprint{from}, true
	}
	if visited[from] {
		return nil, false
	}
	visited[from] = true

	for _, next := range e.depGraph[from] {
		if path, found := e.findPath(next, to, visited); found {
			return append([]Fingerprint{from}, path...), true
		}
	}
	return nil, false
}
