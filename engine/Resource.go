package engine

import (
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * Resources (§4.9)
 *
 * A resource is host-side state injected into the engine at construction
 * (the corpus's equivalent is utils.CommandEnv's global singletons --
 * the HAL, the thread pool, the source-control provider -- each reachable
 * from anywhere but none of them serialized into a build fingerprint
 * wholesale). Here, only a resource's *lifetime contribution* ever
 * touches a fingerprint; its contents never do.
 ***************************************/

type ResourceLifetime int32

const (
	// RESOURCE_IDEMPOTENT resources contribute nothing to a fingerprint:
	// one logical value holds across every build using this engine.
	RESOURCE_IDEMPOTENT ResourceLifetime = iota
	// RESOURCE_VERSIONED resources contribute their declared integer
	// version; bumping it invalidates every dependent cache entry.
	RESOURCE_VERSIONED
	// RESOURCE_REQUESTONLY resources contribute the engine's buildID, so
	// their values are never shared across engine lifetimes.
	RESOURCE_REQUESTONLY
)

func (x ResourceLifetime) String() string {
	switch x {
	case RESOURCE_IDEMPOTENT:
		return "IDEMPOTENT"
	case RESOURCE_VERSIONED:
		return "VERSIONED"
	case RESOURCE_REQUESTONLY:
		return "REQUESTONLY"
	default:
		base.UnexpectedValue(x)
		return ""
	}
}

// ResourceKey identifies a resource registered with the engine.
type ResourceKey string

// Resource is a host-side value a Key.Compute can request through
// ComputeContext.Resource, gated by Key.ResourceEntitlements.
type Resource interface {
	ResourceKey() ResourceKey
	Lifetime() ResourceLifetime
	// Version is read only when Lifetime() == RESOURCE_VERSIONED.
	Version() int
}

// resourceRegistry is a simple name->Resource table, populated once at
// engine construction and read-only afterward (mirrors the teacher's
// CommandEnv global singleton wiring, minus the global: resources are
// dependency-injected into an Engine instance rather than process-wide).
type resourceRegistry struct {
	byKey map[ResourceKey]Resource
}

func newResourceRegistry(resources ...Resource) resourceRegistry {
	byKey := make(map[ResourceKey]Resource, len(resources))
	for _, r := range resources {
		byKey[r.ResourceKey()] = r
	}
	return resourceRegistry{byKey: byKey}
}

func (r resourceRegistry) find(key ResourceKey) (Resource, bool) {
	res, ok := r.byKey[key]
	return res, ok
}

// fingerprintContribution returns the bytes a resource contributes to a
// fingerprint: nothing for idempotent resources, the declared version for
// versioned ones, and the engine's buildID for request-scoped ones.
func fingerprintContribution(res Resource, buildID string) []byte {
	switch res.Lifetime() {
	case RESOURCE_IDEMPOTENT:
		return nil
	case RESOURCE_VERSIONED:
		return []byte{
			byte(res.Version()), byte(res.Version() >> 8),
			byte(res.Version() >> 16), byte(res.Version() >> 24),
		}
	case RESOURCE_REQUESTONLY:
		return []byte(buildID)
	default:
		base.UnexpectedValue(res.Lifetime())
		return nil
	}
}
