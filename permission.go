package originfs

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// PermissionMode selects which capability a permission check covers.
type PermissionMode string

const (
	PermissionRead      PermissionMode = "read"
	PermissionReadWrite PermissionMode = "readwrite"
)

// PermissionState is the outcome of a permission query or request.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	// PermissionPrompt means no decision has been made yet and the
	// caller should use RequestPermission to obtain one.
	PermissionPrompt PermissionState = "prompt"
)

// PermissionFunc decides the permission state for a path. The request
// argument is true when the caller explicitly asked for the permission
// through RequestPermission, and false for passive queries; handlers
// that involve a user prompt should only do so when request is true.
type PermissionFunc func(path string, mode PermissionMode, request bool) PermissionState

// permissionCache memoizes handler decisions for a bounded TTL so that
// hot paths are not re-litigated on every operation.
type permissionCache struct {
	handler PermissionFunc
	cache   *cache.Cache
}

func newPermissionCache(handler PermissionFunc, ttl time.Duration) *permissionCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &permissionCache{
		handler: handler,
		cache:   cache.New(ttl, ttl*2),
	}
}

func (p *permissionCache) key(path string, mode PermissionMode) string {
	return string(mode) + "|" + path
}

// Query returns the current decision for path without prompting. When
// no handler is configured everything is granted, the origin owns its
// own private root.
func (p *permissionCache) Query(path string, mode PermissionMode) PermissionState {
	if p.handler == nil {
		return PermissionGranted
	}
	// A granted readwrite decision implies read.
	if mode == PermissionRead {
		if v, ok := p.cache.Get(p.key(path, PermissionReadWrite)); ok && v.(PermissionState) == PermissionGranted {
			return PermissionGranted
		}
	}
	if v, ok := p.cache.Get(p.key(path, mode)); ok {
		return v.(PermissionState)
	}
	state := p.handler(path, mode, false)
	if state == "" {
		state = PermissionPrompt
	}
	// Prompt is the absence of a decision, don't pin it in the cache.
	if state != PermissionPrompt {
		p.cache.SetDefault(p.key(path, mode), state)
	}
	return state
}

// Request asks the handler for an explicit decision. A cached denial
// stands until it expires so handlers are not spammed with prompts.
func (p *permissionCache) Request(path string, mode PermissionMode) PermissionState {
	if p.handler == nil {
		return PermissionGranted
	}
	if v, ok := p.cache.Get(p.key(path, mode)); ok && v.(PermissionState) == PermissionDenied {
		return PermissionDenied
	}
	state := p.handler(path, mode, true)
	if state == "" || state == PermissionPrompt {
		// An explicit request must resolve one way or the other.
		state = PermissionDenied
	}
	p.cache.SetDefault(p.key(path, mode), state)
	return state
}

// Forget drops any cached decisions for path.
func (p *permissionCache) Forget(path string) {
	p.cache.Delete(p.key(path, PermissionRead))
	p.cache.Delete(p.key(path, PermissionReadWrite))
}
