// Package observability provides hooks for metrics and tracing.
//
// The package uses a simple hooks pattern: interfaces per event
// category, no-op defaults, and registration by main at startup.
// Libraries emit events without depending on any metrics backend:
//
//	runID := observability.NewRunID()
//	observability.Resolve().OnResolveStart(ctx, runID, len(roots))
//	// ... resolve ...
//	observability.Resolve().OnResolveComplete(ctx, runID, count, time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a unique identifier for one resolution run, used
// to correlate hook events and debug logs.
func NewRunID() string {
	return uuid.NewString()
}

// ResolveHooks receives events from resolution runs.
type ResolveHooks interface {
	OnResolveStart(ctx context.Context, runID string, rootCount int)
	OnResolveComplete(ctx context.Context, runID string, packageCount int, duration time.Duration, err error)
}

// CacheHooks receives events from byte-cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, key string)
	OnCacheMiss(ctx context.Context, key string)
	OnCacheSet(ctx context.Context, key string, size int)
}

// RegistryHooks receives events from registry metadata lookups.
type RegistryHooks interface {
	OnFetch(ctx context.Context, pkg string)
	OnFetchComplete(ctx context.Context, pkg string, duration time.Duration, err error)
}

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolveStart(context.Context, string, int) {}
func (NoopResolveHooks) OnResolveComplete(context.Context, string, int, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnFetch(context.Context, string)                               {}
func (NoopRegistryHooks) OnFetchComplete(context.Context, string, time.Duration, error) {}

var (
	resolveHooks  ResolveHooks  = NoopResolveHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	registryHooks RegistryHooks = NoopRegistryHooks{}
	hooksMu       sync.RWMutex
)

// SetResolveHooks registers custom resolve hooks. Call once at
// application startup before any resolution.
func SetResolveHooks(h ResolveHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolveHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetRegistryHooks registers custom registry hooks.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// Resolve returns the registered resolve hooks.
func Resolve() ResolveHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolveHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Registry returns the registered registry hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Reset restores all hooks to their no-op defaults. Primarily useful
// for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	resolveHooks = NoopResolveHooks{}
	cacheHooks = NoopCacheHooks{}
	registryHooks = NoopRegistryHooks{}
}
