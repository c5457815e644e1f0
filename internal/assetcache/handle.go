// ABOUTME: Asset handle type returned by the cache and its load status
// ABOUTME: Handles carry an opaque local reference plus the loaded bytes until revoked

package assetcache

import (
	"fmt"
	"sync/atomic"
)

// Status describes the state of an asset handle.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFallback
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFallback:
		return "fallback"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Handle is the result of resolving an asset id.
// A Ready handle is immutable; Clear revokes it, after which Bytes returns nil.
type Handle struct {
	ID     int
	Ref    string
	Status Status

	data    []byte
	revoked atomic.Bool
}

// Bytes returns the asset payload. Placeholders and revoked handles have none.
func (h *Handle) Bytes() []byte {
	if h.revoked.Load() {
		return nil
	}
	return h.data
}

// Revoked reports whether the cache has released the handle.
func (h *Handle) Revoked() bool {
	return h.revoked.Load()
}

// Placeholder reports whether the handle is the synthetic fallback.
func (h *Handle) Placeholder() bool {
	return h.Status == StatusFallback
}

func (h *Handle) revoke() {
	h.revoked.Store(true)
}

// Filename returns the deterministic name used for the remote object and
// the durable cache entry of an asset.
func Filename(id int) string {
	return fmt.Sprintf("modelo%d.glb", id)
}

// PlaceholderRef returns the reference handed out when the real asset
// cannot be fetched.
func PlaceholderRef(id int) string {
	return fmt.Sprintf("data:text/plain,Chapter %d Model Placeholder", id)
}

func newPlaceholder(id int) *Handle {
	return &Handle{
		ID:     id,
		Ref:    PlaceholderRef(id),
		Status: StatusFallback,
	}
}
