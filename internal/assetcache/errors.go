// ABOUTME: Error taxonomy for asset loading
// ABOUTME: All load failures degrade to a placeholder and are reported through events only

package assetcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkTimeout is reported when the fetch did not finish before the deadline.
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrNetworkFailure covers transport errors and non-success responses.
	ErrNetworkFailure = errors.New("network failure")

	// ErrDecodeFailure is reported when the response body could not be read or was empty.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrCachePersist is logged when the durable write-through fails. It never
	// affects the returned handle.
	ErrCachePersist = errors.New("cache persist failure")

	// ErrCleared is reported to callers whose fetch was aborted by Clear.
	ErrCleared = errors.New("asset cache cleared")

	// ErrInvalidID is reported for ids that cannot identify an asset.
	ErrInvalidID = errors.New("invalid asset id")
)

// LoadError describes why a load degraded to the placeholder.
type LoadError struct {
	ID         int
	Err        error
	Background bool
}

func (e LoadError) Error() string {
	return fmt.Sprintf("loading asset %d: %v", e.ID, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}
