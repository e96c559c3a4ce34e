package scan

import (
	"context"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Filter narrows List results.
type Filter struct {
	Status  *Status
	Backend *Backend
}

// Repository defines the scan registry shared by admission, the orchestrator
// and the progress publisher. Implementations must guarantee that Get returns
// a consistent point-in-time copy and that Update mutations are mutually
// exclusive.
type Repository interface {
	// Create registers a new scan.
	Create(ctx context.Context, s *Scan) error

	// Get returns a deep copy of the scan taken under the registry lock.
	// It never blocks on in-flight processing.
	Get(ctx context.Context, id shared.ID) (*Scan, error)

	// List returns copies of scans matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Scan, error)

	// Update applies fn to the live scan while holding the registry lock.
	// This is the single writer path for orchestrator mutations.
	Update(ctx context.Context, id shared.ID, fn func(*Scan) error) error

	// Delete removes a scan from the registry.
	Delete(ctx context.Context, id shared.ID) error

	// DeleteTerminalBefore removes terminal scans that completed before the
	// cutoff and returns the removed scans.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]*Scan, error)
}
