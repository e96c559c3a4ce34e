// Package memory provides the in-process scan registry. Scans live only for
// the lifetime of the service; durable persistence is handled by the
// surrounding platform.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// ScanRepository is a lock-guarded in-memory implementation of
// scan.Repository. Reads return deep copies taken under the lock so callers
// never observe a scan mid-mutation, and Update is the single writer path.
type ScanRepository struct {
	mu    sync.RWMutex
	scans map[shared.ID]*scan.Scan
}

// NewScanRepository creates an empty scan registry.
func NewScanRepository() *ScanRepository {
	return &ScanRepository{
		scans: make(map[shared.ID]*scan.Scan),
	}
}

// Create registers a new scan. Creating an already-registered ID is a
// conflict.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scans[s.ID]; exists {
		return shared.NewDomainError("CONFLICT", "scan already exists", shared.ErrConflict)
	}
	r.scans[s.ID] = s.Clone()
	return nil
}

// Get returns a deep copy of the scan taken under the registry lock.
func (r *ScanRepository) Get(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scans[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return s.Clone(), nil
}

// List returns copies of scans matching the filter, newest first.
func (r *ScanRepository) List(ctx context.Context, filter scan.Filter) ([]*scan.Scan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*scan.Scan, 0, len(r.scans))
	for _, s := range r.scans {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.Backend != nil && s.Backend != *filter.Backend {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies fn to the live scan while holding the registry lock. If fn
// returns an error the scan is left untouched.
func (r *ScanRepository) Update(ctx context.Context, id shared.ID, fn func(*scan.Scan) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scans[id]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}

	// Mutate a copy first so a failing fn cannot leave a half-applied scan.
	cp := s.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	r.scans[id] = cp
	return nil
}

// Delete removes a scan from the registry.
func (r *ScanRepository) Delete(ctx context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scans[id]; !ok {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	delete(r.scans, id)
	return nil
}

// DeleteTerminalBefore removes terminal scans that completed before the cutoff
// and returns the removed scans so callers can clean up their artifacts.
func (r *ScanRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*scan.Scan
	for id, s := range r.scans {
		if !s.Status.IsTerminal() {
			continue
		}
		if s.CompletedAt == nil || !s.CompletedAt.Before(cutoff) {
			continue
		}
		removed = append(removed, s)
		delete(r.scans, id)
	}
	return removed, nil
}

// Len returns the current registry size.
func (r *ScanRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scans)
}
