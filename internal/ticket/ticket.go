// Package ticket implements single-writer mutual exclusion per analyzer:
// whichever caller successfully SETNX's ticket:{analyzerID} holds the
// exclusive right to mutate that analyzer's worker until the ticket is
// deleted.
package ticket

import (
	"context"
	"fmt"

	"github.com/weitingchou/jagereye/internal/store"
)

const keyPrefix = "ticket:"

func key(analyzerID string) string {
	return keyPrefix + analyzerID
}

// Agent grants and releases tickets against a Store.
type Agent struct {
	store store.Store
}

// New returns a ticket Agent over store.
func New(s store.Store) *Agent {
	return &Agent{store: s}
}

// Acquire attempts to take the ticket for analyzerID, stamping ticketID as
// its value. Returns false, no error if another ticket is already held.
func (a *Agent) Acquire(ctx context.Context, analyzerID, ticketID string) (bool, error) {
	ok, err := a.store.SetNX(ctx, key(analyzerID), ticketID)
	if err != nil {
		return false, fmt.Errorf("ticket: acquire %s: %w", analyzerID, err)
	}
	return ok, nil
}

// Holder returns the ticket ID currently held for analyzerID, if any.
func (a *Agent) Holder(ctx context.Context, analyzerID string) (string, bool, error) {
	v, ok, err := a.store.Get(ctx, key(analyzerID))
	if err != nil {
		return "", false, fmt.Errorf("ticket: holder %s: %w", analyzerID, err)
	}
	return v, ok, nil
}

// Release deletes the ticket for analyzerID unconditionally. Callers are
// expected to have already confirmed they hold it, via Holder, before
// calling Release -- the store has no compare-and-delete primitive.
func (a *Agent) Release(ctx context.Context, analyzerID string) error {
	if _, err := a.store.Delete(ctx, key(analyzerID)); err != nil {
		return fmt.Errorf("ticket: release %s: %w", analyzerID, err)
	}
	return nil
}

// IsHeldBy reports whether ticketID is the current holder for analyzerID.
func (a *Agent) IsHeldBy(ctx context.Context, analyzerID, ticketID string) (bool, error) {
	holder, ok, err := a.Holder(ctx, analyzerID)
	if err != nil {
		return false, err
	}
	return ok && holder == ticketID, nil
}

// AcquireMany grants tickets for several analyzers in one call, keyed by
// analyzerID -> ticketID. Each grant is independent; the returned map
// reports which analyzerIDs were newly acquired.
func (a *Agent) AcquireMany(ctx context.Context, tickets map[string]string) (map[string]bool, error) {
	out := make(map[string]bool, len(tickets))
	for analyzerID, ticketID := range tickets {
		ok, err := a.Acquire(ctx, analyzerID, ticketID)
		if err != nil {
			return out, err
		}
		out[analyzerID] = ok
	}
	return out, nil
}

// ReleaseMany deletes tickets for several analyzers in one batch.
func (a *Agent) ReleaseMany(ctx context.Context, analyzerIDs ...string) error {
	if len(analyzerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(analyzerIDs))
	for i, id := range analyzerIDs {
		keys[i] = key(id)
	}
	if _, err := a.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("ticket: release many: %w", err)
	}
	return nil
}
