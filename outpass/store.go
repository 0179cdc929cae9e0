/*
store.go - Persistence interfaces for the outpass engine

PURPOSE:
  The engine talks to storage through these interfaces; implementations
  live in store/sqlite (production) and outpass/store (in-memory, for
  tests and dev).

CONCURRENCY CONTRACT:
  UpdatePassIf is the only way a pass changes after creation, and it is a
  compare-and-swap: the write is conditioned on the expected prior status
  and token, and a write matching zero records returns
  ErrConflictingTransition. Two checkpoint devices racing on the same scan
  therefore produce exactly one transition; the loser re-fetches.

SCAN EVENTS:
  Accepted scans append to an audit log (append-only, never updated).
*/
package outpass

import (
	"context"
	"time"
)

// PassStore persists passes and the checkpoint scan audit log.
type PassStore interface {
	// CreatePass inserts a new pass. The id must be unique.
	CreatePass(ctx context.Context, p *Pass) error

	// GetPass returns ErrPassNotFound for unknown ids.
	GetPass(ctx context.Context, id string) (*Pass, error)

	// GetPassByToken resolves the sole verification key used at
	// checkpoints. Returns ErrPassNotFound for unknown tokens.
	GetPassByToken(ctx context.Context, token string) (*Pass, error)

	// ListByStudent returns the student's passes in the given statuses,
	// most recently updated first.
	ListByStudent(ctx context.Context, studentRef string, statuses ...Status) ([]*Pass, error)

	// ListByStatus returns all passes in the given statuses, most
	// recently approved first (security dashboard view).
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Pass, error)

	// CountInQuota counts the student's passes in the given quota period
	// whose status is one of the given statuses.
	CountInQuota(ctx context.Context, studentRef string, period QuotaPeriod, statuses ...Status) (int, error)

	// UpdatePassIf writes every mutable field of p, conditioned on the
	// stored row still having the expected status and token. Zero rows
	// matched means the caller lost a race: ErrConflictingTransition.
	UpdatePassIf(ctx context.Context, p *Pass, expectStatus Status, expectToken string) error

	// AppendScanEvent records an accepted checkpoint scan.
	AppendScanEvent(ctx context.Context, ev ScanEvent) error

	// RecentScanEvents returns up to limit events at or after since,
	// newest first.
	RecentScanEvents(ctx context.Context, since time.Time, limit int) ([]ScanEvent, error)

	// CountByStatus counts passes currently in the given status.
	CountByStatus(ctx context.Context, status Status) (int, error)

	// CountReturnedSince counts passes whose actual return was stamped at
	// or after the given time.
	CountReturnedSince(ctx context.Context, since time.Time) (int, error)
}
