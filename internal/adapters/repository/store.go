// Package repository persists ranking records and evaluations.
package repository

import (
	"context"
	"time"

	"github.com/okian/reputation/internal/domain/model"
)

// RecordUpdate is the new state written by one evaluation.
type RecordUpdate struct {
	Score          int
	Tier           model.Tier
	IncrementCount bool // adds one to TotalEvaluations in the same write
}

// Tx is the set of operations available inside Atomically.
type Tx interface {
	// FindRecord returns ErrNotFound if the party has no record.
	FindRecord(ctx context.Context, partyID string) (model.Record, error)
	// EnsureRecord inserts the initial record if absent and returns the current one.
	EnsureRecord(ctx context.Context, partyID string, now time.Time) (model.Record, error)
	// UpsertRecord writes score and tier, optionally incrementing the count.
	UpsertRecord(ctx context.Context, partyID string, upd RecordUpdate, now time.Time) (model.Record, error)
	ExistsEvaluation(ctx context.Context, transactionID string) (bool, error)
	// InsertEvaluation returns ErrDuplicate if the transaction was already rated.
	InsertEvaluation(ctx context.Context, ev model.Evaluation) (model.Evaluation, error)
}

// Store provides read/write access to the ranking state.
type Store interface {
	Tx

	// ListEvaluations returns the party's evaluations, newest first.
	ListEvaluations(ctx context.Context, partyID string) ([]model.Evaluation, error)
	// TopRecords returns up to n records ordered by score desc, party id asc.
	TopRecords(ctx context.Context, n int) ([]model.Record, error)
	CountRecords(ctx context.Context) (int, error)

	// Atomically runs fn in a transaction. It commits when fn returns nil and
	// discards every write otherwise.
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Backend names the implementation for metrics and logs.
	Backend() string
	Close() error
}
