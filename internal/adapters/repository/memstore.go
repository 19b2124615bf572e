package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore keeps records and evaluations in maps guarded by one RWMutex.
// Writes inside Atomically are staged and applied on commit.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]model.Record
	evaluations map[string][]model.Evaluation // by rated party, in insert order
	txIDs       map[string]struct{}
	closed      bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]model.Record),
		evaluations: make(map[string][]model.Evaluation),
		txIDs:       make(map[string]struct{}),
	}
}

func (s *MemoryStore) Backend() string { return backendMemory }

func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	switch {
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		metrics.RecordStoreError(backend, op)
	}
}

// FindRecord returns the record of partyID.
func (s *MemoryStore) FindRecord(ctx context.Context, partyID string) (rec model.Record, err error) {
	defer func(start time.Time) { observe(backendMemory, "find_record", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Record{}, ErrClosed
	}
	rec, ok := s.records[partyID]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return rec, nil
}

// ExistsEvaluation reports whether transactionID was already rated.
func (s *MemoryStore) ExistsEvaluation(ctx context.Context, transactionID string) (exists bool, err error) {
	defer func(start time.Time) { observe(backendMemory, "exists_evaluation", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, exists = s.txIDs[transactionID]
	return exists, nil
}

// EnsureRecord creates the initial record of partyID when absent.
func (s *MemoryStore) EnsureRecord(ctx context.Context, partyID string, now time.Time) (rec model.Record, err error) {
	err = s.Atomically(ctx, func(tx Tx) error {
		rec, err = tx.EnsureRecord(ctx, partyID, now)
		return err
	})
	return rec, err
}

// UpsertRecord writes a record update outside of an explicit transaction.
func (s *MemoryStore) UpsertRecord(ctx context.Context, partyID string, upd RecordUpdate, now time.Time) (rec model.Record, err error) {
	err = s.Atomically(ctx, func(tx Tx) error {
		rec, err = tx.UpsertRecord(ctx, partyID, upd, now)
		return err
	})
	return rec, err
}

// InsertEvaluation appends an evaluation outside of an explicit transaction.
func (s *MemoryStore) InsertEvaluation(ctx context.Context, ev model.Evaluation) (out model.Evaluation, err error) {
	err = s.Atomically(ctx, func(tx Tx) error {
		out, err = tx.InsertEvaluation(ctx, ev)
		return err
	})
	return out, err
}

// ListEvaluations returns the evaluations of partyID, newest first.
func (s *MemoryStore) ListEvaluations(ctx context.Context, partyID string) (out []model.Evaluation, err error) {
	defer func(start time.Time) { observe(backendMemory, "list_evaluations", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	stored := s.evaluations[partyID]
	out = make([]model.Evaluation, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, cloneEvaluation(stored[i]))
	}
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	slices.SortStableFunc(out, func(a, b model.Evaluation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// TopRecords returns the n best records.
func (s *MemoryStore) TopRecords(ctx context.Context, n int) (out []model.Record, err error) {
	defer func(start time.Time) { observe(backendMemory, "top_records", start, err) }(time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out = make([]model.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, lessRecord)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// CountRecords returns the number of parties with a record.
func (s *MemoryStore) CountRecords(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Atomically runs fn with the store write lock held. Staged writes are
// applied only if fn returns nil.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Tx) error) (err error) {
	defer func(start time.Time) { observe(backendMemory, "transaction", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{
		store:   s,
		records: make(map[string]model.Record),
		txIDs:   make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Close marks the store closed. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memTx stages writes on top of the store. The store lock is held by
// Atomically for the lifetime of the transaction.
type memTx struct {
	store   *MemoryStore
	records map[string]model.Record
	evals   []model.Evaluation
	txIDs   map[string]struct{}
}

func (tx *memTx) FindRecord(ctx context.Context, partyID string) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	if rec, ok := tx.records[partyID]; ok {
		return rec, nil
	}
	if rec, ok := tx.store.records[partyID]; ok {
		return rec, nil
	}
	return model.Record{}, ErrNotFound
}

func (tx *memTx) EnsureRecord(ctx context.Context, partyID string, now time.Time) (model.Record, error) {
	rec, err := tx.FindRecord(ctx, partyID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Record{}, err
	}
	rec = model.NewRecord(partyID, now)
	tx.records[partyID] = rec
	return rec, nil
}

func (tx *memTx) UpsertRecord(ctx context.Context, partyID string, upd RecordUpdate, now time.Time) (model.Record, error) {
	rec, err := tx.EnsureRecord(ctx, partyID, now)
	if err != nil {
		return model.Record{}, err
	}
	rec.Score = upd.Score
	rec.Tier = upd.Tier
	if upd.IncrementCount {
		rec.TotalEvaluations++
	}
	rec.UpdatedAt = now
	tx.records[partyID] = rec
	return rec, nil
}

func (tx *memTx) ExistsEvaluation(ctx context.Context, transactionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := tx.txIDs[transactionID]; ok {
		return true, nil
	}
	_, ok := tx.store.txIDs[transactionID]
	return ok, nil
}

func (tx *memTx) InsertEvaluation(ctx context.Context, ev model.Evaluation) (model.Evaluation, error) {
	exists, err := tx.ExistsEvaluation(ctx, ev.TransactionID)
	if err != nil {
		return model.Evaluation{}, err
	}
	if exists {
		return model.Evaluation{}, ErrDuplicate
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev = cloneEvaluation(ev)
	tx.txIDs[ev.TransactionID] = struct{}{}
	tx.evals = append(tx.evals, ev)
	return cloneEvaluation(ev), nil
}

func (tx *memTx) commit() {
	s := tx.store
	for id, rec := range tx.records {
		s.records[id] = rec
	}
	for id := range tx.txIDs {
		s.txIDs[id] = struct{}{}
	}
	for _, ev := range tx.evals {
		s.evaluations[ev.RatedID] = append(s.evaluations[ev.RatedID], ev)
	}
}

func cloneEvaluation(ev model.Evaluation) model.Evaluation {
	ev.Positive = slices.Clone(ev.Positive)
	ev.Negative = slices.Clone(ev.Negative)
	return ev
}
