package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/model"
)

const backendSQLite = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS ranking_records (
	party_id TEXT PRIMARY KEY,
	score INTEGER NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 100),
	tier TEXT NOT NULL,
	total_evaluations INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ranking_records_score ON ranking_records(score DESC, party_id ASC);

CREATE TABLE IF NOT EXISTS evaluations (
	id TEXT PRIMARY KEY,
	rater_id TEXT NOT NULL,
	rated_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL UNIQUE,
	positive TEXT NOT NULL DEFAULT '[]',
	negative TEXT NOT NULL DEFAULT '[]',
	comment TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_rated ON evaluations(rated_id, created_at DESC);
`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore persists the ranking state in a SQLite database.
// Timestamps are stored as unix nanoseconds and aspect lists as JSON arrays.
type SQLiteStore struct {
	db          *sql.DB
	ops         sqlOps
	busyTimeout time.Duration
	journalMode string
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout: 5 * time.Second,
		journalMode: "WAL",
	}
	for _, opt := range opts {
		opt(s)
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busyTimeout.Milliseconds()))
	q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", s.journalMode))
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s.db = db
	s.ops = sqlOps{q: db}
	return s, nil
}

func (s *SQLiteStore) Backend() string { return backendSQLite }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindRecord(ctx context.Context, partyID string) (rec model.Record, err error) {
	defer func(start time.Time) { observe(backendSQLite, "find_record", start, err) }(time.Now())
	return s.ops.FindRecord(ctx, partyID)
}

func (s *SQLiteStore) EnsureRecord(ctx context.Context, partyID string, now time.Time) (rec model.Record, err error) {
	defer func(start time.Time) { observe(backendSQLite, "ensure_record", start, err) }(time.Now())
	return s.ops.EnsureRecord(ctx, partyID, now)
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, partyID string, upd RecordUpdate, now time.Time) (rec model.Record, err error) {
	defer func(start time.Time) { observe(backendSQLite, "upsert_record", start, err) }(time.Now())
	return s.ops.UpsertRecord(ctx, partyID, upd, now)
}

func (s *SQLiteStore) ExistsEvaluation(ctx context.Context, transactionID string) (exists bool, err error) {
	defer func(start time.Time) { observe(backendSQLite, "exists_evaluation", start, err) }(time.Now())
	return s.ops.ExistsEvaluation(ctx, transactionID)
}

func (s *SQLiteStore) InsertEvaluation(ctx context.Context, ev model.Evaluation) (out model.Evaluation, err error) {
	defer func(start time.Time) { observe(backendSQLite, "insert_evaluation", start, err) }(time.Now())
	return s.ops.InsertEvaluation(ctx, ev)
}

// ListEvaluations returns the party's evaluations, newest first.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, partyID string) (out []model.Evaluation, err error) {
	defer func(start time.Time) { observe(backendSQLite, "list_evaluations", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rater_id, rated_id, transaction_id, positive, negative, comment, created_at
		FROM evaluations WHERE rated_id = ?
		ORDER BY created_at DESC, rowid DESC`, partyID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out = []model.Evaluation{}
	for rows.Next() {
		var (
			ev                 model.Evaluation
			positive, negative string
			createdAt          int64
		)
		if err := rows.Scan(&ev.ID, &ev.RaterID, &ev.RatedID, &ev.TransactionID,
			&positive, &negative, &ev.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		if err := json.Unmarshal([]byte(positive), &ev.Positive); err != nil {
			return nil, fmt.Errorf("decode positive aspects: %w", err)
		}
		if err := json.Unmarshal([]byte(negative), &ev.Negative); err != nil {
			return nil, fmt.Errorf("decode negative aspects: %w", err)
		}
		ev.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}

// TopRecords returns the n best records.
func (s *SQLiteStore) TopRecords(ctx context.Context, n int) (out []model.Record, err error) {
	defer func(start time.Time) { observe(backendSQLite, "top_records", start, err) }(time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT party_id, score, tier, total_evaluations, created_at, updated_at
		FROM ranking_records ORDER BY score DESC, party_id ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top records: %w", err)
	}
	defer rows.Close()

	out = make([]model.Record, 0, n)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// CountRecords returns the number of parties with a record.
func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ranking_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Atomically runs fn inside a database transaction.
func (s *SQLiteStore) Atomically(ctx context.Context, fn func(tx Tx) error) (err error) {
	defer func(start time.Time) { observe(backendSQLite, "transaction", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(sqlOps{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// sqlOps implements Tx on top of a querier.
type sqlOps struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (model.Record, error) {
	var (
		rec                  model.Record
		tier                 string
		createdAt, updatedAt int64
	)
	if err := r.Scan(&rec.PartyID, &rec.Score, &tier, &rec.TotalEvaluations, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Tier = model.Tier(tier)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

func (o sqlOps) FindRecord(ctx context.Context, partyID string) (model.Record, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT party_id, score, tier, total_evaluations, created_at, updated_at
		FROM ranking_records WHERE party_id = ?`, partyID)
	return scanRecord(row)
}

func (o sqlOps) EnsureRecord(ctx context.Context, partyID string, now time.Time) (model.Record, error) {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO ranking_records (party_id, score, tier, total_evaluations, created_at, updated_at)
		VALUES (?, 0, ?, 0, ?, ?)
		ON CONFLICT(party_id) DO NOTHING`,
		partyID, string(model.TierBronze), now.UnixNano(), now.UnixNano())
	if err != nil {
		return model.Record{}, fmt.Errorf("ensure record: %w", err)
	}
	return o.FindRecord(ctx, partyID)
}

func (o sqlOps) UpsertRecord(ctx context.Context, partyID string, upd RecordUpdate, now time.Time) (model.Record, error) {
	inc := 0
	if upd.IncrementCount {
		inc = 1
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO ranking_records (party_id, score, tier, total_evaluations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET
			score = excluded.score,
			tier = excluded.tier,
			total_evaluations = ranking_records.total_evaluations + excluded.total_evaluations,
			updated_at = excluded.updated_at`,
		partyID, upd.Score, string(upd.Tier), inc, now.UnixNano(), now.UnixNano())
	if err != nil {
		return model.Record{}, fmt.Errorf("upsert record: %w", err)
	}
	return o.FindRecord(ctx, partyID)
}

func (o sqlOps) ExistsEvaluation(ctx context.Context, transactionID string) (bool, error) {
	var one int
	err := o.q.QueryRowContext(ctx,
		`SELECT 1 FROM evaluations WHERE transaction_id = ?`, transactionID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check evaluation: %w", err)
	default:
		return true, nil
	}
}

func (o sqlOps) InsertEvaluation(ctx context.Context, ev model.Evaluation) (model.Evaluation, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	positive, err := encodeCodes(ev.Positive)
	if err != nil {
		return model.Evaluation{}, err
	}
	negative, err := encodeCodes(ev.Negative)
	if err != nil {
		return model.Evaluation{}, err
	}

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO evaluations (id, rater_id, rated_id, transaction_id, positive, negative, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RaterID, ev.RatedID, ev.TransactionID, positive, negative, ev.Comment, ev.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return model.Evaluation{}, ErrDuplicate
		}
		return model.Evaluation{}, fmt.Errorf("insert evaluation: %w", err)
	}
	return ev, nil
}

func encodeCodes(codes []catalog.Code) (string, error) {
	if codes == nil {
		codes = []catalog.Code{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode aspects: %w", err)
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
