// Copyright 2025 The Sah Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cost

import (
	"context"
	"database/sql"
	"embed"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/wballard/swissarmyhammer-sub003/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultBatchSize and DefaultFlushInterval bound how long a write can sit
// in the Manager's queue before being committed.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 200 * time.Millisecond
	cacheTTL             = 30 * time.Second
	flushGracePeriod     = 2 * time.Second
)

type opKind int

const (
	opUpsertSession opKind = iota
	opGetSession
	opFlush
)

type storageOp struct {
	kind    opKind
	session *CostSession
	id      string
	reply   chan storageReply
}

type storageReply struct {
	session *CostSession
	err     error
}

// ManagerStats exposes the Async Storage Manager's observability counters.
type ManagerStats struct {
	TotalOperations      int64
	BatchedOperations    int64
	CacheHits            int64
	CacheMisses          int64
	FlushCount           int64
	TotalFlushTimeMicros int64
}

// AvgBatchSize returns BatchedOperations/FlushCount, or 0 if no flush has
// happened yet.
func (s ManagerStats) AvgBatchSize() float64 {
	if s.FlushCount == 0 {
		return 0
	}
	return float64(s.BatchedOperations) / float64(s.FlushCount)
}

type cacheEntry struct {
	session *CostSession
	expires time.Time
}

// Manager is the Async Storage Manager (§4.7): a single background
// goroutine batches writes onto a durable modernc.org/sqlite-backed store,
// fronted by a short-TTL write-behind cache.
type Manager struct {
	db     *sql.DB
	queue  chan storageOp
	cache  sync.Map // session id -> cacheEntry
	stats  managerStatsAtomic
	closed chan struct{}

	batchSize     int
	flushInterval time.Duration
}

type managerStatsAtomic struct {
	totalOperations      atomic.Int64
	batchedOperations    atomic.Int64
	cacheHits            atomic.Int64
	cacheMisses          atomic.Int64
	flushCount           atomic.Int64
	totalFlushTimeMicros atomic.Int64
}

// NewManager opens (creating if necessary) a sqlite database at dsn,
// applies pending migrations, and starts the batching worker.
func NewManager(dsn string) (*Manager, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &errors.ResourceError{Resource: "sqlite", Message: "open failed", Cause: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &errors.ResourceError{Resource: "sqlite", Message: "ping failed", Cause: err}
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:            db,
		queue:         make(chan storageOp, 4096),
		closed:        make(chan struct{}),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
	}
	go m.run()
	return m, nil
}

func applyMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return &errors.ResourceError{Resource: "sqlite", Message: "migration driver init failed", Cause: err}
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return &errors.ResourceError{Resource: "sqlite", Message: "migration source init failed", Cause: err}
	}
	defer source.Close()

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return &errors.ResourceError{Resource: "sqlite", Message: "migrate instance init failed", Cause: err}
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return &errors.ResourceError{Resource: "sqlite", Message: "migration apply failed", Cause: err}
	}
	return nil
}

// Close stops the worker and closes the underlying database. Pending
// operations already queued are drained before shutdown.
func (m *Manager) Close() error {
	close(m.queue)
	<-m.closed
	return m.db.Close()
}

// UpsertSession enqueues a session write, batched with concurrent writes,
// and waits for it to be committed.
func (m *Manager) UpsertSession(ctx context.Context, s *CostSession) error {
	reply := make(chan storageReply, 1)
	cp := *s
	op := storageOp{kind: opUpsertSession, session: &cp, reply: reply}

	select {
	case m.queue <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case r := <-reply:
		if r.err == nil {
			m.cache.Store(s.SessionID, cacheEntry{session: &cp, expires: time.Now().Add(cacheTTL)})
		}
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetSession consults the write-behind cache first, falling back to the
// durable store on a miss.
func (m *Manager) GetSession(ctx context.Context, id string) (*CostSession, error) {
	if v, ok := m.cache.Load(id); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expires) {
			m.stats.cacheHits.Add(1)
			cp := *entry.session
			return &cp, nil
		}
		m.cache.Delete(id)
	}
	m.stats.cacheMisses.Add(1)

	reply := make(chan storageReply, 1)
	op := storageOp{kind: opGetSession, id: id, reply: reply}
	select {
	case m.queue <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		if r.session != nil {
			m.cache.Store(id, cacheEntry{session: r.session, expires: time.Now().Add(cacheTTL)})
		}
		return r.session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Flush forces the worker to commit its current in-flight batch
// immediately rather than waiting for flushInterval, blocking up to a
// short grace period for completion.
func (m *Manager) Flush(ctx context.Context) error {
	reply := make(chan storageReply, 1)
	op := storageOp{kind: opFlush, reply: reply}

	flushCtx, cancel := context.WithTimeout(ctx, flushGracePeriod)
	defer cancel()

	select {
	case m.queue <- op:
	case <-flushCtx.Done():
		return flushCtx.Err()
	}
	select {
	case r := <-reply:
		return r.err
	case <-flushCtx.Done():
		return flushCtx.Err()
	}
}

// Stats returns a snapshot of the worker's observability counters.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		TotalOperations:      m.stats.totalOperations.Load(),
		BatchedOperations:    m.stats.batchedOperations.Load(),
		CacheHits:            m.stats.cacheHits.Load(),
		CacheMisses:          m.stats.cacheMisses.Load(),
		FlushCount:           m.stats.flushCount.Load(),
		TotalFlushTimeMicros: m.stats.totalFlushTimeMicros.Load(),
	}
}

// run is the single background worker: it aggregates ops into a batch
// until batchSize is reached or the periodic flushInterval timer fires,
// then commits. A failed commit never stops the worker; every op in the
// failed batch receives that same error on its reply channel.
func (m *Manager) run() {
	defer close(m.closed)

	var batch []storageOp
	timer := time.NewTimer(m.flushInterval)
	defer timer.Stop()

	commit := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		m.commitBatch(batch)
		m.stats.flushCount.Add(1)
		m.stats.totalFlushTimeMicros.Add(time.Since(start).Microseconds())
		m.stats.batchedOperations.Add(int64(len(batch)))
		batch = nil
	}

	for {
		select {
		case op, ok := <-m.queue:
			if !ok {
				commit()
				return
			}
			m.stats.totalOperations.Add(1)

			if op.kind == opFlush {
				commit()
				op.reply <- storageReply{}
				timer.Reset(m.flushInterval)
				continue
			}
			if op.kind == opGetSession {
				// Reads bypass batching; they need the latest committed
				// state, not a pending in-flight batch's uncommitted rows.
				s, err := m.loadSession(op.id)
				op.reply <- storageReply{session: s, err: err}
				continue
			}

			batch = append(batch, op)
			if len(batch) >= m.batchSize {
				commit()
				timer.Reset(m.flushInterval)
			}
		case <-timer.C:
			commit()
			timer.Reset(m.flushInterval)
		}
	}
}

func (m *Manager) commitBatch(batch []storageOp) {
	tx, err := m.db.Begin()
	if err != nil {
		for _, op := range batch {
			op.reply <- storageReply{err: &errors.ResourceError{Resource: "sqlite", Message: "begin tx failed", Cause: err}}
		}
		return
	}

	// Statement errors abort the whole batch's transaction (sqlite has no
	// per-statement savepoints here), so every op in a failed batch is
	// told the same error rather than some succeeding and some not.
	var statementErrs []error
	for _, op := range batch {
		if op.kind != opUpsertSession {
			statementErrs = append(statementErrs, nil)
			continue
		}
		statementErrs = append(statementErrs, upsertSessionTx(tx, op.session))
	}

	var commitErr error
	for _, err := range statementErrs {
		if err != nil {
			commitErr = err
			break
		}
	}
	if commitErr == nil {
		if err := tx.Commit(); err != nil {
			commitErr = &errors.ResourceError{Resource: "sqlite", Message: "commit failed", Cause: err}
		}
	} else {
		_ = tx.Rollback()
	}

	for i, op := range batch {
		if commitErr != nil {
			op.reply <- storageReply{err: commitErr}
			continue
		}
		op.reply <- storageReply{err: statementErrs[i]}
	}
}

func upsertSessionTx(tx *sql.Tx, s *CostSession) error {
	input, output := s.TotalTokens()
	_, err := tx.Exec(`
		INSERT INTO cost_sessions (id, issue_id, started_at, completed_at, total_calls, total_input_tokens, total_output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at=excluded.completed_at,
			total_calls=excluded.total_calls,
			total_input_tokens=excluded.total_input_tokens,
			total_output_tokens=excluded.total_output_tokens
	`, s.SessionID, s.IssueID, s.StartedAt, s.CompletedAt, len(s.ApiCalls), input, output)
	if err != nil {
		return &errors.ResourceError{Resource: "sqlite", Message: "upsert cost_sessions failed", Cause: err}
	}

	for _, call := range s.ApiCalls {
		_, err := tx.Exec(`
			INSERT INTO api_calls (session_id, call_id, timestamp, completed_at, endpoint, model, input_tokens, output_tokens, status, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(call_id) DO UPDATE SET
				completed_at=excluded.completed_at,
				input_tokens=excluded.input_tokens,
				output_tokens=excluded.output_tokens,
				status=excluded.status,
				error_message=excluded.error_message
		`, s.SessionID, call.ID, call.StartedAt, call.CompletedAt, call.Endpoint, call.Model, call.InputTokens, call.OutputTokens, call.Status, call.Error)
		if err != nil {
			return &errors.ResourceError{Resource: "sqlite", Message: "upsert api_calls failed", Cause: err}
		}
	}
	return nil
}

func (m *Manager) loadSession(id string) (*CostSession, error) {
	row := m.db.QueryRow(`SELECT id, issue_id, started_at, completed_at FROM cost_sessions WHERE id = ?`, id)
	var s CostSession
	var completedAt sql.NullTime
	if err := row.Scan(&s.SessionID, &s.IssueID, &s.StartedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &errors.ResourceError{Resource: "sqlite", Message: "load cost_sessions failed", Cause: err}
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	s.Status = SessionActive
	if s.CompletedAt != nil {
		s.Status = SessionCompleted
	}

	rows, err := m.db.Query(`SELECT call_id, timestamp, completed_at, endpoint, model, input_tokens, output_tokens, status, error_message FROM api_calls WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, &errors.ResourceError{Resource: "sqlite", Message: "load api_calls failed", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		var c ApiCall
		var callCompletedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.StartedAt, &callCompletedAt, &c.Endpoint, &c.Model, &c.InputTokens, &c.OutputTokens, &c.Status, &c.Error); err != nil {
			return nil, &errors.ResourceError{Resource: "sqlite", Message: "scan api_calls failed", Cause: err}
		}
		if callCompletedAt.Valid {
			c.CompletedAt = &callCompletedAt.Time
		}
		s.ApiCalls = append(s.ApiCalls, c)
	}
	return &s, rows.Err()
}
