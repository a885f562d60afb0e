package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NotifyChannel is the Postgres channel the records trigger publishes
// collection names on. The migration installs the trigger.
const NotifyChannel = "clinicdesk_records"

// PGStore persists documents as JSONB rows in a single records table
// and pushes change notifications through LISTEN/NOTIFY. A dedicated
// listener connection turns incoming notifications into fresh
// collection snapshots for subscribers, so writes from any process
// sharing the database reach every subscriber without polling.
type PGStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mu      sync.Mutex
	subs    map[int]*pgSub
	nextSub int

	// dispatchMu serializes snapshot callbacks across the listener
	// goroutine and initial deliveries made from Subscribe.
	dispatchMu sync.Mutex

	listenCancel context.CancelFunc
	closeOnce    sync.Once
}

type pgSub struct {
	collection string
	order      OrderBy
	fn         SnapshotFunc
}

// NewPGStore opens the Postgres backend on an existing pool and
// starts the notification listener. The pool is probed so an
// unreachable database surfaces as ErrUnavailable here rather than
// on first use.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*PGStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	listenCtx, listenCancel := context.WithCancel(context.Background())
	s := &PGStore{
		pool:         pool,
		log:          log,
		subs:         make(map[int]*pgSub),
		listenCancel: listenCancel,
	}
	go s.listen(listenCtx)
	return s, nil
}

func (s *PGStore) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	rec := stamp(fields)
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, rec.ID(), doc)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return rec, nil
}

func (s *PGStore) Get(ctx context.Context, collection, id string) (Record, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM records WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *PGStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch := map[string]any{}
	for k, v := range fields {
		patch[k] = v
	}
	patch["id"] = id
	patch["updatedAt"] = nowMillis()
	b, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET doc = doc || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2`,
		collection, id, b)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *PGStore) Remove(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2`,
		collection, id)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, collection string, order OrderBy) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM records WHERE collection = $1`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		var rec Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	sortRecords(recs, order)
	return recs, nil
}

func (s *PGStore) Subscribe(ctx context.Context, collection string, order OrderBy, fn SnapshotFunc) (CancelFunc, error) {
	recs, err := s.List(ctx, collection, order)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &pgSub{collection: collection, order: order, fn: fn}
	s.mu.Unlock()

	s.dispatchMu.Lock()
	fn(recs)
	s.dispatchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	return cancel, nil
}

// Pool exposes the underlying connection pool for health reporting
// and migrations.
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PGStore) Close() {
	s.closeOnce.Do(func() {
		s.listenCancel()
		s.mu.Lock()
		s.subs = make(map[int]*pgSub)
		s.mu.Unlock()
		s.pool.Close()
	})
}

// listen holds a dedicated connection on the notify channel and fans
// incoming collection names out to subscribers. The connection is
// re-established with backoff after failures.
func (s *PGStore) listen(ctx context.Context) {
	for {
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("notification listener lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *PGStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.notifyCollection(ctx, n.Payload)
	}
}

// notifyCollection delivers a fresh snapshot of the changed
// collection to every subscriber watching it.
func (s *PGStore) notifyCollection(ctx context.Context, collection string) {
	s.mu.Lock()
	var targets []*pgSub
	for _, sub := range s.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	for _, sub := range targets {
		recs, err := s.List(ctx, collection, sub.order)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", collection).Msg("snapshot reload failed")
			continue
		}
		s.dispatchMu.Lock()
		sub.fn(recs)
		s.dispatchMu.Unlock()
	}
}
