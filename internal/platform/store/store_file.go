package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileStore keeps each collection as a JSON array in its own file
// under a data directory. Change detection is poll-based: a single
// goroutine rereads subscribed collections on a fixed interval and
// fires callbacks when the serialized snapshot differs from the one
// last delivered.
type FileStore struct {
	dir  string
	poll time.Duration
	log  zerolog.Logger

	mu      sync.Mutex
	subs    map[int]*fileSub
	nextSub int

	// dispatchMu serializes snapshot callbacks across poll ticks and
	// initial deliveries made from Subscribe.
	dispatchMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

type fileSub struct {
	collection string
	order      OrderBy
	fn         SnapshotFunc
	last       []byte
}

// NewFileStore opens the file backend rooted at dir. The directory is
// created if absent; a directory that cannot be created or written
// yields ErrUnavailable.
func NewFileStore(dir string, poll time.Duration, log zerolog.Logger) (*FileStore, error) {
	if poll <= 0 {
		poll = time.Second
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir %s: %v", ErrUnavailable, dir, err)
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return nil, fmt.Errorf("%w: data dir %s not writable: %v", ErrUnavailable, dir, err)
	}
	os.Remove(probe)

	s := &FileStore{
		dir:  dir,
		poll: poll,
		log:  log,
		subs: make(map[int]*fileSub),
		done: make(chan struct{}),
	}
	go s.pollLoop()
	return s, nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// readCollection loads a collection file. Missing files are empty
// collections. Caller holds s.mu.
func (s *FileStore) readCollection(collection string) ([]Record, error) {
	b, err := os.ReadFile(s.path(collection))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("parse collection %s: %w", collection, err)
	}
	return recs, nil
}

// writeCollection persists a collection atomically via temp file and
// rename. Caller holds s.mu.
func (s *FileStore) writeCollection(collection string, recs []Record) error {
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", collection, err)
	}
	tmp := s.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write collection %s: %w", collection, err)
	}
	if err := os.Rename(tmp, s.path(collection)); err != nil {
		return fmt.Errorf("write collection %s: %w", collection, err)
	}
	return nil
}

func (s *FileStore) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readCollection(collection)
	if err != nil {
		return nil, err
	}
	rec := stamp(fields)
	recs = append(recs, rec)
	if err := s.writeCollection(collection, recs); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) Get(ctx context.Context, collection, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readCollection(collection)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}

func (s *FileStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readCollection(collection)
	if err != nil {
		return err
	}
	for i, rec := range recs {
		if rec.ID() != id {
			continue
		}
		for k, v := range fields {
			rec[k] = v
		}
		rec["id"] = id
		rec["updatedAt"] = nowMillis()
		recs[i] = rec
		return s.writeCollection(collection, recs)
	}
	return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
}

func (s *FileStore) Remove(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readCollection(collection)
	if err != nil {
		return err
	}
	kept := recs[:0]
	for _, rec := range recs {
		if rec.ID() != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(recs) {
		return nil
	}
	return s.writeCollection(collection, kept)
}

func (s *FileStore) List(ctx context.Context, collection string, order OrderBy) ([]Record, error) {
	s.mu.Lock()
	recs, err := s.readCollection(collection)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sortRecords(recs, order)
	return recs, nil
}

// Subscribe delivers the current snapshot immediately, then again
// after any poll tick whose reread differs from the last delivery.
// Ticks that find identical content are skipped: callers get fewer
// redundant snapshots than a fire-every-tick poll would produce, and
// must not rely on ticks arriving while the collection is idle.
func (s *FileStore) Subscribe(ctx context.Context, collection string, order OrderBy, fn SnapshotFunc) (CancelFunc, error) {
	s.mu.Lock()
	recs, err := s.readCollection(collection)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sortRecords(recs, order)
	sub := &fileSub{collection: collection, order: order, fn: fn}
	sub.last, _ = json.Marshal(recs)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	// Initial snapshot fires before any poll tick.
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

func (s *FileStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.subs = make(map[int]*fileSub)
		s.mu.Unlock()
	})
}

// pollLoop rereads subscribed collections on each tick and delivers
// snapshots whose content changed since the last delivery.
func (s *FileStore) pollLoop() {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

func (s *FileStore) pollOnce() {
	type delivery struct {
		fn   SnapshotFunc
		recs []Record
	}
	var pending []delivery

	s.mu.Lock()
	for _, sub := range s.subs {
		recs, err := s.readCollection(sub.collection)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", sub.collection).Msg("poll read failed")
			continue
		}
		sortRecords(recs, sub.order)
		cur, _ := json.Marshal(recs)
		if bytes.Equal(cur, sub.last) {
			continue
		}
		sub.last = cur
		pending = append(pending, delivery{fn: sub.fn, recs: recs})
	}
	s.mu.Unlock()

	// Callbacks run outside the state lock so they may touch the
	// store, but under dispatchMu so they never overlap an initial
	// delivery or each other.
	for _, d := range pending {
		s.dispatchMu.Lock()
		d.fn(d.recs)
		s.dispatchMu.Unlock()
	}
}
