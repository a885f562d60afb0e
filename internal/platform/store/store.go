// Package store provides a pluggable document store with live change
// subscriptions. Two backends implement the same contract: a Postgres
// backend that pushes changes via LISTEN/NOTIFY, and a file backend
// that detects changes by polling. Callers never branch on which
// backend is active.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable indicates the backend could not be reached or opened.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("record not found")
)

// Record is a schemaless document. Every record carries "id",
// "createdAt" and "updatedAt"; everything else is caller-defined.
type Record map[string]any

// ID returns the record's identifier, or "" if unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// OrderBy describes the sort applied to listings and subscription
// snapshots. Field values are compared numerically; records missing
// the field (or holding a non-numeric value) sort after all records
// that have it, and ties are broken by id so ordering is stable.
type OrderBy struct {
	Field string
	Desc  bool
}

// CancelFunc detaches a subscription. Calling it more than once is
// safe; calls after the first are no-ops.
type CancelFunc func()

// SnapshotFunc receives the full ordered contents of a collection
// each time the collection changes.
type SnapshotFunc func(records []Record)

// Store is the document store contract shared by both backends.
type Store interface {
	// Create inserts a new document, stamping id, createdAt and
	// updatedAt, and returns the stored record.
	Create(ctx context.Context, collection string, fields map[string]any) (Record, error)

	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)

	// Update merges fields into an existing document and refreshes
	// updatedAt. Updating an absent id returns ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Remove deletes a document. Removing an absent id is a no-op.
	Remove(ctx context.Context, collection, id string) error

	// List returns the ordered contents of a collection. A collection
	// that has never been written to is an empty list, not an error.
	List(ctx context.Context, collection string, order OrderBy) ([]Record, error)

	// Subscribe registers a snapshot callback for a collection. The
	// callback fires once immediately with the current contents and
	// again after every subsequent change. Callbacks for a given
	// store are invoked sequentially, never concurrently.
	Subscribe(ctx context.Context, collection string, order OrderBy, fn SnapshotFunc) (CancelFunc, error)

	// Close releases backend resources and stops all subscriptions.
	Close()
}

// Backend names, reported by the factory for logging.
const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

func newID() string {
	return uuid.New().String()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// stamp fills in the bookkeeping fields on a new record.
func stamp(fields map[string]any) Record {
	rec := Record{}
	for k, v := range fields {
		rec[k] = v
	}
	now := nowMillis()
	rec["id"] = newID()
	rec["createdAt"] = now
	rec["updatedAt"] = now
	return rec
}

// numericField extracts a comparable float from a record field.
// JSON decoding produces float64; in-process writes may hold ints.
func numericField(r Record, field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// sortRecords orders records in place per the OrderBy contract.
func sortRecords(recs []Record, order OrderBy) {
	if order.Field == "" {
		order.Field = "createdAt"
	}
	sort.SliceStable(recs, func(i, j int) bool {
		vi, oki := numericField(recs[i], order.Field)
		vj, okj := numericField(recs[j], order.Field)
		switch {
		case oki && okj:
			if vi != vj {
				if order.Desc {
					return vi > vj
				}
				return vi < vj
			}
			return recs[i].ID() < recs[j].ID()
		case oki:
			return true
		case okj:
			return false
		default:
			return recs[i].ID() < recs[j].ID()
		}
	})
}

// Sort orders records in place per the OrderBy contract. List and
// Subscribe already return ordered snapshots; this is for callers
// re-sorting derived slices.
func Sort(recs []Record, order OrderBy) {
	sortRecords(recs, order)
}

// Decode unmarshals a record into a typed struct via JSON round-trip.
func Decode(rec Record, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Fields converts a typed struct into the map form the store accepts.
func Fields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return m, nil
}
