package store

import (
	"testing"
)

func TestSortRecords_NumericAscending(t *testing.T) {
	recs := []Record{
		{"id": "a", "token": float64(3)},
		{"id": "b", "token": float64(1)},
		{"id": "c", "token": float64(2)},
	}
	sortRecords(recs, OrderBy{Field: "token"})

	got := []float64{}
	for _, r := range recs {
		v, _ := numericField(r, "token")
		got = append(got, v)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected token %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSortRecords_Descending(t *testing.T) {
	recs := []Record{
		{"id": "a", "timestamp": int64(100)},
		{"id": "b", "timestamp": int64(300)},
		{"id": "c", "timestamp": int64(200)},
	}
	sortRecords(recs, OrderBy{Field: "timestamp", Desc: true})

	if recs[0].ID() != "b" || recs[1].ID() != "c" || recs[2].ID() != "a" {
		t.Fatalf("unexpected order: %s, %s, %s", recs[0].ID(), recs[1].ID(), recs[2].ID())
	}
}

func TestSortRecords_MissingFieldSortsLast(t *testing.T) {
	recs := []Record{
		{"id": "a"},
		{"id": "b", "token": float64(2)},
		{"id": "c", "token": "not-a-number"},
		{"id": "d", "token": float64(1)},
	}
	sortRecords(recs, OrderBy{Field: "token"})

	if recs[0].ID() != "d" || recs[1].ID() != "b" {
		t.Fatalf("numeric records should sort first, got %s, %s", recs[0].ID(), recs[1].ID())
	}
	// Missing and non-numeric values fall to the end, tie-broken by id.
	if recs[2].ID() != "a" || recs[3].ID() != "c" {
		t.Fatalf("non-numeric records should sort last by id, got %s, %s", recs[2].ID(), recs[3].ID())
	}
}

func TestSortRecords_TieBrokenByID(t *testing.T) {
	recs := []Record{
		{"id": "z", "token": float64(1)},
		{"id": "a", "token": float64(1)},
	}
	sortRecords(recs, OrderBy{Field: "token"})

	if recs[0].ID() != "a" {
		t.Fatalf("equal sort keys should break ties by id, got %s first", recs[0].ID())
	}
}

func TestStamp_SetsBookkeepingFields(t *testing.T) {
	rec := stamp(map[string]any{"name": "Asha"})

	if rec.ID() == "" {
		t.Error("expected generated id")
	}
	if rec["name"] != "Asha" {
		t.Errorf("expected caller fields preserved, got %v", rec["name"])
	}
	created, ok := rec["createdAt"].(int64)
	if !ok || created == 0 {
		t.Errorf("expected createdAt millis, got %v", rec["createdAt"])
	}
	if rec["updatedAt"] != rec["createdAt"] {
		t.Error("expected createdAt and updatedAt equal on creation")
	}
}

func TestDecodeAndFields_RoundTrip(t *testing.T) {
	type visit struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Token int    `json:"token"`
	}

	fields, err := Fields(visit{Name: "Asha", Token: 7})
	if err != nil {
		t.Fatalf("Fields() error: %v", err)
	}
	if fields["name"] != "Asha" {
		t.Errorf("expected name field, got %v", fields["name"])
	}

	var out visit
	if err := Decode(Record{"id": "x1", "name": "Asha", "token": float64(7)}, &out); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.ID != "x1" || out.Name != "Asha" || out.Token != 7 {
		t.Errorf("unexpected decode result: %+v", out)
	}
}
