package prescription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
)

type fixture struct {
	rx       *Service
	patients *patient.Service
	bills    *billing.Service
	store    store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	now := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	seq, err := token.NewSequencer(filepath.Join(dir, "tokens.json"), now)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}

	actions := actionlog.NewMemoryLog()
	patients := patient.NewService(fs, seq, actions, now)
	bills := billing.NewService(fs, actions, now)
	return &fixture{
		rx:       NewService(fs, patients, bills, actions, now),
		patients: patients,
		bills:    bills,
		store:    fs,
	}
}

// registerWithDoctor puts a fresh patient in front of the doctor.
func (f *fixture) registerWithDoctor(t *testing.T) patient.Patient {
	t.Helper()
	ctx := context.Background()
	p, err := f.patients.Register(ctx, patient.RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	p, err = f.patients.SendToDoctor(ctx, p.ID)
	if err != nil {
		t.Fatalf("SendToDoctor: %v", err)
	}
	return p
}

func TestFile_ClosesVisitAndOpensBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.registerWithDoctor(t)

	rx, err := f.rx.File(ctx, FileInput{
		PatientID:       p.ID,
		Diagnosis:       "Viral fever",
		Prescription:    "Paracetamol 500mg",
		ConsultationFee: 300,
		MedicineCost:    50,
	})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if rx.Date != "2026-03-14" {
		t.Errorf("date = %q, want 2026-03-14", rx.Date)
	}

	got, err := f.patients.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get patient: %v", err)
	}
	if got.Status != patient.StatusCompleted {
		t.Errorf("patient status = %q, want %q", got.Status, patient.StatusCompleted)
	}
	if got.PrescriptionID != rx.ID {
		t.Errorf("patient prescriptionId = %q, want %q", got.PrescriptionID, rx.ID)
	}

	bills, err := f.store.List(ctx, billing.Collection, store.OrderBy{})
	if err != nil {
		t.Fatalf("List bills: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("got %d bills, want 1", len(bills))
	}
	var b billing.Bill
	if err := store.Decode(bills[0], &b); err != nil {
		t.Fatalf("Decode bill: %v", err)
	}
	if b.TotalAmount != 350 || b.Status != billing.StatusPending {
		t.Errorf("bill = %+v, want total 350 pending", b)
	}
	if b.PrescriptionID != rx.ID {
		t.Errorf("bill prescriptionId = %q, want %q", b.PrescriptionID, rx.ID)
	}
}

func TestFile_RejectsWaitingPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.patients.Register(ctx, patient.RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = f.rx.File(ctx, FileInput{
		PatientID:       p.ID,
		Diagnosis:       "Cold",
		Prescription:    "Rest",
		ConsultationFee: 100,
	})
	if !errors.Is(err, patient.ErrNotWithDoctor) {
		t.Fatalf("err = %v, want ErrNotWithDoctor", err)
	}
}

func TestFile_RejectsUnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.rx.File(context.Background(), FileInput{
		PatientID:       "missing",
		Diagnosis:       "Cold",
		Prescription:    "Rest",
		ConsultationFee: 100,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFile_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   FileInput
	}{
		{"missing patient", FileInput{Diagnosis: "d", Prescription: "p", ConsultationFee: 100}},
		{"missing diagnosis", FileInput{PatientID: "p1", Prescription: "p", ConsultationFee: 100}},
		{"missing prescription", FileInput{PatientID: "p1", Diagnosis: "d", ConsultationFee: 100}},
		{"missing consultation fee", FileInput{PatientID: "p1", Diagnosis: "d", Prescription: "p"}},
		{"negative medicine cost", FileInput{PatientID: "p1", Diagnosis: "d", Prescription: "p", ConsultationFee: 100, MedicineCost: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.rx.File(ctx, tc.in); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestHistory_SearchesDiagnosis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, diag := range []string{"Viral fever", "Migraine"} {
		p := f.registerWithDoctor(t)
		if _, err := f.rx.File(ctx, FileInput{
			PatientID:       p.ID,
			Diagnosis:       diag,
			Prescription:    "meds",
			ConsultationFee: 100,
		}); err != nil {
			t.Fatalf("File %s: %v", diag, err)
		}
	}

	all, err := f.rx.History(ctx, "")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d entries, want 2", len(all))
	}

	hits, err := f.rx.History(ctx, "fever")
	if err != nil {
		t.Fatalf("History fever: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if got := hits[0]["diagnosis"]; got != "Viral fever" {
		t.Errorf("diagnosis = %v, want Viral fever", got)
	}
	if got := hits[0]["patientName"]; got != "Asha" {
		t.Errorf("patientName = %v, want Asha", got)
	}
}
