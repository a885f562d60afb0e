package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
	"github.com/clinicdesk/clinicdesk/internal/projection"
)

// VisitCompleter closes a visit once its prescription is filed.
type VisitCompleter interface {
	Complete(ctx context.Context, id, prescriptionID string) (patient.Patient, error)
}

// BillOpener opens the pending bill for a filed prescription.
type BillOpener interface {
	Create(ctx context.Context, in billing.CreateInput) (billing.Bill, error)
}

type Service struct {
	store   store.Store
	visits  VisitCompleter
	bills   BillOpener
	actions actionlog.Recorder
	now     func() time.Time
}

// NewService builds the prescription service. A nil now falls back to
// time.Now.
func NewService(s store.Store, visits VisitCompleter, bills BillOpener, actions actionlog.Recorder, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, visits: visits, bills: bills, actions: actions, now: now}
}

// File records a consultation, moves the patient to completed and
// opens the bill. The three writes are not transactional; the
// prescription is the source of truth and the follow-ups report their
// own errors.
func (s *Service) File(ctx context.Context, in FileInput) (Prescription, error) {
	if in.PatientID == "" {
		return Prescription{}, fmt.Errorf("patientId is required")
	}
	if in.Diagnosis == "" {
		return Prescription{}, fmt.Errorf("diagnosis is required")
	}
	if in.Prescription == "" {
		return Prescription{}, fmt.Errorf("prescription text is required")
	}
	if in.ConsultationFee <= 0 {
		return Prescription{}, fmt.Errorf("consultationFee is required")
	}
	if in.MedicineCost < 0 {
		return Prescription{}, fmt.Errorf("medicineCost cannot be negative")
	}

	now := s.now()
	doctorID := auth.UserIDFromContext(ctx)
	rec, err := s.store.Create(ctx, Collection, map[string]any{
		"patientId":       in.PatientID,
		"doctorId":        doctorID,
		"diagnosis":       in.Diagnosis,
		"prescription":    in.Prescription,
		"consultationFee": in.ConsultationFee,
		"medicineCost":    in.MedicineCost,
		"date":            now.Format(token.DateLayout),
		"timestamp":       now.UnixMilli(),
	})
	if err != nil {
		return Prescription{}, fmt.Errorf("file prescription: %w", err)
	}

	var rx Prescription
	if err := store.Decode(rec, &rx); err != nil {
		return Prescription{}, err
	}

	if _, err := s.visits.Complete(ctx, in.PatientID, rx.ID); err != nil {
		return Prescription{}, fmt.Errorf("complete visit: %w", err)
	}
	if _, err := s.bills.Create(ctx, billing.CreateInput{
		PatientID:       in.PatientID,
		PrescriptionID:  rx.ID,
		ConsultationFee: in.ConsultationFee,
		MedicineCost:    in.MedicineCost,
	}); err != nil {
		return Prescription{}, fmt.Errorf("open bill: %w", err)
	}

	s.actions.Record(ctx, actionlog.Entry{
		Action: "prescription.filed",
		Actor:  auth.EmailFromContext(ctx),
		Role:   auth.RoleFromContext(ctx),
		Details: map[string]string{
			"prescriptionId": rx.ID,
			"patientId":      in.PatientID,
			"diagnosis":      in.Diagnosis,
		},
	})
	return rx, nil
}

// Get returns one prescription.
func (s *Service) Get(ctx context.Context, id string) (Prescription, error) {
	rec, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Prescription{}, err
	}
	var rx Prescription
	if err := store.Decode(rec, &rx); err != nil {
		return Prescription{}, err
	}
	return rx, nil
}

// History returns past prescriptions newest first, joined with
// patient names and optionally filtered by a case-insensitive
// substring match on diagnosis or prescription text.
func (s *Service) History(ctx context.Context, query string) ([]store.Record, error) {
	prescriptions, err := s.store.List(ctx, Collection, store.OrderBy{Field: "timestamp", Desc: true})
	if err != nil {
		return nil, err
	}
	patients, err := s.store.List(ctx, patient.Collection, store.OrderBy{Field: "token"})
	if err != nil {
		return nil, err
	}
	return projection.PrescriptionHistory(prescriptions, patients, query), nil
}
