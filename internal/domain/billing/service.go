package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
	"github.com/clinicdesk/clinicdesk/internal/projection"
)

type Service struct {
	store   store.Store
	actions actionlog.Recorder
	now     func() time.Time
}

// NewService builds the billing service. A nil now falls back to
// time.Now.
func NewService(s store.Store, actions actionlog.Recorder, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, actions: actions, now: now}
}

// CreateInput carries the charges from a filed prescription.
type CreateInput struct {
	PatientID       string
	PrescriptionID  string
	ConsultationFee float64
	MedicineCost    float64
}

// Create opens a pending bill, fixing the total once.
func (s *Service) Create(ctx context.Context, in CreateInput) (Bill, error) {
	if in.PatientID == "" {
		return Bill{}, fmt.Errorf("patientId is required")
	}
	if in.ConsultationFee < 0 || in.MedicineCost < 0 {
		return Bill{}, fmt.Errorf("fees cannot be negative")
	}

	rec, err := s.store.Create(ctx, Collection, map[string]any{
		"patientId":       in.PatientID,
		"prescriptionId":  in.PrescriptionID,
		"consultationFee": in.ConsultationFee,
		"medicineCost":    in.MedicineCost,
		"totalAmount":     in.ConsultationFee + in.MedicineCost,
		"status":          StatusPending,
		"date":            s.now().Format(token.DateLayout),
	})
	if err != nil {
		return Bill{}, fmt.Errorf("create bill: %w", err)
	}

	var b Bill
	if err := store.Decode(rec, &b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, id string) (Bill, error) {
	rec, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Bill{}, err
	}
	var b Bill
	if err := store.Decode(rec, &b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// MarkPaid settles a pending bill. Paying twice is rejected, never
// double-recorded.
func (s *Service) MarkPaid(ctx context.Context, id string) (Bill, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if b.Status == StatusPaid {
		return Bill{}, ErrAlreadyPaid
	}

	now := s.now().UnixMilli()
	err = s.store.Update(ctx, Collection, id, map[string]any{
		"status": StatusPaid,
		"paidAt": now,
	})
	if err != nil {
		return Bill{}, fmt.Errorf("mark paid: %w", err)
	}
	b.Status = StatusPaid
	b.PaidAt = now

	s.actions.Record(ctx, actionlog.Entry{
		Action: "billing.paid",
		Actor:  auth.EmailFromContext(ctx),
		Role:   auth.RoleFromContext(ctx),
		Details: map[string]string{
			"billId":    b.ID,
			"patientId": b.PatientID,
			"amount":    fmt.Sprintf("%.2f", b.TotalAmount),
		},
	})
	return b, nil
}

// Ledger returns today's bills joined with patient details, newest
// first.
func (s *Service) Ledger(ctx context.Context) ([]store.Record, error) {
	bills, err := s.store.List(ctx, Collection, store.OrderBy{Field: "createdAt", Desc: true})
	if err != nil {
		return nil, err
	}
	patients, err := s.store.List(ctx, patient.Collection, store.OrderBy{Field: "token"})
	if err != nil {
		return nil, err
	}
	return projection.BillingLedger(bills, patients, s.now().Format(token.DateLayout)), nil
}
