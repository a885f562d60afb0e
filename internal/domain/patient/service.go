package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
)

type Service struct {
	store   store.Store
	seq     *token.Sequencer
	actions actionlog.Recorder
	now     func() time.Time
}

// NewService builds the patient service. A nil now falls back to
// time.Now.
func NewService(s store.Store, seq *token.Sequencer, actions actionlog.Recorder, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, seq: seq, actions: actions, now: now}
}

// Register creates today's visit record with the next queue token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Patient, error) {
	if in.Name == "" {
		return Patient{}, fmt.Errorf("name is required")
	}
	if in.Age < 0 || in.Age > 150 {
		return Patient{}, fmt.Errorf("age must be between 0 and 150")
	}

	tok, err := s.seq.Next()
	if err != nil {
		return Patient{}, fmt.Errorf("issue token: %w", err)
	}

	actor := auth.EmailFromContext(ctx)
	rec, err := s.store.Create(ctx, Collection, map[string]any{
		"name":         in.Name,
		"age":          in.Age,
		"gender":       in.Gender,
		"contact":      in.Contact,
		"symptoms":     in.Symptoms,
		"token":        tok,
		"status":       StatusWaiting,
		"registeredBy": actor,
		"date":         s.seq.Today(),
	})
	if err != nil {
		return Patient{}, fmt.Errorf("register patient: %w", err)
	}

	var p Patient
	if err := store.Decode(rec, &p); err != nil {
		return Patient{}, err
	}

	s.actions.Record(ctx, actionlog.Entry{
		Action: "patient.registered",
		Actor:  actor,
		Role:   auth.RoleFromContext(ctx),
		Details: map[string]string{
			"patientId": p.ID,
			"name":      p.Name,
			"token":     fmt.Sprintf("%d", p.Token),
		},
	})
	return p, nil
}

// Get returns one visit record.
func (s *Service) Get(ctx context.Context, id string) (Patient, error) {
	rec, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Patient{}, err
	}
	var p Patient
	if err := store.Decode(rec, &p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// SendToDoctor moves a waiting patient to the doctor. Any other
// current status is rejected; the transition never runs twice.
func (s *Service) SendToDoctor(ctx context.Context, id string) (Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Patient{}, err
	}
	if validNextStatus[p.Status] != StatusWithDoctor {
		return Patient{}, fmt.Errorf("%w: status is %s", ErrNotWaiting, p.Status)
	}

	now := s.now().UnixMilli()
	err = s.store.Update(ctx, Collection, id, map[string]any{
		"status":     StatusWithDoctor,
		"assignedAt": now,
	})
	if err != nil {
		return Patient{}, fmt.Errorf("send to doctor: %w", err)
	}
	p.Status = StatusWithDoctor
	p.AssignedAt = now

	s.actions.Record(ctx, actionlog.Entry{
		Action: "patient.sent-to-doctor",
		Actor:  auth.EmailFromContext(ctx),
		Role:   auth.RoleFromContext(ctx),
		Details: map[string]string{
			"patientId": p.ID,
			"name":      p.Name,
		},
	})
	return p, nil
}

// Complete closes the visit, linking the filed prescription. Only a
// patient currently with the doctor can be completed.
func (s *Service) Complete(ctx context.Context, id, prescriptionID string) (Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Patient{}, err
	}
	if validNextStatus[p.Status] != StatusCompleted {
		return Patient{}, fmt.Errorf("%w: status is %s", ErrNotWithDoctor, p.Status)
	}

	now := s.now().UnixMilli()
	err = s.store.Update(ctx, Collection, id, map[string]any{
		"status":         StatusCompleted,
		"completedAt":    now,
		"prescriptionId": prescriptionID,
	})
	if err != nil {
		return Patient{}, fmt.Errorf("complete visit: %w", err)
	}
	p.Status = StatusCompleted
	p.CompletedAt = now
	p.PrescriptionID = prescriptionID
	return p, nil
}

// List returns all visit records, token order.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	return s.store.List(ctx, Collection, store.OrderBy{Field: "token"})
}
