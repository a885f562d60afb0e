package patient

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir, 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	ck := &clock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	seq, err := token.NewSequencer(filepath.Join(dir, "tokens.json"), ck.now)
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	return NewService(fs, seq, actionlog.NewMemoryLog(), ck.now), ck
}

func TestRegister_AssignsSequentialTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := svc.Register(ctx, RegisterInput{Name: "Ravi", Age: 45})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if first.Token != 1 || second.Token != 2 {
		t.Errorf("tokens = %d, %d; want 1, 2", first.Token, second.Token)
	}
	if first.Status != StatusWaiting {
		t.Errorf("status = %q, want %q", first.Status, StatusWaiting)
	}
	if first.Date != "2026-03-14" {
		t.Errorf("date = %q, want 2026-03-14", first.Date)
	}
}

func TestRegister_TokenResetsNextDay(t *testing.T) {
	svc, ck := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ck.set(time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC))
	p, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Token != 1 {
		t.Errorf("token = %d, want 1 after day rollover", p.Token)
	}
	if p.Date != "2026-03-15" {
		t.Errorf("date = %q, want 2026-03-15", p.Date)
	}
}

func TestRegister_ValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Age: 30}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: -1}); err == nil {
		t.Error("expected error for negative age")
	}
	if _, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 200}); err == nil {
		t.Error("expected error for implausible age")
	}
}

func TestSendToDoctor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err = svc.SendToDoctor(ctx, p.ID)
	if err != nil {
		t.Fatalf("SendToDoctor: %v", err)
	}
	if p.Status != StatusWithDoctor {
		t.Errorf("status = %q, want %q", p.Status, StatusWithDoctor)
	}
	if p.AssignedAt == 0 {
		t.Error("assignedAt not set")
	}
}

func TestSendToDoctor_TwiceConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.SendToDoctor(ctx, p.ID); err != nil {
		t.Fatalf("first SendToDoctor: %v", err)
	}
	if _, err := svc.SendToDoctor(ctx, p.ID); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("second SendToDoctor err = %v, want ErrNotWaiting", err)
	}
}

func TestSendToDoctor_UnknownPatient(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.SendToDoctor(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestComplete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.SendToDoctor(ctx, p.ID); err != nil {
		t.Fatalf("SendToDoctor: %v", err)
	}

	p, err = svc.Complete(ctx, p.ID, "rx1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", p.Status, StatusCompleted)
	}
	if p.PrescriptionID != "rx1" {
		t.Errorf("prescriptionId = %q, want rx1", p.PrescriptionID)
	}
	if p.CompletedAt == 0 {
		t.Error("completedAt not set")
	}
}

func TestComplete_RequiresWithDoctor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterInput{Name: "Asha", Age: 30})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Complete(ctx, p.ID, "rx1"); !errors.Is(err, ErrNotWithDoctor) {
		t.Fatalf("err = %v, want ErrNotWithDoctor", err)
	}
}
