package projection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/token"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// Collections the projector watches.
const (
	ColPatients      = "patients"
	ColPrescriptions = "prescriptions"
	ColBilling       = "billing"
)

// Projector subscribes to the collections a role needs and pushes the
// recomputed views to the hub whenever a snapshot arrives. Stop
// cancels the store subscriptions; it is safe to call repeatedly.
type Projector struct {
	store store.Store
	hub   *websocket.Hub
	log   zerolog.Logger
	now   func() time.Time

	mu            sync.Mutex
	cancels       []store.CancelFunc
	patients      []store.Record
	prescriptions []store.Record
	bills         []store.Record
}

// New builds a stopped Projector. A nil now falls back to time.Now.
func New(s store.Store, hub *websocket.Hub, log zerolog.Logger, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{store: s, hub: hub, log: log, now: now}
}

func (p *Projector) today() string {
	return p.now().Format(token.DateLayout)
}

// Start wires the subscriptions for a role. Receptionists watch the
// queue and billing; doctors watch assignments and history. Both
// roles need the patients collection. Calling Start again first
// stops the previous wiring.
func (p *Projector) Start(ctx context.Context, role string) error {
	p.Stop()

	cancel, err := p.store.Subscribe(ctx, ColPatients, store.OrderBy{Field: "token"}, p.onPatients)
	if err != nil {
		return err
	}
	p.addCancel(cancel)

	switch role {
	case auth.RoleDoctor:
		cancel, err = p.store.Subscribe(ctx, ColPrescriptions, store.OrderBy{Field: "timestamp", Desc: true}, p.onPrescriptions)
		if err != nil {
			p.Stop()
			return err
		}
		p.addCancel(cancel)
	default:
		cancel, err = p.store.Subscribe(ctx, ColBilling, store.OrderBy{Field: "createdAt", Desc: true}, p.onBilling)
		if err != nil {
			p.Stop()
			return err
		}
		p.addCancel(cancel)
	}

	p.log.Info().Str("role", role).Msg("live projections started")
	return nil
}

func (p *Projector) addCancel(c store.CancelFunc) {
	p.mu.Lock()
	p.cancels = append(p.cancels, c)
	p.mu.Unlock()
}

// Stop cancels every active subscription.
func (p *Projector) Stop() {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (p *Projector) onPatients(recs []store.Record) {
	p.mu.Lock()
	p.patients = recs
	bills := p.bills
	prescriptions := p.prescriptions
	p.mu.Unlock()

	today := p.today()
	p.publish(websocket.TopicQueue, ReceptionQueue(recs, today))
	p.publish(websocket.TopicAssigned, AssignedPatients(recs, today))
	// Joined views shift when patient rows change.
	if bills != nil {
		p.publish(websocket.TopicBilling, BillingLedger(bills, recs, today))
	}
	if prescriptions != nil {
		p.publish(websocket.TopicHistory, PrescriptionHistory(prescriptions, recs, ""))
	}
}

func (p *Projector) onPrescriptions(recs []store.Record) {
	p.mu.Lock()
	p.prescriptions = recs
	patients := p.patients
	p.mu.Unlock()

	p.publish(websocket.TopicHistory, PrescriptionHistory(recs, patients, ""))
}

func (p *Projector) onBilling(recs []store.Record) {
	p.mu.Lock()
	p.bills = recs
	patients := p.patients
	p.mu.Unlock()

	p.publish(websocket.TopicBilling, BillingLedger(recs, patients, p.today()))
}

func (p *Projector) publish(topic string, view []store.Record) {
	data, err := json.Marshal(view)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("encode view")
		return
	}
	p.hub.Broadcast(topic, websocket.Event{
		Type:      "snapshot",
		Topic:     topic,
		Timestamp: p.now().UTC(),
		Data:      data,
	})
}
