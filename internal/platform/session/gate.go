// Package session tracks the desk's authentication state machine and
// ties the live projections to it: projections run only while someone
// is signed in, and signing out tears them down.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// State is the gate's position in the sign-in lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Identity is the signed-in account.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Projections is the slice of the projector the gate drives.
type Projections interface {
	Start(ctx context.Context, role string) error
	Stop()
}

// ChangeFunc observes gate transitions.
type ChangeFunc func(state State, ident Identity)

// Gate is the desk's auth state machine. One gate serves the whole
// station; a new sign-in replaces the previous session.
type Gate struct {
	mu        sync.Mutex
	state     State
	ident     Identity
	proj      Projections
	listeners []ChangeFunc
	log       zerolog.Logger
}

func NewGate(proj Projections, log zerolog.Logger) *Gate {
	return &Gate{proj: proj, log: log}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Identity returns the signed-in account, zero when anonymous.
func (g *Gate) Identity() Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Authenticated {
		return Identity{}
	}
	return g.ident
}

// OnChange registers a transition observer. Observers run outside the
// gate lock, in transition order.
func (g *Gate) OnChange(fn ChangeFunc) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

// Begin marks a sign-in attempt in flight. The gate stays usable if
// the attempt later fails; Establish or Abort settles it.
func (g *Gate) Begin() {
	g.transition(Authenticating, Identity{})
}

// Abort returns the gate to anonymous after a failed sign-in.
func (g *Gate) Abort() {
	g.mu.Lock()
	if g.state != Authenticating {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.transition(Anonymous, Identity{})
}

// Establish completes a sign-in: records the identity, starts the
// role's live projections, and notifies observers. An account with no
// recognized role is seated as receptionist.
func (g *Gate) Establish(ctx context.Context, ident Identity) error {
	if !auth.ValidRole(ident.Role) {
		ident.Role = auth.DefaultRole
	}

	if err := g.proj.Start(ctx, ident.Role); err != nil {
		g.transition(Anonymous, Identity{})
		return err
	}

	g.transition(Authenticated, ident)
	g.log.Info().Str("email", ident.Email).Str("role", ident.Role).Msg("session established")
	return nil
}

// SignOut tears down the projections and returns to anonymous.
// Signing out while anonymous is a no-op.
func (g *Gate) SignOut() {
	g.mu.Lock()
	if g.state == Anonymous {
		g.mu.Unlock()
		return
	}
	email := g.ident.Email
	g.mu.Unlock()

	g.proj.Stop()
	g.transition(Anonymous, Identity{})
	g.log.Info().Str("email", email).Msg("session ended")
}

func (g *Gate) transition(state State, ident Identity) {
	g.mu.Lock()
	g.state = state
	g.ident = ident
	listeners := make([]ChangeFunc, len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(state, ident)
	}
}
