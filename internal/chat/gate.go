package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// State is the credential readiness known to a Gate.
type State int

const (
	// StateUnknown is the state before the credential collaborator has been queried.
	StateUnknown State = iota
	// StateReady means a usable credential exists.
	StateReady
	// StateNotReady means the user must select a credential before chatting.
	StateNotReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// CredentialSelector is the external credential collaborator: it knows whether a credential has
// been selected and lets the user select one.
type CredentialSelector interface {
	HasSelectedCredential(ctx context.Context) (bool, error)
	SelectCredential(ctx context.Context, credential string) error
}

// Invalidator drops a cached model session.
type Invalidator interface {
	Invalidate()
}

// Gate tracks whether a usable credential exists before a response is streamed.
//
// A nil selector means the collaborator is absent in this environment: readiness then depends on
// the environment variables named by envKeys, and selection is unavailable.
type Gate struct {
	selector CredentialSelector
	envKeys  []string
	sessions Invalidator

	mu          sync.Mutex
	state       State
	assumeReady bool

	logger *slog.Logger
}

// NewGate creates a Gate in StateUnknown. sessions is invalidated whenever the credential changes
// or is rejected.
func NewGate(selector CredentialSelector, envKeys []string, sessions Invalidator, logger *slog.Logger) *Gate {
	return &Gate{
		selector: selector,
		envKeys:  envKeys,
		sessions: sessions,
		state:    StateUnknown,
		logger:   logger.With(slog.String("module", "gate")),
	}
}

// IsReady queries the credential collaborator on every call. After a successful selection it
// reports ready without querying until the credential is rejected, because the collaborator may
// not reflect the selection yet.
func (g *Gate) IsReady(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.assumeReady {
		g.state = StateReady
		g.mu.Unlock()
		return true, nil
	}
	g.mu.Unlock()

	ready, err := g.query(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query credential: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ready {
		g.state = StateReady
	} else {
		g.state = StateNotReady
	}
	return ready, nil
}

// SelectionAvailable reports whether PromptForSelection can succeed in this environment.
func (g *Gate) SelectionAvailable() bool {
	return g.selector != nil
}

// PromptForSelection hands credential to the collaborator. On success the gate becomes ready and
// the current model session is dropped so the next response uses the new credential.
func (g *Gate) PromptForSelection(ctx context.Context, credential string) error {
	if g.selector == nil {
		return ErrSelectionUnavailable
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrEmptyCredential
	}

	if err := g.selector.SelectCredential(ctx, credential); err != nil {
		g.mu.Lock()
		g.state = StateNotReady
		g.mu.Unlock()
		return fmt.Errorf("failed to select credential: %w", err)
	}

	g.mu.Lock()
	g.state = StateReady
	g.assumeReady = true
	g.mu.Unlock()

	g.sessions.Invalidate()
	g.logger.Info("Credential selected")
	return nil
}

// Invalidate drops the cached model session. It leaves the stored credential untouched.
func (g *Gate) Invalidate() {
	g.sessions.Invalidate()
}

// CredentialRejected records that the model service refused the credential. With a selector the
// gate moves to StateNotReady, forcing the selection flow. Without one nothing can be selected, so
// the gate returns to StateUnknown and the environment is queried again.
func (g *Gate) CredentialRejected() {
	g.mu.Lock()
	if g.selector == nil {
		g.state = StateUnknown
	} else {
		g.state = StateNotReady
	}
	g.assumeReady = false
	g.mu.Unlock()

	g.sessions.Invalidate()
	g.logger.Warn("Credential rejected by model provider")
}

// State returns the last known state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) query(ctx context.Context) (bool, error) {
	if g.selector != nil {
		return g.selector.HasSelectedCredential(ctx)
	}
	for _, key := range g.envKeys {
		if os.Getenv(key) != "" {
			return true, nil
		}
	}
	return false, nil
}
