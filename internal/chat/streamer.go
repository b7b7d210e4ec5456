package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
)

// Session is a stateful conversation with a model provider. SendStream sends text as the next
// turn and yields the reply fragments in the order the provider emits them.
type Session interface {
	SendStream(ctx context.Context, text string) iter.Seq2[string, error]
}

// SessionFactory creates sessions seeded with a system instruction and the turns recorded so far.
type SessionFactory interface {
	NewSession(ctx context.Context, systemInstruction string, history []models.Message) (Session, error)
}

// Streamer relays user text to a model session and forwards the streamed reply. It lazily creates
// one session and reuses it for every call until Invalidate is called.
//
// Streamer does not serialize calls to Send; callers must not start a Send while another is
// outstanding.
type Streamer struct {
	factory           SessionFactory
	systemInstruction string

	mu      sync.Mutex
	session Session

	logger *slog.Logger
}

const (
	entityNotFound = "Requested entity was not found."
	errLoggerKey   = "err"
)

// NewStreamer creates a Streamer that opens sessions through factory.
func NewStreamer(factory SessionFactory, systemInstruction string, logger *slog.Logger) *Streamer {
	return &Streamer{
		factory:           factory,
		systemInstruction: systemInstruction,
		logger:            logger.With(slog.String("module", "streamer")),
	}
}

// Send sends text as the next turn and calls onFragment synchronously for every non-empty
// fragment of the reply. prior seeds a newly created session and is ignored when the current
// session is reused. Apart from ErrEmptyPrompt, the returned error is an *Error.
func (s *Streamer) Send(ctx context.Context, prior []models.Message, text string, onFragment func(string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyPrompt
	}

	sess, err := s.currentSession(ctx, prior)
	if err != nil {
		return s.fail(err)
	}

	for fragment, err := range sess.SendStream(ctx, text) {
		if err != nil {
			return s.fail(err)
		}
		if fragment == "" {
			continue
		}
		onFragment(fragment)
	}
	return nil
}

// Invalidate drops the current session so the next Send creates a fresh one.
func (s *Streamer) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// HasSession reports whether a session has been created and not invalidated since.
func (s *Streamer) HasSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *Streamer) currentSession(ctx context.Context, prior []models.Message) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session, nil
	}

	history := sessionHistory(prior)
	sess, err := s.factory.NewSession(ctx, s.systemInstruction, history)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.session = sess
	s.logger.Debug("Created model session", slog.Int("history", len(history)))
	return sess, nil
}

func (s *Streamer) fail(err error) error {
	e := classify(err)
	if e.Kind == KindCredentialInvalid {
		s.logger.Warn("Credential rejected, dropping session", slog.String(errLoggerKey, err.Error()))
		s.Invalidate()
	}
	return e
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return &Error{
			Kind:    KindCredentialInvalid,
			Message: "API Key is not configured. Please select your API key.",
			Err:     err,
		}
	case strings.Contains(err.Error(), entityNotFound):
		return &Error{
			Kind:    KindCredentialInvalid,
			Message: "API key error: " + entityNotFound + " Please re-select your API key.",
			Err:     err,
		}
	case errors.Is(err, ErrCredentialRejected):
		return &Error{
			Kind:    KindCredentialInvalid,
			Message: fmt.Sprintf("API key error: %s. Please re-select your API key.", err),
			Err:     err,
		}
	}
	return &Error{
		Kind:    KindTransport,
		Message: "Failed to get response from Codex Prime: " + err.Error(),
		Err:     err,
	}
}

// sessionHistory keeps the finalized turns the model should see as context.
func sessionHistory(prior []models.Message) []models.Message {
	history := make([]models.Message, 0, len(prior))
	for _, msg := range prior {
		if msg.Notice || msg.Streaming || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		history = append(history, msg)
	}
	return history
}
