package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID        string
	Sender    string
	Content   template.HTML
	Timestamp string

	Streaming bool
	Notice    bool
}

// SSE event types for real-time updates.
var (
	messageSSEType = sse.Type("message")
	removeSSEType  = sse.Type("remove")
	stateSSEType   = sse.Type("state")
)

const (
	stateBusy       = "busy"
	stateIdle       = "idle"
	stateCredential = "credential"

	credentialPath = "/credential"
	redirectHeader = "X-Redirect"
)

// HandleChats accepts the user's text through HTTP POST requests. It appends the user message to
// the conversation, starts streaming the reply in the background, and renders the user message.
// The reply reaches the browser through SSE.
//
// The handler expects a "message" form field. It returns 405 for other methods, 400 when the text
// is blank, 401 with an X-Redirect header when no credential is ready, and 409 when a reply is
// still streaming.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text := strings.TrimSpace(r.FormValue("message"))
	if text == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	ready, err := m.ready(r.Context())
	if err != nil {
		m.logger.Error("Failed to check credential", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ready {
		w.Header().Set(redirectHeader, credentialPath)
		http.Error(w, "Credential is not ready", http.StatusUnauthorized)
		return
	}

	if !m.busy.CompareAndSwap(false, true) {
		http.Error(w, "A response is still streaming", http.StatusConflict)
		return
	}

	// The model is seeded with the conversation as it was before this message.
	prior := m.store.Messages()

	um := models.Message{
		ID:        uuid.New().String(),
		Sender:    models.SenderUser,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := m.store.Append(um); err != nil {
		m.busy.Store(false)
		m.logger.Error("Failed to add user message",
			slog.String("message", fmt.Sprintf("%+v", um)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.publishState(stateBusy)
	go m.respond(prior, text)

	if err := m.templates.ExecuteTemplate(w, "message", m.renderMessage(um)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSSE streams conversation changes to the browser.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) respond(prior []models.Message, text string) {
	defer func() {
		m.busy.Store(false)
		m.publishState(stateIdle)
	}()

	// The reply runs to completion or failure; it isn't tied to the submitting request.
	err := m.streamer.Send(context.Background(), prior, text, func(fragment string) {
		m.store.StreamAppend(fragment)
	})
	if err == nil {
		m.store.FinalizeStreaming()
		return
	}

	m.logger.Error("Failed to stream response", slog.String(errLoggerKey, err.Error()))

	// Partial output is never left visible after a failure.
	m.store.DiscardStreaming()

	notice := models.Message{
		ID:        uuid.New().String(),
		Sender:    models.SenderAssistant,
		Text:      chat.DisruptionNotice(err),
		CreatedAt: time.Now(),
		Notice:    true,
	}
	if err := m.store.Append(notice); err != nil {
		m.logger.Error("Failed to add error notice", slog.String(errLoggerKey, err.Error()))
	}

	if errors.Is(err, chat.ErrCredentialInvalid) {
		m.gate.CredentialRejected()
		// Without a selection flow the gate re-queries the environment instead.
		if m.gate.State() == chat.StateNotReady {
			m.publishState(stateCredential)
		}
	}
}

// ready reports whether a reply may be requested. After the model rejected the credential the
// user has to go through selection again, so the collaborator isn't queried in that state.
func (m Main) ready(ctx context.Context) (bool, error) {
	if m.gate.State() == chat.StateNotReady {
		return false, nil
	}
	return m.gate.IsReady(ctx)
}

func (m Main) publishChange(change models.Change) {
	msg := sse.Message{Type: messageSSEType}

	switch change.Kind {
	case models.ChangeRemoved:
		msg.Type = removeSSEType
		msg.AppendData(change.Message.ID)
	default:
		var sb strings.Builder
		if err := m.templates.ExecuteTemplate(&sb, "message", m.renderMessage(change.Message)); err != nil {
			m.logger.Error("Failed to render message",
				slog.String("id", change.Message.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
		msg.AppendData(sb.String())
	}

	if err := m.sseSrv.Publish(&msg, messagesSSETopic); err != nil {
		m.logger.Error("Failed to publish message",
			slog.String("kind", string(change.Kind)),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishState(state string) {
	msg := sse.Message{Type: stateSSEType}
	msg.AppendData(state)
	if err := m.sseSrv.Publish(&msg, messagesSSETopic); err != nil {
		m.logger.Error("Failed to publish state",
			slog.String("state", state),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) renderMessage(msg models.Message) message {
	return message{
		ID:        msg.ID,
		Sender:    string(msg.Sender),
		Content:   m.renderContent(msg),
		Timestamp: msg.CreatedAt.Format("2006-01-02 15:04:05"),
		Streaming: msg.Streaming,
		Notice:    msg.Notice,
	}
}
