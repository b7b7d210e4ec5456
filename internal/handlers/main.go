package handlers

import (
	"context"
	"html/template"
	"log/slog"
	"sync/atomic"
	"time"

	codexprime "github.com/MegaGrindStone/codex-prime-ui"
	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
)

// Streamer relays the user text to the model and reports each fragment of the reply.
type Streamer interface {
	Send(ctx context.Context, prior []models.Message, text string, onFragment func(string)) error
}

// Gate tells whether a usable credential exists and runs the credential selection flow.
type Gate interface {
	IsReady(ctx context.Context) (bool, error)
	State() chat.State
	SelectionAvailable() bool
	PromptForSelection(ctx context.Context, credential string) error
	CredentialRejected()
}

// Main is the top-level controller of the chat page. It owns the conversation, renders it with the
// embedded templates, and pushes every change to the browser through server-sent events.
//
// Only one response is streamed at a time: a submission made while a response is outstanding is
// rejected.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	streamer Streamer
	gate     Gate
	store    *chat.Store

	busy        *atomic.Bool
	unsubscribe func()

	logger *slog.Logger
}

const (
	messagesSSETopic = "messages"
	errLoggerKey     = "err"
)

// NewMain creates the controller with a conversation that opens with the persona greeting. It
// parses the templates from the embedded filesystem and subscribes to the conversation so every
// change is published to the connected browsers.
func NewMain(streamer Streamer, gate Gate, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		codexprime.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	store, err := chat.NewStore(models.Message{
		Sender: models.SenderAssistant,
		Text:   chat.Greeting,
		Notice: true,
	})
	if err != nil {
		return Main{}, err
	}

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, messagesSSETopic},
				}, true
			},
		},
		templates: tmpl,
		markdown:  newMarkdown(),
		streamer:  streamer,
		gate:      gate,
		store:     store,
		busy:      &atomic.Bool{},
		logger:    logger.With(slog.String("module", "main")),
	}
	m.unsubscribe = store.Subscribe(m.publishChange)

	return m, nil
}

// Messages returns a snapshot of the conversation.
func (m Main) Messages() []models.Message {
	return m.store.Messages()
}

// Busy reports whether a response is being streamed.
func (m Main) Busy() bool {
	return m.busy.Load()
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.unsubscribe()

	e := &sse.Message{Type: sse.Type("closeChat")}
	// SSE events need a data field to be dispatched by the browser
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
