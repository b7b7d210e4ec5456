package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama opens chat sessions against an Ollama server. Ollama is stateless, so each session keeps
// the turns exchanged so far and resends them with every request.
type Ollama struct {
	host   string
	model  string
	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

type ollamaSession struct {
	ollama   Ollama
	messages []api.Message
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:   host,
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// NewSession implements chat.SessionFactory.
func (o Ollama) NewSession(_ context.Context, systemInstruction string, history []models.Message) (chat.Session, error) {
	msgs := make([]api.Message, 0, len(history)+1)
	if systemInstruction != "" {
		msgs = append(msgs, api.Message{
			Role:    "system",
			Content: systemInstruction,
		})
	}
	for _, msg := range history {
		msgs = append(msgs, api.Message{
			Role:    string(msg.Sender),
			Content: msg.Text,
		})
	}
	return &ollamaSession{ollama: o, messages: msgs}, nil
}

func (o Ollama) options() map[string]any {
	opts := make(map[string]any)
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopK != nil {
		opts["top_k"] = *o.params.TopK
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	return opts
}

// SendStream implements chat.Session. The turn is recorded in the session only when the reply
// streamed to completion.
func (s *ollamaSession) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(slices.Clone(s.messages), api.Message{
			Role:    "user",
			Content: text,
		})

		t := true
		req := api.ChatRequest{
			Model:    s.ollama.model,
			Messages: msgs,
			Stream:   &t,
			Options:  s.ollama.options(),
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var reply strings.Builder
		stopped := false
		err := s.ollama.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped {
				return nil
			}
			if res.Message.Content == "" {
				return nil
			}
			reply.WriteString(res.Message.Content)
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		})
		if stopped {
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}

		s.messages = append(msgs, api.Message{
			Role:    string(models.SenderAssistant),
			Content: reply.String(),
		})
		s.ollama.logger.Debug("Turn recorded", slog.Int("messages", len(s.messages)))
	}
}
