package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an interface to the Anthropic Messages API. Sessions keep the exchanged turns
// and resend them with every request.
type Anthropic struct {
	model       string
	maxTokens   int
	params      LLMParameters
	credentials CredentialSource
	endpoint    string

	client *http.Client

	logger *slog.Logger
}

type anthropicSession struct {
	anthropic Anthropic
	apiKey    string
	system    string
	messages  []anthropicMessage
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicAuthError   = "authentication_error"
)

// NewAnthropic creates a new Anthropic instance with the specified model name and maximum token
// limit. An empty endpoint uses the Anthropic API.
func NewAnthropic(
	credentials CredentialSource,
	model string,
	maxTokens int,
	endpoint string,
	params LLMParameters,
	logger *slog.Logger,
) Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return Anthropic{
		model:       model,
		maxTokens:   maxTokens,
		params:      params,
		credentials: credentials,
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		client:      &http.Client{},
		logger:      logger.With(slog.String("module", "anthropic")),
	}
}

// NewSession implements chat.SessionFactory.
func (a Anthropic) NewSession(
	ctx context.Context,
	systemInstruction string,
	history []models.Message,
) (chat.Session, error) {
	apiKey, err := a.credentials.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading credential: %w", err)
	}
	if apiKey == "" {
		return nil, chat.ErrMissingCredential
	}

	msgs := make([]anthropicMessage, len(history))
	for i, msg := range history {
		msgs[i] = anthropicMessage{
			Role:    string(msg.Sender),
			Content: msg.Text,
		}
	}

	return &anthropicSession{
		anthropic: a,
		apiKey:    apiKey,
		system:    systemInstruction,
		messages:  msgs,
	}, nil
}

// SendStream implements chat.Session. The turn is recorded in the session only when the reply
// streamed to completion.
func (s *anthropicSession) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(slices.Clone(s.messages), anthropicMessage{
			Role:    string(models.SenderUser),
			Content: text,
		})

		resp, err := s.doRequest(ctx, msgs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", anthropicStatusError(resp))
			return
		}

		var reply strings.Builder
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", e.err())
				return
			case "message_stop":
				s.record(msgs, reply.String())
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				reply.WriteString(res.Delta.Text)
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				continue
			}
		}

		yield("", errors.New("stream closed before message_stop"))
	}
}

func (s *anthropicSession) record(msgs []anthropicMessage, reply string) {
	s.messages = append(msgs, anthropicMessage{
		Role:    string(models.SenderAssistant),
		Content: reply,
	})
}

func (s *anthropicSession) doRequest(ctx context.Context, msgs []anthropicMessage) (*http.Response, error) {
	a := s.anthropic
	reqBody := anthropicChatRequest{
		Model:       a.model,
		Messages:    msgs,
		System:      s.system,
		MaxTokens:   a.maxTokens,
		Temperature: a.params.Temperature,
		TopK:        a.params.TopK,
		TopP:        a.params.TopP,
		Stream:      true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	return a.client.Do(req)
}

func anthropicStatusError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unexpected status %d: %w", resp.StatusCode, err)
	}

	var e anthropicError
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Type == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: status %d", chat.ErrCredentialRejected, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return e.err()
}

func (e anthropicError) err() error {
	err := fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message)
	if e.Error.Type == anthropicAuthError {
		return fmt.Errorf("%w: %w", chat.ErrCredentialRejected, err)
	}
	return err
}
