package services

import (
	"context"
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
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI opens chat sessions against the OpenAI chat completion API, or any compatible endpoint
// such as OpenRouter when baseURL is set.
type OpenAI struct {
	model       string
	baseURL     string
	params      LLMParameters
	credentials CredentialSource

	logger *slog.Logger
}

type openAISession struct {
	openai   OpenAI
	client   *goopenai.Client
	messages []goopenai.ChatCompletionMessage
}

// NewOpenAI creates a new OpenAI instance. An empty baseURL uses the OpenAI API.
func NewOpenAI(credentials CredentialSource, model, baseURL string, params LLMParameters, logger *slog.Logger) OpenAI {
	return OpenAI{
		model:       model,
		baseURL:     baseURL,
		params:      params,
		credentials: credentials,
		logger:      logger.With(slog.String("module", "openai")),
	}
}

// NewSession implements chat.SessionFactory.
func (o OpenAI) NewSession(
	ctx context.Context,
	systemInstruction string,
	history []models.Message,
) (chat.Session, error) {
	apiKey, err := o.credentials.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading credential: %w", err)
	}
	if apiKey == "" {
		return nil, chat.ErrMissingCredential
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(history)+1)
	if systemInstruction != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	for _, msg := range history {
		role := goopenai.ChatMessageRoleUser
		if msg.Sender == models.SenderAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	return &openAISession{
		openai:   o,
		client:   goopenai.NewClientWithConfig(cfg),
		messages: msgs,
	}, nil
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}
	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	return req
}

// SendStream implements chat.Session. The turn is recorded in the session only when the reply
// streamed to completion.
func (s *openAISession) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(slices.Clone(s.messages), goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleUser,
			Content: text,
		})

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := s.client.CreateChatCompletionStream(ctx, s.openai.chatRequest(msgs))
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", openAIError(err)))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				yield("", fmt.Errorf("error receiving response: %w", openAIError(err)))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			content := response.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			reply.WriteString(content)
			if !yield(content, nil) {
				return
			}
		}

		s.messages = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleAssistant,
			Content: reply.String(),
		})
	}
}

// openAIError marks authentication failures so they are reported as a rejected credential.
func openAIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && isAuthStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w", chat.ErrCredentialRejected, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && isAuthStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w", chat.ErrCredentialRejected, err)
	}
	return err
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
