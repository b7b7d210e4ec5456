package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/models"
	"google.golang.org/genai"
)

// Gemini opens chat sessions against Google's Gemini API. The conversation history of a session is
// kept by the genai chat handle, so every turn only sends the new user text.
type Gemini struct {
	model       string
	params      LLMParameters
	credentials CredentialSource

	baseURL    string
	httpClient *http.Client

	logger *slog.Logger
}

type geminiSession struct {
	chat *genai.Chat
}

// Gemini reports an invalid key with this text and a 400 status.
const geminiInvalidKey = "API key not valid"

// NewGemini creates a Gemini provider. The credential is read from credentials every time a new
// session is created, so a newly selected key takes effect on the next session.
func NewGemini(credentials CredentialSource, model string, params LLMParameters, logger *slog.Logger) Gemini {
	return Gemini{
		model:       model,
		params:      params,
		credentials: credentials,
		logger:      logger.With(slog.String("module", "gemini")),
	}
}

// WithEndpoint returns a copy of g talking to baseURL through client. Empty values keep the SDK
// defaults.
func (g Gemini) WithEndpoint(baseURL string, client *http.Client) Gemini {
	g.baseURL = baseURL
	g.httpClient = client
	return g
}

// NewSession implements chat.SessionFactory.
func (g Gemini) NewSession(
	ctx context.Context,
	systemInstruction string,
	history []models.Message,
) (chat.Session, error) {
	apiKey, err := g.credentials.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading credential: %w", err)
	}
	if apiKey == "" {
		return nil, chat.ErrMissingCredential
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}

	c, err := client.Chats.Create(ctx, g.model, g.generateConfig(systemInstruction), geminiHistory(history))
	if err != nil {
		return nil, fmt.Errorf("error creating chat: %w", err)
	}

	g.logger.Debug("Chat created", slog.String("model", g.model), slog.Int("history", len(history)))

	return geminiSession{chat: c}, nil
}

func (g Gemini) generateConfig(systemInstruction string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: g.params.Temperature,
		TopP:        g.params.TopP,
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if g.params.TopK != nil {
		cfg.TopK = genai.Ptr(float32(*g.params.TopK))
	}
	return cfg
}

func geminiHistory(messages []models.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role genai.Role = genai.RoleUser
		if msg.Sender == models.SenderAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(msg.Text, role))
	}
	return history
}

// SendStream implements chat.Session.
func (s geminiSession) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				if strings.Contains(err.Error(), geminiInvalidKey) {
					err = fmt.Errorf("%w: %w", chat.ErrCredentialRejected, err)
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}
