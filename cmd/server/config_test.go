package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, credentialBolt, cfg.CredentialStore)
	assert.Equal(t, chat.SystemInstruction, cfg.systemInstruction())

	gemini, ok := cfg.LLM.(*geminiConfig)
	require.True(t, ok)
	assert.Equal(t, chat.DefaultModel, gemini.Model)
	assert.Equal(t, []string{"GEMINI_API_KEY", "API_KEY"}, cfg.LLM.envKeys())
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(t *testing.T, cfg config)
	}{
		{
			name: "Gemini with parameters",
			content: `
port: "9090"
logLevel: debug
systemPrompt: Be brief.
llm:
  provider: gemini
  model: gemini-2.0-flash
  apiKey: ${MY_KEY}
  parameters:
    temperature: 0.2
`,
			validate: func(t *testing.T, cfg config) {
				assert.Equal(t, "9090", cfg.Port)
				assert.Equal(t, "Be brief.", cfg.systemInstruction())

				level, err := cfg.logLevel()
				require.NoError(t, err)
				assert.Equal(t, slog.LevelDebug, level)

				gemini, ok := cfg.LLM.(*geminiConfig)
				require.True(t, ok)
				assert.Equal(t, "gemini-2.0-flash", gemini.Model)
				assert.Equal(t, "${MY_KEY}", gemini.apiKey())

				params := gemini.Parameters.WithDefaults()
				assert.InDelta(t, 0.2, *params.Temperature, 0.0001)
				assert.Equal(t, 64, *params.TopK)
			},
		},
		{
			name: "Ollama",
			content: `
llm:
  provider: ollama
  model: llama3.2
  host: http://ollama:11434
`,
			validate: func(t *testing.T, cfg config) {
				assert.Equal(t, defaultPort, cfg.Port)
				ollama, ok := cfg.LLM.(*ollamaConfig)
				require.True(t, ok)
				assert.Equal(t, "http://ollama:11434", ollama.Host)
				assert.Nil(t, cfg.LLM.envKeys())
			},
		},
		{
			name: "OpenRouter",
			content: `
credentialStore: none
llm:
  provider: openrouter
  model: google/gemini-2.5-flash
`,
			validate: func(t *testing.T, cfg config) {
				assert.Equal(t, credentialNone, cfg.CredentialStore)
				_, ok := cfg.LLM.(*openAIConfig)
				require.True(t, ok)
				assert.Equal(t, []string{"OPENROUTER_API_KEY", "API_KEY"}, cfg.LLM.envKeys())
			},
		},
		{
			name: "Anthropic",
			content: `
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
  maxTokens: 1024
`,
			validate: func(t *testing.T, cfg config) {
				anthropic, ok := cfg.LLM.(*anthropicConfig)
				require.True(t, ok)
				assert.Equal(t, 1024, anthropic.MaxTokens)
			},
		},
		{
			name:    "Missing provider",
			content: "llm:\n  model: gpt-4o\n",
			wantErr: true,
		},
		{
			name:    "Unknown provider",
			content: "llm:\n  provider: mistral\n",
			wantErr: true,
		},
		{
			name:    "Unknown credential store",
			content: "credentialStore: keychain\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLogLevelInvalid(t *testing.T) {
	cfg := defaultConfig()
	cfg.LogLevel = "loud"
	_, err := cfg.logLevel()
	assert.Error(t, err)
}

func TestSessionFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := services.StaticCredential("key")

	tests := []struct {
		name    string
		llm     llmConfig
		wantErr bool
	}{
		{
			name: "Gemini default model",
			llm:  &geminiConfig{},
		},
		{
			name: "Ollama",
			llm:  &ollamaConfig{BaseLLMConfig: BaseLLMConfig{Model: "llama3.2"}, Host: "http://localhost:11434"},
		},
		{
			name:    "Ollama without model",
			llm:     &ollamaConfig{},
			wantErr: true,
		},
		{
			name: "OpenAI",
			llm:  &openAIConfig{BaseLLMConfig: BaseLLMConfig{Provider: providerOpenAI, Model: "gpt-4o-mini"}},
		},
		{
			name:    "Anthropic without max tokens",
			llm:     &anthropicConfig{BaseLLMConfig: BaseLLMConfig{Model: "claude-3-5-haiku-latest"}},
			wantErr: true,
		},
		{
			name: "Anthropic",
			llm:  &anthropicConfig{BaseLLMConfig: BaseLLMConfig{Model: "claude-3-5-haiku-latest"}, MaxTokens: 512},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := tt.llm.sessionFactory(creds, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, factory)
		})
	}
}

func TestCredentialSource(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "from-env")

	ctx := context.Background()

	src := credentialSource(nil, &geminiConfig{})
	cred, err := src.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cred)

	src = credentialSource(nil, &geminiConfig{APIKey: "from-config"})
	cred, err = src.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-config", cred)

	keyring, err := services.NewBoltKeyring(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	defer keyring.Close()

	src = credentialSource(keyring, &geminiConfig{APIKey: "from-config"})
	cred, err = src.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-config", cred, "nothing selected yet")

	require.NoError(t, keyring.SelectCredential(ctx, "selected"))
	cred, err = src.Credential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "selected", cred)
}

func TestNewCredentials(t *testing.T) {
	dbPath := func(t *testing.T) string {
		return filepath.Join(t.TempDir(), "credentials.db")
	}

	t.Run("Provider without key", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.LLM = &ollamaConfig{}

		creds, err := newCredentials(cfg, dbPath(t))
		require.NoError(t, err)
		assert.IsType(t, services.NoCredential{}, creds.selector)
		assert.Nil(t, creds.selected)
		assert.NoError(t, creds.close())
	})

	t.Run("Bolt store", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("API_KEY", "")

		creds, err := newCredentials(defaultConfig(), dbPath(t))
		require.NoError(t, err)
		defer creds.close()
		assert.IsType(t, services.BoltKeyring{}, creds.selected)

		ok, err := creds.selector.HasSelectedCredential(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Bolt store with key in environment", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("API_KEY", "from-env")

		creds, err := newCredentials(defaultConfig(), dbPath(t))
		require.NoError(t, err)
		defer creds.close()

		gate := chat.NewGate(creds.selector, nil, chat.NewStreamer(nil, "", slog.Default()), slog.Default())
		ready, err := gate.IsReady(context.Background())
		require.NoError(t, err)
		assert.True(t, ready)
	})

	t.Run("No store", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.CredentialStore = credentialNone

		creds, err := newCredentials(cfg, dbPath(t))
		require.NoError(t, err)
		assert.Nil(t, creds.selector)

		gate := chat.NewGate(creds.selector, cfg.LLM.envKeys(), chat.NewStreamer(nil, "", slog.Default()), slog.Default())
		assert.False(t, gate.SelectionAvailable())
	})

	t.Run("No store with configured key", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.CredentialStore = credentialNone
		cfg.LLM = &geminiConfig{APIKey: "secret"}

		creds, err := newCredentials(cfg, dbPath(t))
		require.NoError(t, err)

		ctx := context.Background()
		source := credentialSource(creds.selected, cfg.LLM)
		gate := chat.NewGate(creds.selector, cfg.LLM.envKeys(), chat.NewStreamer(nil, "", slog.Default()), slog.Default())

		ready, err := gate.IsReady(ctx)
		require.NoError(t, err)
		assert.True(t, ready)
		cred, err := source.Credential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "secret", cred)

		gate.CredentialRejected()
		require.True(t, gate.SelectionAvailable())
		require.NoError(t, gate.PromptForSelection(ctx, "typed-key"))
		assert.Equal(t, chat.StateReady, gate.State())

		cred, err = source.Credential(ctx)
		require.NoError(t, err)
		assert.Equal(t, "typed-key", cred)
	})
}
