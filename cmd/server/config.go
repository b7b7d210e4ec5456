package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	// sessionFactory builds the provider. credentials holds the selected credential, if any.
	sessionFactory(credentials services.CredentialSource, logger *slog.Logger) (chat.SessionFactory, error)
	// envKeys lists the environment variables holding the API key. Providers that need no
	// credential return nil.
	envKeys() []string
	apiKey() string
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider   string                 `yaml:"provider"`
	Model      string                 `yaml:"model"`
	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port            string    `yaml:"port"`
	LogLevel        string    `yaml:"logLevel"`
	SystemPrompt    string    `yaml:"systemPrompt"`
	CredentialStore string    `yaml:"credentialStore"`
	LLM             llmConfig `yaml:"llm"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
	BaseURL       string `yaml:"baseURL"`
}

const (
	defaultPort     = "8080"
	openRouterURL   = "https://openrouter.ai/api/v1"
	credentialBolt  = "bolt"
	credentialNone  = "none"
	providerGemini  = "gemini"
	providerOllama  = "ollama"
	providerOpenAI  = "openai"
	providerRouter  = "openrouter"
	providerClaude  = "anthropic"
	sharedAPIKeyEnv = "API_KEY"
)

func defaultConfig() config {
	return config{
		Port:            defaultPort,
		LogLevel:        "info",
		CredentialStore: credentialBolt,
		LLM: &geminiConfig{
			BaseLLMConfig: BaseLLMConfig{
				Provider:   providerGemini,
				Model:      chat.DefaultModel,
				Parameters: services.DefaultLLMParameters(),
			},
		},
	}
}

// loadConfig reads the YAML file at path. A missing file yields the default configuration.
func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port            string         `yaml:"port"`
		LogLevel        string         `yaml:"logLevel"`
		SystemPrompt    string         `yaml:"systemPrompt"`
		CredentialStore string         `yaml:"credentialStore"`
		LLM             map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.LogLevel != "" {
		c.LogLevel = rawConfig.LogLevel
	}
	c.SystemPrompt = rawConfig.SystemPrompt

	switch rawConfig.CredentialStore {
	case "":
	case credentialBolt, credentialNone:
		c.CredentialStore = rawConfig.CredentialStore
	default:
		return fmt.Errorf("unknown credential store: %s", rawConfig.CredentialStore)
	}

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case providerGemini:
		llm = &geminiConfig{}
	case providerOllama:
		llm = &ollamaConfig{}
	case providerOpenAI, providerRouter:
		llm = &openAIConfig{}
	case providerClaude:
		llm = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// systemInstruction returns the configured system prompt, or the Codex Prime persona.
func (c config) systemInstruction() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return chat.SystemInstruction
}

// credentialSource orders the places an API key may come from: the key selected in the browser,
// then the configuration file, then the environment.
func credentialSource(selected services.CredentialSource, llm llmConfig) services.CredentialSource {
	var chain services.CredentialChain
	if selected != nil {
		chain = append(chain, selected)
	}
	if key := llm.apiKey(); key != "" {
		chain = append(chain, services.StaticCredential(key))
	}
	return append(chain, services.EnvCredential(llm.envKeys()))
}

func (g geminiConfig) sessionFactory(
	credentials services.CredentialSource,
	logger *slog.Logger,
) (chat.SessionFactory, error) {
	model := g.Model
	if model == "" {
		model = chat.DefaultModel
	}
	gemini := services.NewGemini(credentials, model, g.Parameters.WithDefaults(), logger)
	if g.BaseURL != "" {
		gemini = gemini.WithEndpoint(g.BaseURL, nil)
	}
	return gemini, nil
}

func (g geminiConfig) envKeys() []string {
	return []string{"GEMINI_API_KEY", sharedAPIKeyEnv}
}

func (g geminiConfig) apiKey() string {
	return g.APIKey
}

func (o ollamaConfig) sessionFactory(_ services.CredentialSource, logger *slog.Logger) (chat.SessionFactory, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	return services.NewOllama(host, o.Model, o.Parameters.WithDefaults(), logger)
}

func (o ollamaConfig) envKeys() []string {
	return nil
}

func (o ollamaConfig) apiKey() string {
	return ""
}

func (o openAIConfig) sessionFactory(
	credentials services.CredentialSource,
	logger *slog.Logger,
) (chat.SessionFactory, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := o.BaseURL
	if baseURL == "" && o.Provider == providerRouter {
		baseURL = openRouterURL
	}
	return services.NewOpenAI(credentials, o.Model, baseURL, o.Parameters.WithDefaults(), logger), nil
}

func (o openAIConfig) envKeys() []string {
	if o.Provider == providerRouter {
		return []string{"OPENROUTER_API_KEY", sharedAPIKeyEnv}
	}
	return []string{"OPENAI_API_KEY", sharedAPIKeyEnv}
}

func (o openAIConfig) apiKey() string {
	return o.APIKey
}

func (a anthropicConfig) sessionFactory(
	credentials services.CredentialSource,
	logger *slog.Logger,
) (chat.SessionFactory, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required")
	}

	return services.NewAnthropic(credentials, a.Model, a.MaxTokens, a.BaseURL, a.Parameters.WithDefaults(), logger), nil
}

func (a anthropicConfig) envKeys() []string {
	return []string{"ANTHROPIC_API_KEY", sharedAPIKeyEnv}
}

func (a anthropicConfig) apiKey() string {
	return a.APIKey
}
