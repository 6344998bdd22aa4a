package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"

	"github.com/zhouzirui/linear-tutor/internal/llm"
)

// Supported upstream providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderArk        = "ark"
)

// Config aggregates the relay server settings.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Relay  RelayConfig
}

// Load reads the relay configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Relay: relay}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// Accept ":5000" or "127.0.0.1:5000" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the upstream model.
type AIConfig struct {
	Provider string
	// KeyEnv names the variable the credential is read from, for error messages.
	KeyEnv         string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Referer        string
	Title          string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled reports whether the credentials required by the provider are present.
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// MissingCredential is the client-facing message used when Enabled is false.
func (c AIConfig) MissingCredential() string {
	if c.Model == "" {
		return "model name missing"
	}
	return c.KeyEnv + " missing"
}

// NewChatModel builds the chat model for the configured provider.
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("upstream credentials not configured: %s", c.MissingCredential())
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	switch c.Provider {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	case ProviderOpenRouter:
		return llm.NewChatModel(llm.Config{
			BaseURL:     c.BaseURL,
			APIKey:      c.APIKey,
			Model:       c.Model,
			Referer:     c.Referer,
			Title:       c.Title,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOpenRouter))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	switch provider {
	case ProviderArk:
		return AIConfig{
			Provider:       ProviderArk,
			KeyEnv:         "ARK_API_KEY",
			APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature:    temperature,
			TopP:           topP,
			MaxTokens:      maxTokens,
			StreamResponse: stream,
		}, nil
	case ProviderOpenRouter:
		if temperature == nil {
			val := 0.7
			temperature = &val
		}
		if maxTokens == nil {
			val := 500
			maxTokens = &val
		}

		keyEnv := "DEEPSEEK_API_KEY"
		apiKey := strings.TrimSpace(os.Getenv(keyEnv))
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
		}

		return AIConfig{
			Provider:       ProviderOpenRouter,
			KeyEnv:         keyEnv,
			APIKey:         apiKey,
			Model:          getEnvOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
			BaseURL:        getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Referer:        getEnvOrDefault("OPENROUTER_REFERER", "http://localhost:5000"),
			Title:          getEnvOrDefault("OPENROUTER_TITLE", "Linear-AI"),
			Temperature:    temperature,
			TopP:           topP,
			MaxTokens:      maxTokens,
			StreamResponse: stream,
		}, nil
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}
}

// RelayConfig holds the hardening knobs of the relay endpoint.
type RelayConfig struct {
	UpstreamTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	CORSOrigins     []string
}

func loadRelayConfig() (RelayConfig, error) {
	timeout, err := parseDurationEnv("RELAY_UPSTREAM_TIMEOUT", 60*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	rps := 5.0
	if override, err := parseOptionalFloatEnv("RELAY_RATE_LIMIT_RPS"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		rps = *override
	}

	burst := 10
	if override, err := parseOptionalIntEnv("RELAY_RATE_LIMIT_BURST"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		burst = *override
	}

	origins := []string{"*"}
	if raw := strings.TrimSpace(os.Getenv("RELAY_CORS_ORIGINS")); raw != "" {
		origins = origins[:0]
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}

	return RelayConfig{
		UpstreamTimeout: timeout,
		RateLimitRPS:    rps,
		RateLimitBurst:  burst,
		CORSOrigins:     origins,
	}, nil
}

// ClientConfig holds the settings of the tutor client.
type ClientConfig struct {
	RelayURL  string
	Transport string
	Style     string
	Timeout   time.Duration
	LogFile   string
}

// BindClientDefaults registers client defaults and environment lookup on v.
// Values resolve as flag > TUTOR_* env > .tutor.yaml > default.
func BindClientDefaults(v *viper.Viper) {
	v.SetDefault("relay", "http://localhost:5000")
	v.SetDefault("transport", "json")
	v.SetDefault("style", "step-by-step")
	v.SetDefault("timeout", "0s")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(".tutor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
}

// LoadClient resolves the client configuration from v.
func LoadClient(v *viper.Viper) (ClientConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return ClientConfig{}, fmt.Errorf("read tutor config: %w", err)
		}
	}

	relayURL := strings.TrimRight(strings.TrimSpace(v.GetString("relay")), "/")
	if relayURL == "" {
		return ClientConfig{}, fmt.Errorf("relay url is required")
	}

	transport := strings.ToLower(strings.TrimSpace(v.GetString("transport")))
	switch transport {
	case "json", "sse", "ws":
	default:
		return ClientConfig{}, fmt.Errorf("invalid transport %q (want json, sse or ws)", transport)
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("timeout")))
	if err != nil {
		return ClientConfig{}, fmt.Errorf("invalid timeout %q: %w", v.GetString("timeout"), err)
	}
	if timeout < 0 {
		return ClientConfig{}, fmt.Errorf("timeout must not be negative")
	}

	return ClientConfig{
		RelayURL:  relayURL,
		Transport: transport,
		Style:     v.GetString("style"),
		Timeout:   timeout,
		LogFile:   strings.TrimSpace(v.GetString("log_file")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Bare integers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
