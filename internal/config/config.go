package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
)

// ErrMissingAPIKey 表示没有配置任何模型服务密钥，服务无法启动。
var ErrMissingAPIKey = errors.New("missing API key: set LLM_API_KEY or the provider specific key")

// 支持的模型服务提供方。
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// DefaultFallbackModels 在模型列表不可用时作为兜底。
var DefaultFallbackModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Persona PersonaConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	personaCfg, err := loadPersonaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Persona: personaCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Region         string
	Model          string
	FallbackModels []string
	ModelHint      string
	Temperature    *float64
	MaxTokens      *int
	Timeout        time.Duration
	RateLimit      float64
	RateBurst      int

	// 语音转写（OpenAI 兼容的 transcription 接口）；密钥为空时不转写。
	TranscribeAPIKey  string
	TranscribeBaseURL string
	TranscribeModel   string
}

// PersonaConfig 描述角色指令的注入方式与预设来源。
type PersonaConfig struct {
	Strategy  persona.Strategy
	File      string
	DefaultID string
}

// Fallback 返回兜底模型列表；首选模型（若有）排在最前。
func (c AIConfig) Fallback() []string {
	out := make([]string, 0, len(c.FallbackModels)+1)
	if c.Model != "" {
		out = append(out, c.Model)
	}
	for _, m := range c.FallbackModels {
		if m != c.Model {
			out = append(out, m)
		}
	}
	return out
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	timeout := c.Timeout
	// 失败直接返回给用户，不在 SDK 内部重试。
	retryTimes := 0

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Timeout:     &timeout,
		RetryTimes:  &retryTimes,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	apiKey := firstEnv("LLM_API_KEY", providerKeyEnv(provider)...)
	if apiKey == "" {
		return AIConfig{}, ErrMissingAPIKey
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("LLM_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	rateLimit := 0.0
	if override, err := parseOptionalFloatEnv("LLM_RATE_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		rateLimit = *override
	}

	rateBurst := 1
	if override, err := parseOptionalIntEnv("LLM_RATE_BURST"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 1 {
		rateBurst = *override
	}

	baseURL := getEnvOrDefault("LLM_BASE_URL", defaultBaseURL(provider))

	// openai 提供方默认复用主密钥与地址做转写；ark 需要单独的转写密钥。
	transcribeKey := firstEnv("TRANSCRIBE_API_KEY", "OPENAI_API_KEY")
	transcribeBaseURL := defaultBaseURL(ProviderOpenAI)
	if provider == ProviderOpenAI {
		if transcribeKey == "" {
			transcribeKey = apiKey
		}
		transcribeBaseURL = baseURL
	}

	fallback := parseListEnv("LLM_FALLBACK_MODELS")
	if len(fallback) == 0 {
		fallback = append([]string(nil), DefaultFallbackModels...)
	}

	return AIConfig{
		Provider:       provider,
		APIKey:         apiKey,
		BaseURL:        baseURL,
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Model:          strings.TrimSpace(os.Getenv("LLM_MODEL")),
		FallbackModels: fallback,
		ModelHint:      getEnvOrDefault("LLM_MODEL_HINT", "flash"),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		RateLimit:      rateLimit,
		RateBurst:      rateBurst,

		TranscribeAPIKey:  transcribeKey,
		TranscribeBaseURL: getEnvOrDefault("TRANSCRIBE_BASE_URL", transcribeBaseURL),
		TranscribeModel:   getEnvOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
	}, nil
}

func loadPersonaConfig() (PersonaConfig, error) {
	raw := os.Getenv("PERSONA_STRATEGY")
	strategy, ok := persona.ParseStrategy(raw)
	if !ok {
		return PersonaConfig{}, fmt.Errorf("invalid PERSONA_STRATEGY value %q", raw)
	}

	return PersonaConfig{
		Strategy:  strategy,
		File:      strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		DefaultID: getEnvOrDefault("PERSONA_DEFAULT", persona.DefaultID),
	}, nil
}

func providerKeyEnv(provider string) []string {
	switch provider {
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return []string{"ARK_API_KEY"}
	}
}

func defaultBaseURL(provider string) string {
	if provider == ProviderOpenAI {
		return "https://api.openai.com/v1"
	}
	return "https://ark.cn-beijing.volces.com/api/v3"
}

func firstEnv(key string, more ...string) string {
	for _, k := range append([]string{key}, more...) {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
