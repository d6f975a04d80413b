package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/crisis-desk/backend/internal/config"
)

// NewGateway 根据配置选择模型服务提供方，并按需套上限流。
func NewGateway(ctx context.Context, cfg config.AIConfig) (Gateway, error) {
	var (
		gateway Gateway
		err     error
	)

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, modelErr := cfg.NewChatModel(ctx)
		if modelErr != nil {
			return nil, fmt.Errorf("create ark chat model: %w", modelErr)
		}
		gateway, err = NewArkGateway(ctx, chatModel)
	case config.ProviderOpenAI:
		gateway, err = NewOpenAIGateway(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		log.Printf("[ai] rate limiting model requests to %.2f/s burst=%d", cfg.RateLimit, cfg.RateBurst)
	}
	return NewRateLimited(gateway, cfg.RateLimit, cfg.RateBurst), nil
}

// NewTranscriber 返回语音转写器；未配置转写密钥时返回 nil，语音消息会被网关拒绝。
func NewTranscriber(cfg config.AIConfig) (Transcriber, error) {
	if cfg.TranscribeAPIKey == "" {
		log.Printf("[ai] no transcription key configured, voice messages will be rejected")
		return nil, nil
	}

	transcriber, err := NewOpenAIGateway(OpenAIConfig{
		APIKey:             cfg.TranscribeAPIKey,
		BaseURL:            cfg.TranscribeBaseURL,
		Timeout:            cfg.Timeout,
		TranscriptionModel: cfg.TranscribeModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create transcriber: %w", err)
	}
	return transcriber, nil
}
