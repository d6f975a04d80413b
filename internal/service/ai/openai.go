package ai

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

// openAIClient is the subset of the go-openai client used by the gateway.
type openAIClient interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	Temperature        *float64
	MaxTokens          *int
	Timeout            time.Duration
	TranscriptionModel string
}

// OpenAIGateway talks to any OpenAI-compatible chat completion API.
type OpenAIGateway struct {
	client             openAIClient
	temperature        float32
	maxTokens          int
	transcriptionModel string
}

// NewOpenAIGateway creates a gateway backed by go-openai.
func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	g := newOpenAIGateway(openai.NewClientWithConfig(clientCfg))
	if cfg.Temperature != nil {
		g.temperature = float32(*cfg.Temperature)
	}
	if cfg.MaxTokens != nil {
		g.maxTokens = *cfg.MaxTokens
	}
	if cfg.TranscriptionModel != "" {
		g.transcriptionModel = cfg.TranscriptionModel
	}
	return g, nil
}

func newOpenAIGateway(client openAIClient) *OpenAIGateway {
	return &OpenAIGateway{client: client, transcriptionModel: openai.Whisper1}
}

// ListModels returns every model the endpoint reports, flagged by chat support.
func (g *OpenAIGateway) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	list, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]chat.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, chat.ModelInfo{
			ID:           m.ID,
			DisplayName:  strings.TrimPrefix(m.ID, "models/"),
			SupportsChat: supportsChat(m.ID),
		})
	}
	return models, nil
}

// Send issues one chat completion. Chat completions only take text here, so
// voice turns travel as the transcripts made at submission.
func (g *OpenAIGateway) Send(ctx context.Context, modelID string, payload Payload) (string, error) {
	messages, err := convertMessages(payload)
	if err != nil {
		return "", NewGatewayError(modelID, err)
	}

	req := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", NewGatewayError(modelID, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", NewGatewayError(modelID, errEmptyResponse)
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[ai] openai response model=%s messages=%d length=%d", modelID, len(messages), len(content))
	return content, nil
}

func convertMessages(payload Payload) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(payload.Messages)+1)
	if payload.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: payload.System,
		})
	}

	for _, msg := range payload.Messages {
		text, err := flattenText(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: text,
		})
	}
	return out, nil
}

// Transcribe runs the clip through the transcription endpoint once.
func (g *OpenAIGateway) Transcribe(ctx context.Context, audio *chat.Audio) (string, error) {
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.transcriptionModel,
		FilePath: "clip" + audioExtension(audio.MIMEType),
		Reader:   bytes.NewReader(audio.Data),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	log.Printf("[ai] transcribed clip mime=%s bytes=%d length=%d", audio.MIMEType, len(audio.Data), len(resp.Text))
	return strings.TrimSpace(resp.Text), nil
}

func convertRole(role chat.Role) string {
	if role == chat.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

var nonChatFamilies = []string{
	"embedding", "whisper", "tts", "dall-e", "moderation", "transcribe", "image", "aqa",
}

// supportsChat flags models that accept conversational generation requests.
func supportsChat(id string) bool {
	lower := strings.ToLower(id)
	for _, family := range nonChatFamilies {
		if strings.Contains(lower, family) {
			return false
		}
	}
	return true
}

func audioExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".wav"
	}
}
