package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
)

var errEmptyResponse = errors.New("model returned an empty response")

// ArkGateway sends payloads through an eino chain ending in an Ark chat model.
type ArkGateway struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewArkGateway compiles the chat chain around chatModel.
func NewArkGateway(ctx context.Context, chatModel model.ChatModel) (*ArkGateway, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("messages", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkGateway{chatModel: chatModel, chain: runnable}, nil
}

// ListModels is not available through Ark; discovery falls back.
func (g *ArkGateway) ListModels(context.Context) ([]chat.ModelInfo, error) {
	return nil, ErrListingUnsupported
}

// Send runs the chain once with the selected model. Ark only accepts text and
// images, so voice turns travel as their transcripts.
func (g *ArkGateway) Send(ctx context.Context, modelID string, payload Payload) (string, error) {
	messages, err := toSchemaMessages(payload)
	if err != nil {
		return "", NewGatewayError(modelID, err)
	}
	input := map[string]any{"messages": messages}

	var opts []compose.Option
	if modelID != "" {
		opts = append(opts, compose.WithChatModelOption(model.WithModel(modelID)))
	}

	response, err := g.chain.Invoke(ctx, input, opts...)
	if err != nil {
		return "", NewGatewayError(modelID, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", NewGatewayError(modelID, errEmptyResponse)
	}

	log.Printf("[ai] ark response model=%s messages=%d length=%d", modelID, len(payload.Messages), len(response.Content))
	return response.Content, nil
}

func toSchemaMessages(payload Payload) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(payload.Messages)+1)
	if payload.System != "" {
		out = append(out, schema.SystemMessage(payload.System))
	}

	for _, msg := range payload.Messages {
		text, err := flattenText(msg)
		if err != nil {
			return nil, err
		}
		switch msg.Role {
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(text, nil))
		default:
			out = append(out, schema.UserMessage(text))
		}
	}
	return out, nil
}

// flattenText joins text parts and audio transcripts in order.
func flattenText(msg Message) (string, error) {
	texts := make([]string, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		if !p.IsAudio() {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
			continue
		}
		if strings.TrimSpace(p.Transcript) == "" {
			return "", ErrAudioUnsupported
		}
		texts = append(texts, p.Transcript)
	}
	return strings.Join(texts, "\n"), nil
}
