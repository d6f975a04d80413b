package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/crisis-desk/backend/internal/config"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
)

type fakeChatModel struct {
	input []*schema.Message
	model string
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	options := model.GetCommonOptions(&model.Options{}, opts...)
	if options.Model != nil {
		f.model = *options.Model
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

func TestArkGatewaySendUsesSelectedModel(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{reply: "Issue a holding statement within the hour."}
	gw, err := NewArkGateway(ctx, fake)
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}

	turns := append(conversation(2), chat.NewUserText("what now?"))
	payload := NewInjector(persona.StrategyInline).BuildOutboundPayload(turns, testInstruction)

	reply, err := gw.Send(ctx, "doubao-pro", payload)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if reply != fake.reply {
		t.Fatalf("unexpected reply %q", reply)
	}
	if fake.model != "doubao-pro" {
		t.Fatalf("expected model override, got %q", fake.model)
	}
	if len(fake.input) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(fake.input))
	}
	if fake.input[0].Role != schema.User || !strings.Contains(fake.input[0].Content, testInstruction) {
		t.Fatalf("unexpected first message: %+v", fake.input[0])
	}
	if fake.input[1].Role != schema.Assistant {
		t.Fatalf("expected assistant role, got %s", fake.input[1].Role)
	}
}

func TestArkGatewaySystemStrategy(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{reply: "ok"}
	gw, err := NewArkGateway(ctx, fake)
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}

	payload := NewInjector(persona.StrategySystem).BuildOutboundPayload(conversation(1), testInstruction)
	if _, err := gw.Send(ctx, "", payload); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if len(fake.input) != 2 || fake.input[0].Role != schema.System {
		t.Fatalf("expected leading system message, got %+v", fake.input)
	}
}

func TestArkGatewayAudioTravelsAsTranscript(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{reply: "heard you"}
	gw, err := NewArkGateway(ctx, fake)
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}

	turn := chat.NewUserAudio([]byte("clip"), "audio/webm", "")
	turn.Content.Transcript = "the warehouse is flooding"
	payload := NewInjector(persona.StrategyInline).BuildOutboundPayload([]chat.Turn{turn}, testInstruction)
	if _, err := gw.Send(ctx, "m", payload); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	first := fake.input[0]
	if len(first.MultiContent) != 0 {
		t.Fatalf("expected plain text message, got %d parts", len(first.MultiContent))
	}
	if !strings.HasPrefix(first.Content, "SYSTEM INSTRUCTIONS:\n"+testInstruction) {
		t.Fatalf("expected instruction block first, got %q", first.Content)
	}
	if !strings.HasSuffix(first.Content, "the warehouse is flooding") {
		t.Fatalf("expected transcript after the block, got %q", first.Content)
	}
}

// arkServer stands in for the Ark chat completions endpoint.
func arkServer(t *testing.T) (*httptest.Server, *int32, *[]string) {
	t.Helper()
	var (
		hits   int32
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"r1","object":"chat.completion","created":1,"model":"ep-test",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &bodies
}

func newRealArkGateway(t *testing.T, baseURL string) *ArkGateway {
	t.Helper()
	ctx := context.Background()
	chatModel, err := config.AIConfig{
		Provider: config.ProviderArk,
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Region:   "cn-beijing",
		Model:    "ep-test",
		Timeout:  5 * time.Second,
	}.NewChatModel(ctx)
	if err != nil {
		t.Fatalf("NewChatModel err: %v", err)
	}
	gw, err := NewArkGateway(ctx, chatModel)
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}
	return gw
}

func TestArkChatModelAcceptsTranscribedVoiceTurn(t *testing.T) {
	srv, hits, bodies := arkServer(t)
	gw := newRealArkGateway(t, srv.URL)

	turn := chat.NewUserAudio([]byte("clip"), "audio/webm", "")
	turn.Content.Transcript = "the warehouse is flooding"
	payload := NewInjector(persona.StrategyInline).BuildOutboundPayload([]chat.Turn{turn}, testInstruction)

	reply, err := gw.Send(context.Background(), "ep-test", payload)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if reply != "ok" || atomic.LoadInt32(hits) != 1 {
		t.Fatalf("unexpected reply %q hits=%d", reply, atomic.LoadInt32(hits))
	}
	body := (*bodies)[0]
	if !strings.Contains(body, "SYSTEM INSTRUCTIONS:") || !strings.Contains(body, "the warehouse is flooding") {
		t.Fatalf("request missing instruction or transcript: %s", body)
	}
	if strings.Contains(body, "audio_url") {
		t.Fatalf("request must not carry audio parts: %s", body)
	}
}

func TestArkChatModelRejectsUntranscribedAudio(t *testing.T) {
	srv, hits, _ := arkServer(t)
	gw := newRealArkGateway(t, srv.URL)

	turns := []chat.Turn{chat.NewUserAudio([]byte("clip"), "audio/webm", "")}
	payload := NewInjector(persona.StrategyInline).BuildOutboundPayload(turns, testInstruction)

	_, err := gw.Send(context.Background(), "ep-test", payload)

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || !errors.Is(err, ErrAudioUnsupported) {
		t.Fatalf("expected GatewayError wrapping ErrAudioUnsupported, got %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("expected no request to leave the process, got %d", atomic.LoadInt32(hits))
	}
}

func TestArkGatewaySendErrorIsGatewayError(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{err: errors.New("quota exceeded")}
	gw, err := NewArkGateway(ctx, fake)
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}

	_, err = gw.Send(ctx, "m", NewInjector(persona.StrategyInline).BuildOutboundPayload(conversation(1), ""))

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %T", err)
	}
	if !strings.Contains(gwErr.Error(), "quota exceeded") {
		t.Fatalf("expected provider message, got %q", gwErr.Error())
	}
}

func TestArkGatewayListingUnsupported(t *testing.T) {
	gw, err := NewArkGateway(context.Background(), &fakeChatModel{})
	if err != nil {
		t.Fatalf("NewArkGateway err: %v", err)
	}
	if _, err := gw.ListModels(context.Background()); !errors.Is(err, ErrListingUnsupported) {
		t.Fatalf("expected ErrListingUnsupported, got %v", err)
	}
}
