package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	"github.com/zhouzirui/crisis-desk/backend/internal/model/persona"
	"github.com/zhouzirui/crisis-desk/backend/internal/service/ai"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
)

type nopGateway struct{}

func (nopGateway) ListModels(context.Context) ([]chat.ModelInfo, error) {
	return nil, ai.ErrListingUnsupported
}

func (nopGateway) Send(context.Context, string, ai.Payload) (string, error) {
	return "ok", nil
}

func newTestRouter() http.Handler {
	personas := persona.NewMemoryStore(persona.Seed())
	chatSvc := chatService.NewService(chatService.Options{
		Personas:  personas,
		Gateway:   nopGateway{},
		Discovery: ai.NewDiscovery(nopGateway{}, ai.DiscoveryConfig{Fallback: []string{"gemini-pro"}}),
	})
	return NewRouter(personas, chatSvc)
}

func TestRouterServesAPI(t *testing.T) {
	r := newTestRouter()

	for _, path := range []string{"/api/health", "/api/personas"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterMountsAudioUnderSession(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/session/missing/audio", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// 非 multipart 请求在解析阶段被拒绝，说明路由已挂载
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}
