package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
	"github.com/zhouzirui/crisis-desk/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由；sessionRoutes 允许其他处理器挂载到同一会话路径下
func (h *Handler) RegisterRoutes(r chi.Router, sessionRoutes ...func(chi.Router)) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.handleGetSession)
		sr.Delete("/", h.handleDeleteSession)
		sr.Post("/reset", h.handleReset)
		sr.Put("/persona", h.handleUpdatePersona)
		sr.Put("/model", h.handleSelectModel)
		sr.Post("/models/refresh", h.handleRefreshModels)
		sr.Post("/messages", h.handleSendMessage)
		sr.Post("/retry", h.handleRetry)
		for _, register := range sessionRoutes {
			register(sr)
		}
	})
}

// StatusFor 将业务错误映射为HTTP状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrPersonaNotFound),
		errors.Is(err, chatService.ErrUnknownModel),
		errors.Is(err, chatService.ErrEmptySubmission),
		errors.Is(err, chatService.ErrNothingToRetry):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrGatewayMissing),
		errors.Is(err, chatService.ErrDiscoveryMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondOutcome 输出一次提交的结果；模型错误原样返回给用户
func RespondOutcome(w http.ResponseWriter, outcome chat.Outcome) {
	status := http.StatusOK
	if outcome.State == chat.StateRenderedError {
		status = http.StatusBadGateway
	}
	utils.RespondJSON(w, status, outcome)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
		Model     string `json:"model"`
	}

	// 允许空请求体，全部使用默认值
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), strings.TrimSpace(payload.PersonaID), strings.TrimSpace(payload.Model))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 获取会话快照（用于重新渲染对话）
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDeleteSession 浏览器会话结束时销毁会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReset 清空对话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleUpdatePersona 修改角色指令或切换预设
func (h *Handler) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID   string  `json:"personaId"`
		Instruction *string `json:"instruction"`
	}

	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID == "" && payload.Instruction == nil {
		utils.RespondError(w, http.StatusBadRequest, "personaId or instruction is required")
		return
	}

	// 同时提供时先切换预设，再覆盖指令，与 websocket config 消息一致
	sessionID := chi.URLParam(r, "sessionID")
	var (
		session chat.SessionView
		err     error
	)
	if payload.PersonaID != "" {
		if session, err = h.chatSvc.ApplyPreset(r.Context(), sessionID, payload.PersonaID); err != nil {
			utils.RespondError(w, StatusFor(err), err.Error())
			return
		}
	}
	if payload.Instruction != nil {
		if session, err = h.chatSvc.SetInstruction(r.Context(), sessionID, *payload.Instruction); err != nil {
			utils.RespondError(w, StatusFor(err), err.Error())
			return
		}
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSelectModel 选择模型
func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Model string `json:"model"`
	}

	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Model) == "" {
		utils.RespondError(w, http.StatusBadRequest, "model is required")
		return
	}

	session, err := h.chatSvc.SelectModel(r.Context(), chi.URLParam(r, "sessionID"), strings.TrimSpace(payload.Model))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleRefreshModels 重新获取模型列表
func (h *Handler) handleRefreshModels(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.RefreshModels(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSendMessage 提交用户消息并同步等待模型回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.chatSvc.SubmitText(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	RespondOutcome(w, outcome)
}

// handleRetry 重发上一条未得到回复的消息
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.chatSvc.Retry(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	RespondOutcome(w, outcome)
}
