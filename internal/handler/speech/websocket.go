package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/crisis-desk/backend/internal/model/chat"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
)

const (
	defaultReadTimeout = 60 * time.Second
	// base64 编码后的音频分片加上 JSON 外壳
	maxFrameSize = maxUploadSize/3*4 + 64<<10
)

// WebSocketHandler 聊天WebSocket处理器
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader

	// readTimeout 只计算客户端空闲时间，模型调用期间不计时
	readTimeout   time.Duration
	maxAudioBytes int
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:   defaultReadTimeout,
		maxAudioBytes: maxUploadSize,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息，分片上传，IsFinal 时提交
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	Caption    string `json:"caption"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	PersonaID   string  `json:"personaId"`
	Instruction *string `json:"instruction,omitempty"`
	Model       string  `json:"model"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	audioFormat string
	caption     string
	buffer      bytes.Buffer
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := &connectionState{sessionID: sessionID}
	h.sendInfo(conn, sessionID, map[string]any{
		"type":    "connected",
		"persona": session.PersonaID,
		"model":   session.Model,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			conn.SetReadDeadline(time.Now().Add(h.readTimeout))
			continue
		}

		// 模型调用可能超过读超时，处理期间不设读截止时间
		conn.SetReadDeadline(time.Time{})
		h.handleMessage(ctx, conn, state, &msg)
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "retry":
		outcome, err := h.chatSvc.Retry(ctx, state.sessionID)
		h.sendOutcome(conn, state.sessionID, outcome, err)
	case "reset":
		h.handleReset(ctx, conn, state)
	case "config":
		h.handleConfigMessage(ctx, conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if state.buffer.Len()+len(audio.AudioData) > h.maxAudioBytes {
		log.Printf("[websocket] audio too large session=%s buffered=%d chunk=%d", state.sessionID, state.buffer.Len(), len(audio.AudioData))
		state.buffer.Reset()
		state.caption = ""
		h.sendError(conn, fmt.Sprintf("voice message exceeds %d MB", h.maxAudioBytes>>20))
		return
	}

	if len(audio.AudioData) > 0 {
		written, _ := state.buffer.Write(audio.AudioData)
		log.Printf("[websocket] buffered audio chunk session=%s size=%d total=%d", state.sessionID, written, state.buffer.Len())
	}
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Caption != "" {
		state.caption = audio.Caption
	}

	if !audio.IsFinal {
		return
	}

	data := append([]byte(nil), state.buffer.Bytes()...)
	caption := state.caption
	state.buffer.Reset()
	state.caption = ""

	if len(data) == 0 {
		h.sendError(conn, chatService.ErrEmptySubmission.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "user",
		"text": displayCaption(caption),
	})

	outcome, err := h.chatSvc.SubmitAudio(ctx, state.sessionID, data, MIMEType(state.audioFormat), caption)
	h.sendOutcome(conn, state.sessionID, outcome, err)
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		h.sendError(conn, chatService.ErrEmptySubmission.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "user",
		"text": text.Text,
	})

	outcome, err := h.chatSvc.SubmitText(ctx, state.sessionID, text.Text)
	h.sendOutcome(conn, state.sessionID, outcome, err)
}

func (h *WebSocketHandler) handleReset(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	state.buffer.Reset()
	state.caption = ""

	session, err := h.chatSvc.Reset(ctx, state.sessionID)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "reset",
		"session": session,
	})
}

func (h *WebSocketHandler) handleConfigMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	session, err := h.applyConfig(ctx, state.sessionID, cfg)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	log.Printf("[websocket] config applied session=%s persona=%s model=%s", state.sessionID, session.PersonaID, session.Model)

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "config",
		"session": session,
	})
}

// applyConfig 依次应用预设、自定义指令与模型选择
func (h *WebSocketHandler) applyConfig(ctx context.Context, sessionID string, cfg ConfigMessage) (chat.SessionView, error) {
	var (
		session chat.SessionView
		err     error
	)
	if cfg.PersonaID != "" {
		if session, err = h.chatSvc.ApplyPreset(ctx, sessionID, cfg.PersonaID); err != nil {
			return chat.SessionView{}, err
		}
	}
	if cfg.Instruction != nil {
		if session, err = h.chatSvc.SetInstruction(ctx, sessionID, *cfg.Instruction); err != nil {
			return chat.SessionView{}, err
		}
	}
	if cfg.Model != "" {
		if session, err = h.chatSvc.SelectModel(ctx, sessionID, cfg.Model); err != nil {
			return chat.SessionView{}, err
		}
	}
	if cfg.PersonaID == "" && cfg.Instruction == nil && cfg.Model == "" {
		return h.chatSvc.GetSession(ctx, sessionID)
	}
	return session, nil
}

// sendOutcome 模型回复走 result 帧；模型错误原样放在 error 帧里
func (h *WebSocketHandler) sendOutcome(conn *websocket.Conn, sessionID string, outcome chat.Outcome, err error) {
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	if outcome.State == chat.StateRenderedError {
		h.sendError(conn, outcome.Error)
		return
	}

	text := ""
	if outcome.Reply != nil {
		text = outcome.Reply.DisplayText
	}
	h.sendInfo(conn, sessionID, map[string]any{
		"type":    "reply",
		"text":    text,
		"isFinal": true,
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write info failed: %v", err)
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.readTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Printf("[websocket] ping failed: %v", err)
				}
				return
			}
		}
	}
}

func displayCaption(caption string) string {
	if caption == "" {
		return chat.AudioPlaceholder
	}
	return caption
}
