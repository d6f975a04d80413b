package speech

import (
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/crisis-desk/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/crisis-desk/backend/internal/service/chat"
	"github.com/zhouzirui/crisis-desk/backend/pkg/utils"
)

// maxUploadSize 语音上传大小上限
const maxUploadSize = 32 << 20

// Handler 语音消息的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建语音处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterSessionRoutes 注册挂在 /session/{sessionID} 下的语音路由
func (h *Handler) RegisterSessionRoutes(r chi.Router) {
	r.Post("/audio", h.handleSubmitAudio)
}

// handleSubmitAudio 接收 multipart 上传的录音（可附带文字说明）并提交给模型
func (h *Handler) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = MIMEType(inferAudioFormat(header.Filename))
	}

	sessionID := chi.URLParam(r, "sessionID")
	log.Printf("[speech] audio upload session=%s mime=%s bytes=%d", sessionID, mimeType, len(data))

	outcome, err := h.chatSvc.SubmitAudio(r.Context(), sessionID, data, mimeType, r.FormValue("text"))
	if err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}
	chatHandler.RespondOutcome(w, outcome)
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".webm":
		return "webm"
	case ".m4a":
		return "m4a"
	case ".aac":
		return "aac"
	case ".ogg", ".oga":
		return "ogg"
	default:
		return "wav"
	}
}

// MIMEType 将音频格式名转换为 MIME 类型
func MIMEType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "webm":
		return "audio/webm"
	case "m4a", "mp4":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	case "ogg":
		return "audio/ogg"
	case "wav", "":
		return "audio/wav"
	}
	if byExt := mime.TypeByExtension("." + format); strings.HasPrefix(byExt, "audio/") {
		return byExt
	}
	return "audio/wav"
}
