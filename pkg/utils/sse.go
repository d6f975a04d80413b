package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// SetupSSEHeaders 设置 SSE 响应头，跨域由路由层的 CORS 中间件处理
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// 反向代理（nginx）不缓冲事件
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent 写出一个具名事件：event 行加 JSON data 行
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse event %s: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		log.Printf("[sse] failed to write event %s: %v", event, err)
		return err
	}
	flusher.Flush()
	return nil
}
