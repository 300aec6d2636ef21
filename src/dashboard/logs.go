package dashboard

import (
	"fmt"
	"net/http"
)

// streamLogs 以 chunked 方式持续输出新日志, 客户端断开或服务关闭时退出
func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	sub := s.logger.Subscribe()
	defer s.logger.Unsubscribe(sub)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}
			fmt.Fprintln(w, msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}
