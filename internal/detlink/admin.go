package detlink

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/skyfollow/internal/detect"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the detector link debug endpoints under /debug/.
// They are reachable only from localhost or the tailnet.
func (l *Link[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("detections", "live tail of detector frames (SSE)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := l.Subscribe()
		defer l.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case fd, ok := <-c:
				if !ok {
					return
				}
				payload, err := detect.MarshalFrameLine(fd)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("detections-stats", func(w http.ResponseWriter, r *http.Request) {
		frames, parseErrors, dropped := l.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"frames":       frames,
			"parse_errors": parseErrors,
			"dropped":      dropped,
		})
	})
}
