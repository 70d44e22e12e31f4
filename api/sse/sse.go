// Package sse writes Server-Sent Events frames, shared by the A2A
// message/stream and REST flow-events endpoints (spec.md sections
// 4.7, 4.9).
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Write encodes payload as JSON and writes one "event: name" SSE
// frame, flushing immediately so streaming clients see it without
// buffering delay.
func Write(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
