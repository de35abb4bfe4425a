package api

import (
	"encoding/json"
	"net/http"

	"curie/internal/llm"
)

// HintProxy reicht eine Chat-Anfrage mit dem Server-Schlüssel an die
// Upstream-API weiter. Status und Antwort kommen unverändert zurück.
func (h *Handler) HintProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req llm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}

	if h.upstream == nil {
		errorResponse(w, "OpenAI API Key not configured on the server.", http.StatusInternalServerError)
		return
	}

	status, body, err := h.upstream.Forward(r.Context(), req)
	if err != nil {
		h.log.Warn("⚠️ Hint-Proxy fehlgeschlagen", "error", err)
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
