package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"curie/internal/auth"
	"curie/internal/content"
	"curie/internal/dialogue"
	"curie/internal/listen"
	"curie/internal/logger"
	"curie/internal/models"
	"curie/internal/speech"
	"curie/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HubOptions sind die Dienste, die jede Lernsitzung teilt
type HubOptions struct {
	Content  *content.Loader
	Auth     *auth.Service
	Hints    dialogue.HintOracle
	Activity dialogue.ActivityLog
	Grader   dialogue.Grader
	Quizzes  dialogue.QuizStore

	// Voice ist die entfernte Stimme (ElevenLabs); nil = nur Browser-Stimme
	Voice speech.Synthesizer
	// Transcriber erkennt gestreamtes Mikrofon-Audio; nil = Browser-Erkennung
	Transcriber listen.Transcriber

	Timings      dialogue.Timings
	RemoteResume time.Duration
	Log          *logger.Logger
}

// Hub verwaltet die offenen Sitzungen
type Hub struct {
	opts HubOptions
	log  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*wsSession
	wg       sync.WaitGroup
}

func NewHub(opts HubOptions) *Hub {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Quizzes != nil {
		opts.Quizzes = activeQuiz{opts.Quizzes}
	}
	return &Hub{
		opts:     opts,
		log:      opts.Log,
		sessions: make(map[string]*wsSession),
	}
}

// activeQuiz übersetzt "nicht gefunden" in (nil, nil) für den Dialog
type activeQuiz struct{ dialogue.QuizStore }

func (a activeQuiz) GetActiveQuiz() (*models.Quiz, error) {
	q, err := a.QuizStore.GetActiveQuiz()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return q, err
}

// Len ist die Zahl der offenen Sitzungen
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ServeWS öffnet eine Lernsitzung. Ohne Token lernt man als Gast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var student *models.Student
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.opts.Auth.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Role == auth.RoleStudent {
			st, err := h.opts.Auth.Student(claims)
			if err != nil {
				http.Error(w, "unknown student", http.StatusUnauthorized)
				return
			}
			student = st
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	c, err := h.opts.Content.Wait(ctx)
	cancel()
	if err != nil {
		http.Error(w, "content not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("⚠️ WebSocket-Upgrade fehlgeschlagen", "error", err)
		return
	}

	id := uuid.NewString()
	s := newSession(id, conn, student, c, h.opts, h.log)

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		s.run()
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
	}()
}

// Shutdown trennt alle Sitzungen und wartet, bis sie beendet sind
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for _, s := range h.sessions {
		s.conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
