package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"curie/internal/activity"
	"curie/internal/auth"
	"curie/internal/content"
	"curie/internal/hint"
	"curie/internal/logger"
	"curie/internal/models"
	"curie/internal/quiz"
	"curie/internal/storage"
)

// Deps sind die gemeinsamen Dienste aller Endpunkte
type Deps struct {
	Store    storage.Storage
	Content  *content.Loader
	Auth     *auth.Service
	Activity *activity.Recorder
	Quizzes  *quiz.Builder
	// Upstream ist die Chat-API hinter POST /hint; nil = kein Schlüssel
	Upstream hint.Forwarder
	Sessions *Hub
	Log      *logger.Logger
}

// Handler verwaltet alle API-Endpunkte
type Handler struct {
	store    storage.Storage
	content  *content.Loader
	auth     *auth.Service
	activity *activity.Recorder
	quizzes  *quiz.Builder
	upstream hint.Forwarder
	sessions *Hub
	log      *logger.Logger
}

// NewHandler erstellt einen neuen API-Handler
func NewHandler(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Quizzes == nil {
		d.Quizzes = quiz.NewBuilder(0)
	}
	return &Handler{
		store:    d.Store,
		content:  d.Content,
		auth:     d.Auth,
		activity: d.Activity,
		quizzes:  d.Quizzes,
		upstream: d.Upstream,
		sessions: d.Sessions,
		log:      d.Log,
	}
}

// Response-Helper
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func getQueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// === Anmeldung im Request-Kontext ===

type claimsKey struct{}

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// requireAuth lässt nur Anfragen mit gültigem Token durch
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errorResponse(w, "Anmeldung erforderlich", http.StatusUnauthorized)
			return
		}
		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			errorResponse(w, "Ungültiges Token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

// requireTeacher: wie requireAuth, aber nur für die Lehrkraft
func (h *Handler) requireTeacher(next http.HandlerFunc) http.HandlerFunc {
	return h.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r.Context()).Role != auth.RoleTeacher {
			errorResponse(w, "Nur für Lehrkräfte", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// === System Endpoints ===

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := false
	select {
	case <-h.content.Ready():
		ready = true
	default:
	}

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Len()
	}

	jsonResponse(w, map[string]interface{}{
		"status":        "ok",
		"content_ready": ready,
		"hint_upstream": h.upstream != nil,
		"sessions":      sessions,
		"timestamp":     time.Now(),
	}, http.StatusOK)
}

// GetContent liefert den Lernstoff, sobald er geladen ist
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	c, err := h.content.Wait(ctx)
	if err != nil {
		errorResponse(w, "Lernstoff nicht verfügbar: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, c, http.StatusOK)
}

// === Anmeldung ===

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}

	sess, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			errorResponse(w, "Benutzername oder Passwort falsch", http.StatusUnauthorized)
			return
		}
		h.log.Error("❌ Login fehlgeschlagen", "error", err)
		errorResponse(w, "Login fehlgeschlagen", http.StatusInternalServerError)
		return
	}

	if sess.Role == auth.RoleStudent {
		h.activity.LogEvent(sess.Username, models.ActivityLogin, nil)
	}
	h.log.Info("🔑 Angemeldet", "user", sess.Username, "role", sess.Role)
	jsonResponse(w, sess, http.StatusOK)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}

	sess, err := h.auth.Signup(req)
	if err != nil {
		if errors.Is(err, auth.ErrMissingFields) {
			errorResponse(w, "Vorname, Nachname, Schule und Passwort sind erforderlich", http.StatusBadRequest)
			return
		}
		h.log.Error("❌ Registrierung fehlgeschlagen", "error", err)
		errorResponse(w, "Registrierung fehlgeschlagen", http.StatusInternalServerError)
		return
	}

	h.activity.LogEvent(sess.Username, models.ActivityLogin, map[string]string{"signup": "true"})
	h.log.Info("✓ Neuer Schüler", "user", sess.Username)
	jsonResponse(w, sess, http.StatusCreated)
}

// === Tagebuch ===

func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	limit := getQueryInt(r, "limit", 50)

	entries, err := h.store.GetJournalEntries(claims.Username, limit)
	if err != nil {
		errorResponse(w, "Fehler beim Laden des Tagebuchs", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	jsonResponse(w, entries, http.StatusOK)
}

func (h *Handler) CreateJournalEntry(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var entry models.JournalEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(entry.Content) == "" {
		errorResponse(w, "Inhalt fehlt", http.StatusBadRequest)
		return
	}

	now := time.Now()
	entry.ID = uuid.NewString()
	entry.Username = claims.Username
	entry.Timestamp = now
	if entry.Date == "" {
		entry.Date = now.Format("2006-01-02")
	}

	if err := h.store.SaveJournalEntry(&entry); err != nil {
		errorResponse(w, "Fehler beim Speichern", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, entry, http.StatusCreated)
}

// === Aktivität ===

// GetActivity liefert Ereignisse und Lernminuten. Die Lehrkraft darf
// mit ?username= jeden Schüler abfragen.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	username := claims.Username
	if q := r.URL.Query().Get("username"); q != "" && q != username {
		if claims.Role != auth.RoleTeacher {
			errorResponse(w, "Nur für Lehrkräfte", http.StatusForbidden)
			return
		}
		username = q
	}

	events, err := h.activity.Recent(r.Context(), username, getQueryInt(r, "days", 7))
	if err != nil {
		errorResponse(w, "Fehler beim Laden der Aktivität", http.StatusInternalServerError)
		return
	}
	daily, err := h.store.GetDailyActivity(username)
	if err != nil {
		errorResponse(w, "Fehler beim Laden der Lernzeit", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.ActivityEvent{}
	}
	if daily == nil {
		daily = []models.DailyActivity{}
	}

	jsonResponse(w, map[string]interface{}{
		"username": username,
		"events":   events,
		"daily":    daily,
	}, http.StatusOK)
}

// === Quiz (Lehrkraft) ===

func (h *Handler) GetQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.store.GetAllQuizzes()
	if err != nil {
		errorResponse(w, "Fehler beim Laden der Quizze", http.StatusInternalServerError)
		return
	}
	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	jsonResponse(w, quizzes, http.StatusOK)
}

// CreateQuiz baut ein Quiz aus einem Themenbereich
func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GradeID string `json:"grade_id"`
		Strand  string `json:"strand"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}

	c, err := h.content.Content()
	if err != nil {
		errorResponse(w, "Lernstoff noch nicht geladen", http.StatusServiceUnavailable)
		return
	}
	grade, ok := c.FindGrade(req.GradeID)
	if !ok {
		errorResponse(w, "Klassenstufe nicht gefunden", http.StatusNotFound)
		return
	}
	var strand *models.Strand
	for i := range grade.Strands {
		s := &grade.Strands[i]
		if strings.EqualFold(s.Code, req.Strand) || strings.EqualFold(s.Title, req.Strand) {
			strand = s
			break
		}
	}
	if strand == nil {
		errorResponse(w, "Themenbereich nicht gefunden", http.StatusNotFound)
		return
	}

	q, err := h.quizzes.Build(grade, strand)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyStrand) {
			errorResponse(w, "Themenbereich enthält keine Fragen", http.StatusBadRequest)
			return
		}
		errorResponse(w, "Quiz konnte nicht erstellt werden", http.StatusInternalServerError)
		return
	}
	if err := h.store.SaveQuiz(q); err != nil {
		errorResponse(w, "Fehler beim Speichern", http.StatusInternalServerError)
		return
	}

	h.log.Info("📝 Quiz erstellt", "quiz", q.ID, "strand", strand.Code, "questions", len(q.Questions))
	jsonResponse(w, q, http.StatusCreated)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := h.store.GetQuiz(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorResponse(w, "Quiz nicht gefunden", http.StatusNotFound)
			return
		}
		errorResponse(w, "Fehler beim Laden", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, q, http.StatusOK)
}

// AssignQuiz macht ein Quiz zum aktiven Quiz der Klasse
func (h *Handler) AssignQuiz(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.SetActiveQuiz(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorResponse(w, "Quiz nicht gefunden", http.StatusNotFound)
			return
		}
		errorResponse(w, "Fehler beim Zuweisen", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "assigned", "id": id}, http.StatusOK)
}

func (h *Handler) GetActiveQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := h.store.GetActiveQuiz()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorResponse(w, "Kein aktives Quiz", http.StatusNotFound)
			return
		}
		errorResponse(w, "Fehler beim Laden", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, q, http.StatusOK)
}

func (h *Handler) ClearActiveQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearActiveQuiz(); err != nil {
		errorResponse(w, "Fehler beim Zurücksetzen", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetQuizResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.GetQuizResults(mux.Vars(r)["id"])
	if err != nil {
		errorResponse(w, "Fehler beim Laden der Ergebnisse", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.QuizResult{}
	}
	jsonResponse(w, results, http.StatusOK)
}

// === Chatverlauf ===

// GetTranscript liefert den gespeicherten Chat einer Sitzung. Schüler
// sehen nur ihre eigenen Sitzungen.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	history, err := h.store.GetChatHistory(mux.Vars(r)["id"])
	if err != nil {
		errorResponse(w, "Fehler beim Laden des Verlaufs", http.StatusInternalServerError)
		return
	}
	if claims.Role != auth.RoleTeacher {
		for _, m := range history {
			if m.Username != claims.Username {
				errorResponse(w, "Kein Zugriff", http.StatusForbidden)
				return
			}
		}
	}
	if history == nil {
		history = []models.ChatMessage{}
	}
	jsonResponse(w, history, http.StatusOK)
}
