package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter erstellt den HTTP-Router mit allen Endpoints
func NewRouter(h *Handler, staticDir string) http.Handler {
	r := mux.NewRouter()

	// Hint-Proxy; die Methode prüft der Handler selbst (405)
	r.HandleFunc("/hint", h.HintProxy)

	// Sitzungskanal
	if h.sessions != nil {
		r.HandleFunc("/ws", h.sessions.ServeWS).Methods("GET")
	}

	// API-Version
	api := r.PathPrefix("/api/v1").Subrouter()

	// System
	api.HandleFunc("/health", h.HealthCheck).Methods("GET")
	api.HandleFunc("/content", h.GetContent).Methods("GET")

	// Anmeldung
	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	api.HandleFunc("/auth/signup", h.Signup).Methods("POST")

	// Tagebuch
	api.HandleFunc("/journal", h.requireAuth(h.GetJournal)).Methods("GET")
	api.HandleFunc("/journal", h.requireAuth(h.CreateJournalEntry)).Methods("POST")

	// Aktivität
	api.HandleFunc("/activity", h.requireAuth(h.GetActivity)).Methods("GET")

	// Quiz
	api.HandleFunc("/quizzes", h.requireTeacher(h.GetQuizzes)).Methods("GET")
	api.HandleFunc("/quizzes", h.requireTeacher(h.CreateQuiz)).Methods("POST")
	api.HandleFunc("/quizzes/active", h.requireAuth(h.GetActiveQuiz)).Methods("GET")
	api.HandleFunc("/quizzes/active", h.requireTeacher(h.ClearActiveQuiz)).Methods("DELETE")
	api.HandleFunc("/quizzes/{id}", h.requireTeacher(h.GetQuiz)).Methods("GET")
	api.HandleFunc("/quizzes/{id}/assign", h.requireTeacher(h.AssignQuiz)).Methods("POST")
	api.HandleFunc("/quizzes/{id}/results", h.requireTeacher(h.GetQuizResults)).Methods("GET")

	// Chatverlauf
	api.HandleFunc("/sessions/{id}/transcript", h.requireAuth(h.GetTranscript)).Methods("GET")

	// Statische Dateien (Frontend)
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	// CORS für lokale Entwicklung
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}
