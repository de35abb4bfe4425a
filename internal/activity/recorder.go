// Package activity protokolliert Lernereignisse und Lernminuten. Alle
// Schreibzugriffe sind best-effort und blockieren den Dialog nie.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"curie/internal/cache"
	"curie/internal/logger"
	"curie/internal/models"
)

// Store ist der Teil der Storage für das Protokoll
type Store interface {
	SaveActivity(ev *models.ActivityEvent) error
	GetActivitySince(username string, since time.Time) ([]models.ActivityEvent, error)
	AddDailyMinutes(username, day string, minutes int) (int, error)
	SaveChatMessage(msg *models.ChatMessage) error
}

// Recorder schreibt in SQLite und spiegelt in Redis (falls vorhanden)
type Recorder struct {
	store Store
	cache cache.ActivityCache
	log   *logger.Logger
	now   func() time.Time
	// async=false schreibt synchron (Tests)
	async bool
}

func NewRecorder(store Store, c cache.ActivityCache, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{store: store, cache: c, log: log, now: time.Now, async: true}
}

// Sync schaltet auf synchrones Schreiben
func (r *Recorder) Sync() *Recorder {
	r.async = false
	return r
}

func (r *Recorder) run(fn func()) {
	if r.async {
		go fn()
		return
	}
	fn()
}

// LogEvent speichert ein Ereignis; Gäste werden nicht protokolliert
func (r *Recorder) LogEvent(username, action string, details map[string]string) {
	if username == "" {
		return
	}
	ev := &models.ActivityEvent{
		ID:        uuid.NewString(),
		Username:  username,
		Action:    action,
		Details:   details,
		Timestamp: r.now(),
	}
	r.run(func() {
		if err := r.store.SaveActivity(ev); err != nil {
			r.log.Warn("⚠️ Aktivität nicht gespeichert", "action", action, "error", err)
			return
		}
		if r.cache == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.Push(ctx, ev); err != nil {
			r.log.Debug("Redis-Spiegelung fehlgeschlagen", "error", err)
		}
	})
}

// AddMinute zählt eine Lernminute für heute
func (r *Recorder) AddMinute(username string) {
	if username == "" {
		return
	}
	day := r.now().Format("2006-01-02")
	r.run(func() {
		total, err := r.store.AddDailyMinutes(username, day, 1)
		if err != nil {
			r.log.Warn("⚠️ Tagesaktivität nicht gespeichert", "error", err)
			return
		}
		r.log.Debug("⏱️ Lernzeit", "user", username, "minutes", total)
	})
}

// Transcript speichert eine Chat-Nachricht der Sitzung
func (r *Recorder) Transcript(sessionID, username, role, text, topicID string) {
	// chat_messages kennt nur user/assistant
	if role != "user" {
		role = "assistant"
	}
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Username:  username,
		Role:      role,
		Content:   text,
		Timestamp: r.now(),
		TopicID:   topicID,
	}
	r.run(func() {
		if err := r.store.SaveChatMessage(msg); err != nil {
			r.log.Debug("Chatverlauf nicht gespeichert", "error", err)
		}
	})
}

// Recent liefert die Ereignisse der letzten days Tage. Der Cache wird nur
// genutzt, wenn er den ganzen Zeitraum abdeckt.
func (r *Recorder) Recent(ctx context.Context, username string, days int) ([]models.ActivityEvent, error) {
	if days <= 0 {
		days = 7
	}
	since := r.now().AddDate(0, 0, -days)

	if r.cache != nil {
		events, err := r.cache.Recent(ctx, username, 0)
		if err == nil && len(events) > 0 && covers(events, since) {
			return filterSince(events, since), nil
		}
	}
	return r.store.GetActivitySince(username, since)
}

// covers: das älteste gecachte Ereignis liegt vor since
func covers(events []models.ActivityEvent, since time.Time) bool {
	return events[len(events)-1].Timestamp.Before(since)
}

func filterSince(events []models.ActivityEvent, since time.Time) []models.ActivityEvent {
	out := events[:0:0]
	for _, ev := range events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}
