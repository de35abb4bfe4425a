// Package dialogue führt das Tutor-Gespräch einer Sitzung: Klassenstufe,
// Thema, Verständnis, Hypothese, Begründung und Auflösung. Alle Methoden
// laufen auf dem Event-Loop der Sitzung.
package dialogue

import (
	"strings"
	"time"

	"curie/internal/models"
)

// Phase ist die oberste Ebene des Dialogs
type Phase string

const (
	PhaseIntro          Phase = "intro"
	PhaseGradeSelection Phase = "grade_selection"
	PhaseTopicSelection Phase = "topic_selection"
	PhaseDiscussion     Phase = "discussion"
	PhaseQuiz           Phase = "quiz"
	PhaseEnded          Phase = "ended"
)

// DiscussionPhase gilt nur in PhaseDiscussion
type DiscussionPhase string

const (
	Comprehension DiscussionPhase = "comprehension"
	Selection     DiscussionPhase = "selection"
	Reasoning     DiscussionPhase = "reasoning"
)

type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
)

// ab so vielen richtigen Antworten in Folge steigt Easy auf Medium
const promoteThreshold = 3

// Session ist der komplette veränderliche Zustand eines Schülers
type Session struct {
	ID   string
	User *models.Student

	// Grade wird einmal gesetzt und bleibt bis zum Logout
	Grade    *models.Grade
	Strand   *models.Strand
	Question *models.Question

	Phase      Phase
	Discussion DiscussionPhase

	SelectedOption     string
	ConsecutiveCorrect int
	QuestionAttempts   int
	Difficulty         Difficulty

	StartedAt time.Time

	// resolved: die Antwort ist ausgewertet, bis zur nächsten Teilphase
	resolved       bool
	scaffoldsShown bool
	topicSpeech    string
	quiz           *quizRun
}

func newSession(id string) *Session {
	return &Session{ID: id, Phase: PhaseIntro, Difficulty: Medium}
}

// Username ist leer für Gäste
func (s *Session) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

// FirstName für die Anrede; Gäste heißen "Scientist"
func (s *Session) FirstName() string {
	if s.User == nil {
		return "Scientist"
	}
	if first := s.User.FirstName(); first != "" {
		return first
	}
	return "Scientist"
}

// Snapshot ist eine Kopie für Tests und Statusabfragen
type Snapshot struct {
	Phase              Phase           `json:"phase"`
	Discussion         DiscussionPhase `json:"discussion,omitempty"`
	GradeID            string          `json:"grade_id,omitempty"`
	StrandCode         string          `json:"strand_code,omitempty"`
	QuestionID         string          `json:"question_id,omitempty"`
	SelectedOption     string          `json:"selected_option,omitempty"`
	ConsecutiveCorrect int             `json:"consecutive_correct"`
	QuestionAttempts   int             `json:"question_attempts"`
	Difficulty         Difficulty      `json:"difficulty"`
	Resolved           bool            `json:"resolved,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Phase:              s.Phase,
		Discussion:         s.Discussion,
		SelectedOption:     s.SelectedOption,
		ConsecutiveCorrect: s.ConsecutiveCorrect,
		QuestionAttempts:   s.QuestionAttempts,
		Difficulty:         s.Difficulty,
		Resolved:           s.resolved,
	}
	if s.Grade != nil {
		snap.GradeID = s.Grade.ID
	}
	if s.Strand != nil {
		snap.StrandCode = s.Strand.Code
	}
	if s.Question != nil {
		snap.QuestionID = s.Question.ID
	}
	return snap
}

// normalize wie bei Sprache und Tastatur gleich
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
