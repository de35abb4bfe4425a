package models

import (
	"regexp"
	"strings"
	"time"
)

// Content ist der komplette Lernstoff: Klassenstufen mit Themenbereichen
type Content struct {
	BotName      string  `json:"bot_name" yaml:"bot_name"`
	IntroMessage string  `json:"intro_message" yaml:"intro_message"`
	Grades       []Grade `json:"grades" yaml:"grades"`
}

// Grade repräsentiert eine Klassenstufe
type Grade struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	IntroMessage string   `json:"intro_message" yaml:"intro_message"`
	Strands      []Strand `json:"strands" yaml:"strands"`
}

// Strand repräsentiert einen Themenbereich (Standard)
type Strand struct {
	Code        string     `json:"code" yaml:"code"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Question repräsentiert eine Multiple-Choice-Frage. CorrectAnswer ist
// nach dem Laden immer das einzige Feld mit der richtigen Antwort.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"text" yaml:"text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation"`
	Topic         string   `json:"topic,omitempty" yaml:"topic"`
	Analogy       string   `json:"analogy,omitempty" yaml:"analogy"`
}

// FindGrade sucht eine Klassenstufe per ID
func (c *Content) FindGrade(id string) (*Grade, bool) {
	for i := range c.Grades {
		if c.Grades[i].ID == id {
			return &c.Grades[i], true
		}
	}
	return nil, false
}

// FindQuestion sucht eine Frage samt Themenbereich
func (g *Grade) FindQuestion(id string) (*Question, *Strand, bool) {
	for si := range g.Strands {
		s := &g.Strands[si]
		for qi := range s.Questions {
			if s.Questions[qi].ID == id {
				return &s.Questions[qi], s, true
			}
		}
	}
	return nil, nil, false
}

// QuestionRef ist ein Paar aus Frage und Themenbereich
type QuestionRef struct {
	Question *Question
	Strand   *Strand
}

// AllQuestions flacht alle Fragen der Stufe ab
func (g *Grade) AllQuestions() []QuestionRef {
	var refs []QuestionRef
	for si := range g.Strands {
		s := &g.Strands[si]
		for qi := range s.Questions {
			refs = append(refs, QuestionRef{Question: &s.Questions[qi], Strand: s})
		}
	}
	return refs
}

// Label ist der Anzeigename des Themas einer Frage
func (q *Question) Label(s *Strand) string {
	if q.Topic != "" {
		return q.Topic
	}
	if s == nil {
		return ""
	}
	return strings.TrimSpace(codePrefix.ReplaceAllString(s.Title, ""))
}

// führender Standard-Code wie "8.P.1 " im Titel
var codePrefix = regexp.MustCompile(`^[0-9A-Z.]+\s+`)

// Student ist ein Eintrag der Klassenliste
type Student struct {
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	School       string    `json:"school"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FirstName für die Anrede
func (s *Student) FirstName() string {
	if s == nil {
		return ""
	}
	fields := strings.Fields(s.Name)
	if len(fields) == 0 {
		return s.Username
	}
	return fields[0]
}

// JournalEntry repräsentiert einen Tagebucheintrag
type JournalEntry struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Date      string    `json:"date"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Mood      string    `json:"mood,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Aktivitätsarten
const (
	ActivityLogin             = "login"
	ActivitySessionStart      = "session_start"
	ActivityQuestionCorrect   = "question_correct"
	ActivityQuestionIncorrect = "question_incorrect"
	ActivityHintRequested     = "hint_requested"
	ActivityQuizCompleted     = "quiz_completed"
)

// ActivityEvent repräsentiert einen Eintrag im Aktivitätsprotokoll
type ActivityEvent struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// DailyActivity zählt Lernminuten pro Tag
type DailyActivity struct {
	Username string `json:"username"`
	Day      string `json:"day"` // YYYY-MM-DD
	Minutes  int    `json:"minutes"`
}

// Fragetypen im Quiz
const (
	QuizMultipleChoice = "MC"
	QuizOpenEnded      = "OE"
)

// QuizQuestion ist eine Quizfrage (MC oder offen)
type QuizQuestion struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	Options     []string `json:"options,omitempty"`
	Correct     string   `json:"correct,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Rubric      string   `json:"rubric,omitempty"`
}

// Quiz repräsentiert ein von der Lehrkraft erzeugtes Quiz
type Quiz struct {
	ID        string         `json:"id"`
	GradeID   string         `json:"grade_id"`
	Title     string         `json:"title"`
	Standard  string         `json:"standard"`
	Questions []QuizQuestion `json:"questions"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created"`
}

// QuizAnswer ist eine bewertete Antwort
type QuizAnswer struct {
	Index    int    `json:"index"`
	Answer   string `json:"answer"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback,omitempty"`
}

// QuizResult repräsentiert das Ergebnis eines Schülers
type QuizResult struct {
	ID          string       `json:"id"`
	QuizID      string       `json:"quiz_id"`
	Username    string       `json:"username"`
	Score       int          `json:"score"`
	Total       int          `json:"total"`
	Answers     []QuizAnswer `json:"answers"`
	CompletedAt time.Time    `json:"completed_at"`
}

// ChatMessage repräsentiert eine Nachricht im Tutor-Chat
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role"` // user, sestin
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	TopicID   string    `json:"topic_id,omitempty"`
}
