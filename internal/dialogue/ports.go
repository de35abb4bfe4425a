package dialogue

import (
	"context"
	"math/rand"
	"time"

	"curie/internal/hint"
	"curie/internal/llm"
	"curie/internal/models"
)

// Rollen der Chat-Nachrichten
const (
	RoleTutor = "tutor"
	RoleUser  = "user"
)

// Message ist eine Zeile im Chat
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Screen sagt der Oberfläche, welche Bedienelemente sie zeigt
type Screen string

const (
	ScreenGrades        Screen = "grades"
	ScreenTopics        Screen = "topics"
	ScreenComprehension Screen = "comprehension"
	ScreenOptions       Screen = "options"
	ScreenReasoning     Screen = "reasoning"
	ScreenQuiz          Screen = "quiz"
	ScreenEnded         Screen = "ended"
)

type GradeChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type TopicChoice struct {
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
}

type TopicGroup struct {
	Code   string        `json:"code"`
	Title  string        `json:"title"`
	Topics []TopicChoice `json:"topics"`
	// More zählt die nicht angezeigten Fragen (nur über Zufall erreichbar)
	More int `json:"more,omitempty"`
}

type QuizView struct {
	Title     string   `json:"title"`
	Index     int      `json:"index"`
	Total     int      `json:"total"`
	Text      string   `json:"text"`
	Options   []string `json:"options,omitempty"`
	OpenEnded bool     `json:"open_ended"`
}

// View ist der darzustellende Zustand
type View struct {
	Screen   Screen        `json:"screen"`
	Intro    string        `json:"intro,omitempty"`
	Grades   []GradeChoice `json:"grades,omitempty"`
	Topics   []TopicGroup  `json:"topics,omitempty"`
	Options  []string      `json:"options,omitempty"`
	Starters []string      `json:"starters,omitempty"`
	Strategy bool          `json:"strategy,omitempty"`
	Quiz     *QuizView     `json:"quiz,omitempty"`
}

// Surface ist die Darstellung beim Client
type Surface interface {
	AppendMessage(m Message)
	Render(v View)
	SessionEnded(reason string)
}

// Speech ist die Sprachausgabe der Sitzung
type Speech interface {
	Speak(text string, onDone func())
	Cancel()
	IsSpeaking() bool
}

// Listening ist das Mikrofon der Sitzung
type Listening interface {
	Start() error
	Stop()
	IsListening() bool
}

type HintOracle interface {
	GetHint(ctx context.Context, question string, hc hint.Context) hint.Hint
}

// ActivityLog schreibt best-effort; Fehler kommen nie zurück
type ActivityLog interface {
	LogEvent(username, action string, details map[string]string)
	AddMinute(username string)
	Transcript(sessionID, username, role, text, topicID string)
}

type Grader interface {
	GradeOpenAnswer(ctx context.Context, question, rubric, answer string) llm.Grade
}

// QuizStore liefert (nil, nil), wenn kein Quiz zugewiesen ist
type QuizStore interface {
	GetActiveQuiz() (*models.Quiz, error)
	SaveQuizResult(r *models.QuizResult) error
}

// Picker wählt einen Index in [0, n)
type Picker interface {
	Pick(n int) int
}

type randomPicker struct {
	rng *rand.Rand
}

// NewRandomPicker: seed 0 bedeutet zeitbasiert
func NewRandomPicker(seed int64) Picker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randomPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *randomPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return p.rng.Intn(n)
}

// Timings der Sitzung
type Timings struct {
	Inactivity     time.Duration
	Silence        time.Duration
	ScaffoldHint   time.Duration
	DecomposeHint  time.Duration
	PostFinalize   time.Duration
	SciELAReturn   time.Duration
	ReasoningGrace time.Duration
	Session        time.Duration
	SessionWarn    time.Duration
	LogoutDelay    time.Duration
	ActivityTick   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Inactivity:     10 * time.Second,
		Silence:        4 * time.Second,
		ScaffoldHint:   5 * time.Second,
		DecomposeHint:  4 * time.Second,
		PostFinalize:   4 * time.Second,
		SciELAReturn:   3 * time.Second,
		ReasoningGrace: time.Second,
		Session:        30 * time.Minute,
		SessionWarn:    25 * time.Minute,
		LogoutDelay:    5 * time.Second,
		ActivityTick:   time.Minute,
	}
}

// withDefaults füllt nicht gesetzte Werte auf
func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.Inactivity, d.Inactivity)
	fill(&t.Silence, d.Silence)
	fill(&t.ScaffoldHint, d.ScaffoldHint)
	fill(&t.DecomposeHint, d.DecomposeHint)
	fill(&t.PostFinalize, d.PostFinalize)
	fill(&t.SciELAReturn, d.SciELAReturn)
	fill(&t.ReasoningGrace, d.ReasoningGrace)
	fill(&t.Session, d.Session)
	fill(&t.SessionWarn, d.SessionWarn)
	fill(&t.LogoutDelay, d.LogoutDelay)
	fill(&t.ActivityTick, d.ActivityTick)
	return t
}
