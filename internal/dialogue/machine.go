package dialogue

import (
	"context"
	"fmt"
	"strings"

	"curie/internal/eventloop"
	"curie/internal/llm"
	"curie/internal/logger"
	"curie/internal/models"
	"curie/internal/timers"
)

// Deps sind die Mitspieler einer Sitzung. Listening, Activity, Grader und
// Quizzes dürfen nil sein.
type Deps struct {
	Content   *models.Content
	Surface   Surface
	Speech    Speech
	Listening Listening
	Hints     HintOracle
	Activity  ActivityLog
	Grader    Grader
	Quizzes   QuizStore
	Picker    Picker
	Exec      eventloop.Executor
	Bank      *timers.Bank
	Log       *logger.Logger
	Timings   Timings
}

// Machine ist der Dialog einer Sitzung
type Machine struct {
	ctx context.Context
	d   Deps
	t   Timings
	log *logger.Logger
	s   *Session
}

func New(ctx context.Context, sessionID string, d Deps) *Machine {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Picker == nil {
		d.Picker = NewRandomPicker(0)
	}
	if d.Grader == nil {
		d.Grader = llm.NewTutor(nil)
	}
	if d.Content == nil {
		d.Content = &models.Content{}
	}
	return &Machine{
		ctx: ctx,
		d:   d,
		t:   d.Timings.withDefaults(),
		log: d.Log.With("session", sessionID),
		s:   newSession(sessionID),
	}
}

// Snapshot liefert den aktuellen Zustand
func (m *Machine) Snapshot() Snapshot {
	return m.s.snapshot()
}

func (m *Machine) Session() *Session {
	return m.s
}

// Start begrüßt, startet die Sitzungsuhr und zeigt danach die Klassenstufen
func (m *Machine) Start(user *models.Student) {
	if m.s.Phase != PhaseIntro {
		return
	}
	m.s.User = user
	m.s.StartedAt = m.d.Bank.Now()
	if user != nil {
		m.log = m.log.With("user", user.Username)
	}
	m.log.Info("🚀 Sitzung gestartet", "guest", user == nil)

	intro := m.d.Content.IntroMessage
	if user != nil {
		m.add(RoleTutor, fmt.Sprintf(welcomeFmt, user.Name))
		intro = loggedInIntro
	}
	if intro == "" {
		intro = "Welcome scientists to TMSA Curie. Please select your grade."
	}
	m.add(RoleTutor, intro)
	m.speak(intro, func() {
		if m.s.Phase == PhaseIntro {
			m.renderGrades()
		}
	})

	m.logEvent(models.ActivitySessionStart, nil)
	m.startClock()
}

// Close beendet alles, was die Sitzung noch vorhat (Verbindungsende)
func (m *Machine) Close() {
	m.d.Bank.CancelAll()
	m.d.Speech.Cancel()
	m.stopListening()
}

// transition wechselt die oberste Phase und verwirft phasengebundene Timer
func (m *Machine) transition(p Phase) {
	m.d.Bank.Cancel(timers.PhaseScoped...)
	if m.s.Phase != p {
		m.log.Debug("Phase", "from", m.s.Phase, "to", p)
	}
	m.s.Phase = p
	m.s.scaffoldsShown = false
	m.s.resolved = false
	if p != PhaseDiscussion {
		m.s.Discussion = ""
		m.s.SelectedOption = ""
		m.s.Question = nil
	}
	if p != PhaseQuiz {
		m.s.quiz = nil
	}
}

func (m *Machine) setDiscussion(dp DiscussionPhase) {
	m.d.Bank.Cancel(timers.PhaseScoped...)
	m.s.Discussion = dp
	m.s.scaffoldsShown = false
	m.s.resolved = false
}

func (m *Machine) inDiscussion(dp DiscussionPhase) bool {
	return m.s.Phase == PhaseDiscussion && m.s.Discussion == dp
}

func (m *Machine) renderGrades() {
	m.transition(PhaseGradeSelection)
	grades := make([]GradeChoice, 0, len(m.d.Content.Grades))
	for _, g := range m.d.Content.Grades {
		grades = append(grades, GradeChoice{ID: g.ID, Title: g.Title})
	}
	m.d.Surface.Render(View{Screen: ScreenGrades, Grades: grades})
}

// SelectGrade ist der Klick auf eine Klassenstufe
func (m *Machine) SelectGrade(id string) {
	g, ok := m.d.Content.FindGrade(id)
	if !ok {
		m.log.Warn("⚠️ Unbekannte Klassenstufe", "grade", id)
		return
	}
	if !m.canSelectGrade() {
		return
	}
	m.add(RoleUser, g.Title)
	m.selectGrade(g)
}

func (m *Machine) canSelectGrade() bool {
	if m.s.Grade != nil {
		return false
	}
	return m.s.Phase == PhaseGradeSelection || m.s.Phase == PhaseIntro
}

func (m *Machine) selectGrade(g *models.Grade) {
	m.s.Grade = g
	m.log.Info("📚 Klassenstufe gewählt", "grade", g.ID)
	m.renderTopics(g.IntroMessage)
}

// renderTopics zeigt die Themen; speech leer heißt Standardansage
func (m *Machine) renderTopics(speech string) {
	if m.s.Grade == nil {
		m.renderGrades()
		return
	}
	m.transition(PhaseTopicSelection)
	if speech == "" {
		speech = topicsSpeech
	}
	m.s.topicSpeech = speech

	groups := make([]TopicGroup, 0, len(m.s.Grade.Strands))
	for _, s := range m.s.Grade.Strands {
		group := TopicGroup{Code: s.Code, Title: s.Title}
		for i, q := range s.Questions {
			if i == 5 {
				group.More = len(s.Questions) - 5
				break
			}
			label := q.Topic
			if label == "" {
				label = fmt.Sprintf("Question %d", i+1)
			}
			group.Topics = append(group.Topics, TopicChoice{QuestionID: q.ID, Label: label})
		}
		groups = append(groups, group)
	}
	m.d.Surface.Render(View{Screen: ScreenTopics, Intro: m.s.Grade.IntroMessage, Topics: groups})
	m.speak(speech, nil)
}

// SelectTopic ist der Klick auf eine Frage in der Themenliste
func (m *Machine) SelectTopic(questionID string) {
	if m.s.Phase != PhaseTopicSelection || m.s.Grade == nil {
		return
	}
	q, strand, ok := m.s.Grade.FindQuestion(questionID)
	if !ok {
		m.log.Warn("⚠️ Unbekannte Frage", "question", questionID)
		return
	}
	m.selectTopic(q, strand)
}

func (m *Machine) selectTopic(q *models.Question, strand *models.Strand) {
	m.transition(PhaseDiscussion)
	m.s.Question = q
	m.s.Strand = strand
	m.s.QuestionAttempts = 0
	m.log.Info("🎯 Frage gewählt", "question", q.ID, "strand", strand.Code)
	m.enterComprehension()
}

// StartRandomQuestion wählt gleichverteilt aus allen Fragen der Stufe
func (m *Machine) StartRandomQuestion() {
	if m.s.Grade == nil {
		return
	}
	if m.s.Phase != PhaseTopicSelection && m.s.Phase != PhaseDiscussion {
		return
	}
	refs := m.s.Grade.AllQuestions()
	if len(refs) == 0 {
		return
	}
	pick := refs[m.d.Picker.Pick(len(refs))]
	m.selectTopic(pick.Question, pick.Strand)
}

// Stop bricht die Sprachausgabe ab; die Phase bleibt
func (m *Machine) Stop() {
	m.d.Speech.Cancel()
	if m.s.Phase == PhaseIntro {
		// ohne Abschluss der Begrüßung kämen die Stufen nie
		m.renderGrades()
	}
}

// ToggleMic schaltet das Mikrofon; Ausgabe und Untätigkeits-Timer enden
func (m *Machine) ToggleMic() {
	if m.d.Listening == nil {
		return
	}
	m.interrupt()
	if m.d.Listening.IsListening() {
		m.d.Listening.Stop()
		return
	}
	m.startListening()
}

// Replay wiederholt die Ansage der Themenliste
func (m *Machine) Replay() {
	if m.s.Phase == PhaseTopicSelection && m.s.topicSpeech != "" {
		m.speak(m.s.topicSpeech, nil)
	}
}

// interrupt: jede Aktion im Verständnis-Schritt beendet Ausgabe und Timer
func (m *Machine) interrupt() {
	m.d.Bank.Cancel(timers.Inactivity)
	m.d.Speech.Cancel()
}

func (m *Machine) startListening() {
	if m.d.Listening == nil || m.d.Listening.IsListening() {
		return
	}
	if err := m.d.Listening.Start(); err != nil {
		m.log.Debug("Mikrofon nicht gestartet", "error", err)
	}
}

// stopListening: Stop ist auch während eines ausstehenden Starts gültig
func (m *Machine) stopListening() {
	if m.d.Listening != nil {
		m.d.Listening.Stop()
	}
}

// HandleInput verarbeitet getippten Text und Sprach-Transkripte gleich
func (m *Machine) HandleInput(raw string) {
	text := normalize(raw)
	if text == "" || m.s.Phase == PhaseEnded {
		return
	}
	m.add(RoleUser, strings.TrimSpace(raw))

	if strings.Contains(text, "stop") || strings.Contains(text, "cancel") {
		m.Stop()
		return
	}

	switch m.s.Phase {
	case PhaseGradeSelection, PhaseIntro:
		if !m.canSelectGrade() {
			return
		}
		for i := range m.d.Content.Grades {
			g := &m.d.Content.Grades[i]
			if strings.Contains(text, strings.ToLower(g.Title)) || strings.Contains(text, strings.ToLower(g.ID)) {
				m.selectGrade(g)
				return
			}
		}
	case PhaseTopicSelection:
		m.topicInput(text)
	case PhaseDiscussion:
		m.discussionInput(text)
	case PhaseQuiz:
		m.quizInput(strings.TrimSpace(raw))
	}
}

func (m *Machine) topicInput(text string) {
	if strings.Contains(text, "vocabulary") || strings.Contains(text, "random") {
		m.StartRandomQuestion()
		return
	}
	if strings.Contains(text, "quiz") {
		m.StartQuiz()
		return
	}
	// "back"/"grade" bleibt ohne Wirkung: die Stufe ist für die Sitzung fest
	for i := range m.s.Grade.Strands {
		s := &m.s.Grade.Strands[i]
		if strings.Contains(text, strings.ToLower(s.Title)) && len(s.Questions) > 0 {
			m.selectTopic(&s.Questions[0], s)
			return
		}
	}
}

func (m *Machine) discussionInput(text string) {
	switch m.s.Discussion {
	case Comprehension:
		switch {
		case strings.Contains(text, "option") || strings.Contains(text, "choice"):
			m.PresentOptions()
		case strings.Contains(text, "decompose") || strings.Contains(text, "break"):
			m.Decompose()
		case strings.Contains(text, "different") || strings.Contains(text, "skip") || strings.Contains(text, "change"):
			m.interrupt()
			m.StartRandomQuestion()
		default:
			m.comprehensionAnswer(text)
		}
	case Selection:
		if opt, ok := m.matchOption(text); ok {
			m.selectOption(opt)
		}
	case Reasoning:
		if m.s.SelectedOption == "" || m.s.resolved {
			return
		}
		m.stopListening()
		m.d.Bank.Arm(timers.Grace, m.t.ReasoningGrace, m.FinalizeAnswer)
	}
}

// comprehensionAnswer: eine genannte Option springt direkt zur Begründung,
// sonst zählt der Versuch und es gibt einen Anstoß
func (m *Machine) comprehensionAnswer(text string) {
	m.interrupt()
	if opt, ok := m.matchOption(text); ok {
		m.selectOption(opt)
		return
	}
	m.s.QuestionAttempts++
	m.tell(nudgePrompt)
}

// matchOption findet die erste Option, deren Text in der Eingabe vorkommt
func (m *Machine) matchOption(text string) (string, bool) {
	if m.s.Question == nil {
		return "", false
	}
	for _, opt := range m.s.Question.Options {
		if opt != "" && strings.Contains(text, strings.ToLower(opt)) {
			return opt, true
		}
	}
	return "", false
}

// add hängt eine Chatzeile an und schreibt sie ins Protokoll
func (m *Machine) add(role, text string) {
	m.d.Surface.AppendMessage(Message{Role: role, Text: text})
	if m.d.Activity != nil {
		topic := ""
		if m.s.Question != nil {
			topic = m.s.Question.ID
		}
		m.d.Activity.Transcript(m.s.ID, m.s.Username(), role, text, topic)
	}
}

func (m *Machine) speak(text string, onDone func()) {
	m.d.Speech.Speak(text, onDone)
}

// tell zeigt und spricht denselben Text
func (m *Machine) tell(text string) {
	m.add(RoleTutor, text)
	m.speak(text, nil)
}

func (m *Machine) logEvent(action string, details map[string]string) {
	if m.d.Activity == nil || m.s.User == nil {
		return
	}
	m.d.Activity.LogEvent(m.s.User.Username, action, details)
}

func (m *Machine) questionDetails() map[string]string {
	d := map[string]string{}
	if q := m.s.Question; q != nil {
		d["question"] = q.ID
		if q.Topic != "" {
			d["topic"] = q.Topic
		}
	}
	if m.s.Strand != nil {
		d["strand"] = m.s.Strand.Code
	}
	if m.s.Grade != nil {
		d["grade"] = m.s.Grade.ID
	}
	return d
}
