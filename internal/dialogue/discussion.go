package dialogue

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"curie/internal/hint"
	"curie/internal/llm"
	"curie/internal/models"
	"curie/internal/timers"
)

// K-4-Spur mit sofortiger Auswertung
const scielaGradeID = "SciELA"

func (m *Machine) enterComprehension() {
	m.setDiscussion(Comprehension)
	m.s.QuestionAttempts = 0
	q, s := m.s.Question, m.s.Strand

	m.add(RoleTutor, fmt.Sprintf(standardFmt, s.Code, s.Title))
	m.add(RoleTutor, q.Text)

	intro := fmt.Sprintf(introTemplates[m.d.Picker.Pick(len(introTemplates))], s.Title)
	hook := hooks[m.d.Picker.Pick(len(hooks))]
	m.speak(intro+" "+q.Text+" "+hook, nil)
	m.add(RoleTutor, hook)
	m.d.Surface.Render(View{Screen: ScreenComprehension})

	m.d.Bank.Arm(timers.Inactivity, m.t.Inactivity, func() {
		if !m.inDiscussion(Comprehension) || m.s.Question != q {
			return
		}
		m.speak(stuckPrompt, nil)
		m.add(RoleTutor, "🤔 "+stuckPrompt)
	})
}

// PresentOptions zeigt die Antwortmöglichkeiten
func (m *Machine) PresentOptions() {
	if !m.inDiscussion(Comprehension) {
		return
	}
	m.interrupt()
	m.setDiscussion(Selection)
	m.add(RoleTutor, optionsMessage)
	m.d.Surface.Render(View{Screen: ScreenOptions, Options: m.s.Question.Options})
	m.speak(optionsSpeech, nil)
}

// SelectOption ist der Klick auf eine Option
func (m *Machine) SelectOption(text string) {
	if !m.inDiscussion(Selection) {
		return
	}
	for _, opt := range m.s.Question.Options {
		if strings.EqualFold(strings.TrimSpace(text), opt) {
			m.selectOption(opt)
			return
		}
	}
	m.log.Warn("⚠️ Unbekannte Option", "option", text)
}

func (m *Machine) selectOption(opt string) {
	if m.s.resolved {
		return
	}
	m.s.SelectedOption = opt
	m.add(RoleUser, fmt.Sprintf(selectedFmt, opt))

	if m.s.Grade != nil && m.s.Grade.ID == scielaGradeID {
		if scielaCorrect(opt, m.s.Question.CorrectAnswer) {
			m.s.resolved = true
			m.tell(scielaPraise)
			m.s.ConsecutiveCorrect++
			m.logEvent(models.ActivityQuestionCorrect, m.questionDetails())
			m.d.Bank.Arm(timers.Return, m.t.SciELAReturn, func() { m.renderTopics("") })
			return
		}
		m.enterReasoning(opt, false)
		return
	}
	m.enterReasoning(opt, true)
}

// scielaCorrect: Teilstring in beide Richtungen oder Stern-Markierung
func scielaCorrect(opt, correct string) bool {
	if correct == "" {
		return strings.HasPrefix(opt, "*")
	}
	return strings.Contains(opt, correct) || strings.Contains(correct, opt) || strings.HasPrefix(opt, "*")
}

// enterReasoning stellt die Warum-Frage; danach hört das Mikrofon zu
func (m *Machine) enterReasoning(opt string, armSilence bool) {
	m.setDiscussion(Reasoning)
	challenge := fmt.Sprintf(challengeFmt, opt)
	m.add(RoleTutor, challenge)
	m.d.Surface.Render(View{Screen: ScreenReasoning})

	q := m.s.Question
	m.speak(challenge, func() {
		if !m.awaitingReason(q) {
			return
		}
		if armSilence {
			m.d.Bank.Arm(timers.Silence, m.t.Silence, func() {
				if m.awaitingReason(q) {
					m.showScaffolds()
				}
			})
		}
		m.startListening()
	})
}

// awaitingReason: Begründungsschritt für q, Antwort noch nicht ausgewertet
func (m *Machine) awaitingReason(q *models.Question) bool {
	return m.inDiscussion(Reasoning) && m.s.Question == q && !m.s.resolved
}

// showScaffolds zeigt die Satzanfänge und gibt nach einer Pause einen
// Themenhinweis. Die Phase bleibt Reasoning.
func (m *Machine) showScaffolds() {
	if m.s.scaffoldsShown {
		return
	}
	m.s.scaffoldsShown = true
	m.add(RoleTutor, scaffoldDisplay)
	m.d.Surface.Render(View{Screen: ScreenReasoning, Starters: Starters, Strategy: true})

	q, s := m.s.Question, m.s.Strand
	m.speak(scaffoldSpeech, func() {
		if !m.awaitingReason(q) {
			return
		}
		m.d.Bank.Arm(timers.Silence, m.t.ScaffoldHint, func() {
			if !m.awaitingReason(q) {
				return
			}
			msg := fmt.Sprintf(topicHintFmt, q.Label(s))
			m.speak(msg, nil)
			m.add(RoleTutor, fmt.Sprintf(thinkingFmt, msg))
		})
	})
}

// UseStarter übernimmt einen Satzanfang als Schülerzeile
func (m *Machine) UseStarter(text string) {
	if !m.inDiscussion(Reasoning) || !m.s.scaffoldsShown {
		return
	}
	for _, st := range Starters {
		if st == text {
			m.add(RoleUser, text+"...")
			return
		}
	}
}

// IsCorrect ist die lockere Prüfung: gleicher Anfangsbuchstabe, ohne
// Beachtung der Groß-/Kleinschreibung
func IsCorrect(selected, correct string) bool {
	if selected == "" || correct == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(strings.ToLower(correct))
	return strings.HasPrefix(strings.ToLower(selected), string(first))
}

// FinalizeAnswer wertet die gewählte Option aus und kehrt nach einer Pause
// zur Themenliste zurück
func (m *Machine) FinalizeAnswer() {
	if m.s.Phase != PhaseDiscussion || m.s.resolved {
		return
	}
	q := m.s.Question
	if q == nil || m.s.SelectedOption == "" || q.CorrectAnswer == "" {
		m.log.Warn("⚠️ Auswertung ohne Option oder Lösung", "selected", m.s.SelectedOption)
		m.add(RoleTutor, abortMessage)
		m.renderTopics("")
		return
	}

	m.s.resolved = true
	m.d.Bank.Cancel(timers.Silence, timers.Grace, timers.Inactivity)

	details := m.questionDetails()
	details["selected"] = m.s.SelectedOption
	if IsCorrect(m.s.SelectedOption, q.CorrectAnswer) {
		m.add(RoleTutor, correctMessage)
		m.speak(correctSpeech, nil)
		m.s.ConsecutiveCorrect++
		if m.s.ConsecutiveCorrect >= promoteThreshold && m.s.Difficulty == Easy {
			m.s.Difficulty = Medium
			m.log.Info("⬆️ Schwierigkeit erhöht", "difficulty", Medium)
		}
		m.logEvent(models.ActivityQuestionCorrect, details)
	} else {
		m.add(RoleTutor, fmt.Sprintf(incorrectMessage, q.CorrectAnswer))
		m.speak(fmt.Sprintf(incorrectSpeech, q.CorrectAnswer), nil)
		m.s.ConsecutiveCorrect = 0
		m.logEvent(models.ActivityQuestionIncorrect, details)
	}
	m.d.Bank.Arm(timers.Return, m.t.PostFinalize, func() { m.renderTopics("") })
}

// Decompose spricht die Kuchen-Analogie und holt danach einen Hinweis.
// Der Hinweis-Timer überlebt Phasenwechsel; ein später Hinweis wird noch
// angezeigt.
func (m *Machine) Decompose() {
	if !m.inDiscussion(Comprehension) {
		return
	}
	m.interrupt()
	q, s := m.s.Question, m.s.Strand
	grade := ""
	if m.s.Grade != nil {
		grade = m.s.Grade.Title
	}
	m.logEvent(models.ActivityHintRequested, m.questionDetails())

	m.add(RoleTutor, decomposeDisplay)
	m.d.Surface.Render(View{Screen: ScreenComprehension, Strategy: true})
	m.speak(decomposeSpeech, func() {
		m.d.Bank.Arm(timers.DecomposeHint, m.t.DecomposeHint, func() {
			m.requestHint(q, s, grade)
		})
	})
}

// requestHint fragt das Orakel außerhalb des Loops
func (m *Machine) requestHint(q *models.Question, s *models.Strand, grade string) {
	m.add(RoleTutor, scanningMessage)
	if m.d.Hints == nil {
		m.showHint(hint.Hint{}, q, s)
		return
	}
	hc := hint.Context{Grade: grade, Topic: s.Title, Mode: llm.ModeHint}
	m.d.Exec.Go(func() {
		h := m.d.Hints.GetHint(m.ctx, q.Text, hc)
		m.d.Exec.Post(func() { m.showHint(h, q, s) })
	})
}

func (m *Machine) showHint(h hint.Hint, q *models.Question, s *models.Strand) {
	if m.s.Phase == PhaseEnded {
		return
	}
	if h.FromModel() {
		m.tell(fmt.Sprintf(remoteHintFmt, h.Text))
		return
	}
	topic := q.Topic
	if topic == "" {
		topic = s.Title
	}
	msg := hint.Static(topic)
	m.speak(msg, nil)
	m.add(RoleTutor, fmt.Sprintf(thinkingFmt, msg))
}
