package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"curie/internal/models"
	"curie/internal/timers"
)

type quizRun struct {
	quiz    *models.Quiz
	index   int
	answers []models.QuizAnswer
	grading bool
}

func (r *quizRun) current() models.QuizQuestion {
	return r.quiz.Questions[r.index]
}

// StartQuiz lädt das aktive Quiz der Lehrkraft
func (m *Machine) StartQuiz() {
	if m.d.Quizzes == nil {
		return
	}
	if m.s.Phase != PhaseTopicSelection && m.s.Phase != PhaseGradeSelection {
		return
	}
	m.d.Speech.Cancel()
	m.d.Exec.Go(func() {
		q, err := m.d.Quizzes.GetActiveQuiz()
		m.d.Exec.Post(func() { m.beginQuiz(q, err) })
	})
}

func (m *Machine) beginQuiz(q *models.Quiz, err error) {
	if m.s.Phase != PhaseTopicSelection && m.s.Phase != PhaseGradeSelection {
		return
	}
	if err != nil || q == nil || len(q.Questions) == 0 {
		if err != nil {
			m.log.Warn("⚠️ Quiz konnte nicht geladen werden", "error", err)
		}
		m.tell(noQuizMessage)
		return
	}

	m.transition(PhaseQuiz)
	m.s.quiz = &quizRun{quiz: q}
	m.log.Info("📝 Quiz gestartet", "quiz", q.ID, "questions", len(q.Questions))
	m.add(RoleTutor, fmt.Sprintf(quizIntroFmt, q.Title, len(q.Questions)))
	m.askQuizQuestion()
}

func (m *Machine) askQuizQuestion() {
	run := m.s.quiz
	qq := run.current()
	total := len(run.quiz.Questions)
	text := fmt.Sprintf(quizQuestionFmt, run.index+1, total, qq.Text)
	m.add(RoleTutor, text)

	view := &QuizView{
		Title:     run.quiz.Title,
		Index:     run.index,
		Total:     total,
		Text:      qq.Text,
		OpenEnded: qq.Type == models.QuizOpenEnded,
	}
	if !view.OpenEnded {
		view.Options = qq.Options
	}
	m.d.Surface.Render(View{Screen: ScreenQuiz, Quiz: view})
	m.speak(text, nil)
}

// AnswerQuiz ist der Klick auf eine Quiz-Option
func (m *Machine) AnswerQuiz(answer string) {
	if m.s.Phase != PhaseQuiz || m.s.quiz == nil {
		return
	}
	m.add(RoleUser, answer)
	m.quizInput(answer)
}

// quizInput: Multiple Choice über die Optionen, offene Fragen über den Grader
func (m *Machine) quizInput(answer string) {
	run := m.s.quiz
	if run == nil || run.grading {
		return
	}
	qq := run.current()

	if qq.Type != models.QuizOpenEnded {
		opt, ok := matchQuizOption(qq.Options, answer)
		if !ok {
			m.tell(quizPickMessage)
			return
		}
		correct := strings.EqualFold(opt, qq.Correct)
		feedback := quizCorrect
		if !correct {
			feedback = fmt.Sprintf(quizIncorrectFmt, qq.Correct)
		}
		m.recordQuizAnswer(run, models.QuizAnswer{Index: run.index, Answer: opt, Correct: correct, Feedback: feedback})
		return
	}

	run.grading = true
	index := run.index
	m.d.Exec.Go(func() {
		g := m.d.Grader.GradeOpenAnswer(m.ctx, qq.Text, qq.Rubric, answer)
		m.d.Exec.Post(func() {
			if m.s.quiz != run || run.index != index {
				return
			}
			run.grading = false
			m.recordQuizAnswer(run, models.QuizAnswer{Index: index, Answer: answer, Correct: g.Correct, Feedback: g.Feedback})
		})
	})
}

// matchQuizOption akzeptiert den Optionstext, einen Teil davon oder die Nummer
func matchQuizOption(options []string, answer string) (string, bool) {
	a := normalize(answer)
	if a == "" {
		return "", false
	}
	if n, err := strconv.Atoi(a); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, opt := range options {
		if strings.EqualFold(opt, a) {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.Contains(a, strings.ToLower(opt)) {
			return opt, true
		}
	}
	return "", false
}

func (m *Machine) recordQuizAnswer(run *quizRun, ans models.QuizAnswer) {
	run.answers = append(run.answers, ans)
	if ans.Feedback != "" {
		m.add(RoleTutor, ans.Feedback)
	}
	run.index++
	if run.index < len(run.quiz.Questions) {
		m.askQuizQuestion()
		return
	}
	m.finishQuiz(run)
}

func (m *Machine) finishQuiz(run *quizRun) {
	score := 0
	for _, a := range run.answers {
		if a.Correct {
			score++
		}
	}
	total := len(run.quiz.Questions)
	msg := fmt.Sprintf(quizDoneFmt, score, total)
	m.tell(msg)
	m.log.Info("🏁 Quiz beendet", "quiz", run.quiz.ID, "score", score, "total", total)

	result := &models.QuizResult{
		ID:          uuid.NewString(),
		QuizID:      run.quiz.ID,
		Username:    m.s.Username(),
		Score:       score,
		Total:       total,
		Answers:     run.answers,
		CompletedAt: m.d.Bank.Now(),
	}
	m.logEvent(models.ActivityQuizCompleted, map[string]string{
		"quiz":  run.quiz.ID,
		"score": strconv.Itoa(score),
		"total": strconv.Itoa(total),
	})
	if m.s.User != nil {
		m.d.Exec.Go(func() {
			if err := m.d.Quizzes.SaveQuizResult(result); err != nil {
				m.log.Warn("⚠️ Quiz-Ergebnis nicht gespeichert", "error", err)
			}
		})
	}

	m.d.Bank.Arm(timers.Return, m.t.PostFinalize, func() {
		if m.s.Phase != PhaseQuiz {
			return
		}
		if m.s.Grade == nil {
			m.renderGrades()
			return
		}
		m.renderTopics("")
	})
}
