package dialogue

import (
	"context"
	"testing"
	"time"

	"curie/internal/llm"
	"curie/internal/models"
)

type fakeQuizzes struct {
	active  *models.Quiz
	results []*models.QuizResult
}

func (f *fakeQuizzes) GetActiveQuiz() (*models.Quiz, error) {
	return f.active, nil
}

func (f *fakeQuizzes) SaveQuizResult(r *models.QuizResult) error {
	f.results = append(f.results, r)
	return nil
}

type fixedGrader struct {
	grade   llm.Grade
	answers []string
}

func (f *fixedGrader) GradeOpenAnswer(_ context.Context, _, _, answer string) llm.Grade {
	f.answers = append(f.answers, answer)
	return f.grade
}

func sampleQuiz() *models.Quiz {
	return &models.Quiz{
		ID:    "quiz-1",
		Title: "8th Graders: Matter & Interactions",
		Questions: []models.QuizQuestion{
			{Type: models.QuizMultipleChoice, Text: "Which is a chemical change?", Options: []string{"Ice melting", "Iron rusting"}, Correct: "Iron rusting"},
			{Type: models.QuizMultipleChoice, Text: "How to separate sand and water?", Options: []string{"Filtration", "Magnetism"}, Correct: "Filtration"},
			{Type: models.QuizOpenEnded, Text: "Explain mixtures.", Rubric: "Look for keywords: Sand and water form a..."},
		},
	}
}

func TestQuiz_FullRun(t *testing.T) {
	h := newHarness(t)
	store := &fakeQuizzes{active: sampleQuiz()}
	grader := &fixedGrader{grade: llm.Grade{Correct: true, Feedback: "Good thinking."}}
	h.m.d.Quizzes = store
	h.m.d.Grader = grader

	h.toTopics(t, marie, "8th")
	h.m.HandleInput("start the quiz")
	if h.m.Snapshot().Phase != PhaseQuiz {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
	if v := h.surface.lastView(); v.Quiz == nil || v.Quiz.Total != 3 || len(v.Quiz.Options) != 2 {
		t.Fatalf("view=%+v", v)
	}

	h.m.Dispatch(Intent{Kind: IntentQuizAnswer, Value: "Iron rusting"})
	h.m.HandleInput("magnetism")
	if v := h.surface.lastView(); v.Quiz == nil || !v.Quiz.OpenEnded {
		t.Fatalf("offene frage erwartet: %+v", v)
	}
	h.m.HandleInput("A mixture keeps the sand and water separate")

	if len(grader.answers) != 1 {
		t.Fatalf("grader calls=%d", len(grader.answers))
	}
	if !h.surface.has("Quiz complete! You scored 2 out of 3.") {
		t.Fatalf("ergebnis fehlt: %+v", h.surface.messages)
	}
	if len(store.results) != 1 || store.results[0].Score != 2 || store.results[0].Username != "marie.curie" {
		t.Fatalf("results=%+v", store.results)
	}
	if !contains(h.activity.events, models.ActivityQuizCompleted) {
		t.Fatalf("events=%v", h.activity.events)
	}

	h.clock.Advance(4 * time.Second)
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestQuiz_NoneAssigned(t *testing.T) {
	h := newHarness(t)
	h.m.d.Quizzes = &fakeQuizzes{}
	h.toTopics(t, nil, "8th")

	h.m.Dispatch(Intent{Kind: IntentStartQuiz})
	if h.m.Snapshot().Phase != PhaseTopicSelection || !h.surface.has(noQuizMessage) {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestQuiz_UnknownChoiceAsksAgain(t *testing.T) {
	h := newHarness(t)
	h.m.d.Quizzes = &fakeQuizzes{active: sampleQuiz()}
	h.toTopics(t, nil, "8th")
	h.m.StartQuiz()

	h.m.HandleInput("no idea")
	if !h.surface.has(quizPickMessage) || h.m.Session().quiz.index != 0 {
		t.Fatalf("falsche Eingabe wurde gewertet")
	}
	h.m.HandleInput("1")
	if h.m.Session().quiz.index != 1 || h.m.Session().quiz.answers[0].Correct {
		t.Fatalf("nummernwahl: %+v", h.m.Session().quiz.answers)
	}
}

func TestMatchQuizOption(t *testing.T) {
	opts := []string{"Ice melting", "Iron rusting"}
	if got, ok := matchQuizOption(opts, "IRON RUSTING"); !ok || got != "Iron rusting" {
		t.Fatalf("got %q", got)
	}
	if got, ok := matchQuizOption(opts, "1"); !ok || got != "Ice melting" {
		t.Fatalf("got %q", got)
	}
	if _, ok := matchQuizOption(opts, "3"); ok {
		t.Fatalf("nummer außerhalb akzeptiert")
	}
}
