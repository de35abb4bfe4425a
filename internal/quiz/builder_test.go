package quiz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"curie/internal/models"
)

func strandWith(n int) *models.Strand {
	s := &models.Strand{Code: "PS", Title: "Matter & Interactions"}
	for i := 0; i < n; i++ {
		s.Questions = append(s.Questions, models.Question{
			ID:            fmt.Sprintf("PS.%d", i+1),
			Text:          fmt.Sprintf("Question %d?", i+1),
			Options:       []string{"A", "B"},
			CorrectAnswer: "A",
			Explanation:   "Mixtures can be separated by physical means like filtration.",
		})
	}
	return s
}

func TestBuild_EightPlusTwo(t *testing.T) {
	grade := &models.Grade{ID: "8th", Title: "8th Graders"}
	q, err := NewBuilder(42).Build(grade, strandWith(12))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(q.Questions) != 10 {
		t.Fatalf("len=%d, erwartet 10", len(q.Questions))
	}
	if q.Title != "8th Graders: Matter & Interactions" || q.Standard != "PS" || q.GradeID != "8th" {
		t.Fatalf("quiz=%+v", q)
	}
	seen := map[string]bool{}
	for i, qq := range q.Questions[:8] {
		if qq.Type != models.QuizMultipleChoice || qq.Correct != "A" {
			t.Fatalf("frage %d: %+v", i, qq)
		}
		seen[qq.Text] = true
	}
	for _, qq := range q.Questions[8:] {
		if qq.Type != models.QuizOpenEnded {
			t.Fatalf("offene frage erwartet: %+v", qq)
		}
		if !strings.HasPrefix(qq.Text, "In your own words, explain the concept behind this question: ") {
			t.Fatalf("text=%q", qq.Text)
		}
		if qq.Rubric != "Look for keywords: Mixtures can be separated by physical..." {
			t.Fatalf("rubric=%q", qq.Rubric)
		}
	}
	if len(seen) != 8 {
		t.Fatalf("doppelte MC-Fragen: %d", len(seen))
	}
}

func TestBuild_SmallStrandReusesQuestions(t *testing.T) {
	q, err := NewBuilder(7).Build(&models.Grade{ID: "5th", Title: "5th Grade"}, strandWith(3))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(q.Questions) != 5 {
		t.Fatalf("len=%d, erwartet 3 MC + 2 OE", len(q.Questions))
	}
}

func TestBuild_EmptyStrand(t *testing.T) {
	if _, err := NewBuilder(1).Build(&models.Grade{}, &models.Strand{}); !errors.Is(err, ErrEmptyStrand) {
		t.Fatalf("err=%v", err)
	}
}
