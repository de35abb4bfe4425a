// Package quiz erzeugt Lehrkraft-Quizze aus einem Themenbereich.
package quiz

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"curie/internal/models"
)

const (
	maxMultipleChoice = 8
	openEndedCount    = 2
	rubricWords       = 5
)

var ErrEmptyStrand = errors.New("quiz: themenbereich ohne fragen")

// Builder mischt die Fragen mit der übergebenen Zufallsquelle
type Builder struct {
	rng *rand.Rand
	now func() time.Time
}

// NewBuilder: seed 0 bedeutet zeitbasiert
func NewBuilder(seed int64) *Builder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Builder{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Build erstellt bis zu 8 Multiple-Choice-Fragen und 2 offene Fragen. Die
// offenen Fragen nehmen die übrigen Fragen, sonst zufällige aus dem Bereich.
func (b *Builder) Build(grade *models.Grade, strand *models.Strand) (*models.Quiz, error) {
	if grade == nil || strand == nil || len(strand.Questions) == 0 {
		return nil, ErrEmptyStrand
	}

	pool := make([]models.Question, len(strand.Questions))
	copy(pool, strand.Questions)
	b.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	var questions []models.QuizQuestion
	mc := min(len(pool), maxMultipleChoice)
	for _, q := range pool[:mc] {
		questions = append(questions, models.QuizQuestion{
			Type:        models.QuizMultipleChoice,
			Text:        q.Text,
			Options:     q.Options,
			Correct:     q.CorrectAnswer,
			Explanation: q.Explanation,
		})
	}
	pool = pool[mc:]

	for i := 0; i < openEndedCount; i++ {
		var src models.Question
		if len(pool) > 0 {
			src, pool = pool[0], pool[1:]
		} else {
			src = strand.Questions[b.rng.Intn(len(strand.Questions))]
		}
		questions = append(questions, models.QuizQuestion{
			Type:        models.QuizOpenEnded,
			Text:        fmt.Sprintf("In your own words, explain the concept behind this question: %q", src.Text),
			Rubric:      Rubric(src.Explanation),
			Explanation: src.Explanation,
		})
	}

	return &models.Quiz{
		ID:        uuid.NewString(),
		GradeID:   grade.ID,
		Title:     grade.Title + ": " + strand.Title,
		Standard:  strand.Code,
		Questions: questions,
		CreatedAt: b.now(),
	}, nil
}

// Rubric nimmt die ersten fünf Wörter der Erklärung
func Rubric(explanation string) string {
	words := strings.Fields(explanation)
	if len(words) > rubricWords {
		words = words[:rubricWords]
	}
	return "Look for keywords: " + strings.Join(words, " ") + "..."
}
