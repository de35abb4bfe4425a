// Package content lädt den Lernstoff (Klassenstufen, Themenbereiche,
// Fragen) aus Markdown-Leitfäden, YAML/JSON-Dateien oder PDFs.
package content

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"curie/internal/models"
)

const (
	DefaultBotName      = "TMSA Curie"
	DefaultIntroMessage = "Welcome scientists to TMSA Curie. Please select your grade."
	DefaultGradeIntro   = "Welcome!"
)

var (
	gradeLine  = regexp.MustCompile(`^# (.*) \(ID: (.*)\)$`)
	strandLine = regexp.MustCompile(`^## (.*) \(Code: (.*)\)$`)
)

// ParseMarkdown liest das Leitfaden-Format:
//
//	# 8th Graders (ID: 8th)
//	Intro: ...
//	## Matter & Interactions (Code: PS)
//	Question: ...
//	Options: A, *B, C
func ParseMarkdown(r io.Reader) (*models.Content, error) {
	c := &models.Content{}
	var grade *models.Grade
	var strand *models.Strand
	var q *models.Question

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# "):
			m := gradeLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			c.Grades = append(c.Grades, models.Grade{
				ID:           strings.TrimSpace(m[2]),
				Title:        strings.TrimSpace(m[1]),
				IntroMessage: DefaultGradeIntro,
			})
			grade = &c.Grades[len(c.Grades)-1]
			strand, q = nil, nil

		case strings.HasPrefix(line, "Intro: ") && grade != nil && strand == nil:
			grade.IntroMessage = value(line, "Intro: ")

		case strings.HasPrefix(line, "## "):
			m := strandLine.FindStringSubmatch(line)
			if m == nil || grade == nil {
				continue
			}
			grade.Strands = append(grade.Strands, models.Strand{
				Code:  strings.TrimSpace(m[2]),
				Title: strings.TrimSpace(m[1]),
			})
			strand = &grade.Strands[len(grade.Strands)-1]
			q = nil

		case strings.HasPrefix(line, "Description: ") && strand != nil:
			strand.Description = value(line, "Description: ")

		case strings.HasPrefix(line, "Question: ") && strand != nil:
			strand.Questions = append(strand.Questions, models.Question{Text: value(line, "Question: ")})
			q = &strand.Questions[len(strand.Questions)-1]

		case q == nil:
			continue

		case strings.HasPrefix(line, "ID: "):
			q.ID = value(line, "ID: ")
		case strings.HasPrefix(line, "Topic: "):
			q.Topic = value(line, "Topic: ")
		case strings.HasPrefix(line, "Options: "):
			q.Options = strings.Split(value(line, "Options: "), ",")
		case strings.HasPrefix(line, "Explanation: "):
			q.Explanation = value(line, "Explanation: ")
		case strings.HasPrefix(line, "Analogy: "):
			q.Analogy = value(line, "Analogy: ")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("leitfaden lesen: %w", err)
	}

	normalize(c)
	return c, nil
}

func value(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// Rohformat für YAML/JSON mit dem alten "answer"-Feld
type rawContent struct {
	BotName      string     `yaml:"bot_name"`
	IntroMessage string     `yaml:"intro_message"`
	Grades       []rawGrade `yaml:"grades"`
}

type rawGrade struct {
	ID           string      `yaml:"id"`
	Title        string      `yaml:"title"`
	IntroMessage string      `yaml:"intro_message"`
	Strands      []rawStrand `yaml:"strands"`
}

type rawStrand struct {
	Code        string        `yaml:"code"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Questions   []rawQuestion `yaml:"questions"`
}

type rawQuestion struct {
	ID            string   `yaml:"id"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectAnswer string   `yaml:"correct_answer"`
	Answer        string   `yaml:"answer"`
	Explanation   string   `yaml:"explanation"`
	Topic         string   `yaml:"topic"`
	Analogy       string   `yaml:"analogy"`
}

// ParseYAML liest YAML oder JSON (JSON ist gültiges YAML)
func ParseYAML(r io.Reader) (*models.Content, error) {
	var raw rawContent
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return &models.Content{}, nil
		}
		return nil, fmt.Errorf("inhalt dekodieren: %w", err)
	}

	c := &models.Content{BotName: raw.BotName, IntroMessage: raw.IntroMessage}
	for _, rg := range raw.Grades {
		g := models.Grade{ID: rg.ID, Title: rg.Title, IntroMessage: rg.IntroMessage}
		if g.IntroMessage == "" {
			g.IntroMessage = DefaultGradeIntro
		}
		for _, rs := range rg.Strands {
			s := models.Strand{Code: rs.Code, Title: rs.Title, Description: rs.Description}
			for _, rq := range rs.Questions {
				correct := rq.CorrectAnswer
				if correct == "" {
					correct = rq.Answer
				}
				s.Questions = append(s.Questions, models.Question{
					ID:            rq.ID,
					Text:          rq.Text,
					Options:       rq.Options,
					CorrectAnswer: correct,
					Explanation:   rq.Explanation,
					Topic:         rq.Topic,
					Analogy:       rq.Analogy,
				})
			}
			g.Strands = append(g.Strands, s)
		}
		c.Grades = append(c.Grades, g)
	}

	normalize(c)
	return c, nil
}

// normalize bringt alle Quellen in dieselbe Form: getrimmte Optionen ohne
// Markierung, genau ein CorrectAnswer, eindeutige Frage-IDs
func normalize(c *models.Content) {
	if c.BotName == "" {
		c.BotName = DefaultBotName
	}
	if c.IntroMessage == "" {
		c.IntroMessage = DefaultIntroMessage
	}
	for gi := range c.Grades {
		g := &c.Grades[gi]
		seen := make(map[string]bool)
		for si := range g.Strands {
			s := &g.Strands[si]
			for qi := range s.Questions {
				q := &s.Questions[qi]
				normalizeOptions(q)
				if q.ID == "" || seen[q.ID] {
					q.ID = defaultID(g, s, qi, seen)
				}
				seen[q.ID] = true
			}
		}
	}
}

func normalizeOptions(q *models.Question) {
	opts := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		opt = strings.TrimSpace(opt)
		if strings.HasPrefix(opt, "*") {
			opt = strings.TrimSpace(opt[1:])
			if q.CorrectAnswer == "" {
				q.CorrectAnswer = opt
			}
		}
		if opt != "" {
			opts = append(opts, opt)
		}
	}
	q.Options = opts
	q.CorrectAnswer = strings.TrimPrefix(strings.TrimSpace(q.CorrectAnswer), "*")
}

func defaultID(g *models.Grade, s *models.Strand, idx int, seen map[string]bool) string {
	prefix := s.Code
	if prefix == "" {
		prefix = g.ID
	}
	n := idx + 1
	id := prefix + "." + strconv.Itoa(n)
	for seen[id] {
		n++
		id = prefix + "." + strconv.Itoa(n)
	}
	return id
}
