package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Mode bestimmt die Anweisung im System-Prompt
type Mode string

const (
	ModeHint      Mode = "hint"
	ModeDecompose Mode = "decompose"
	ModeExplain   Mode = "explain"
)

// Standardwerte der Tutor-Anfragen
const (
	DefaultChatModel   = "gpt-4o-mini"
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7
)

const persona = "You are Sestin, a helpful and encouraging AI science tutor for middle school students."

// SystemPrompt baut den System-Prompt aus Klassenstufe, Thema und Modus
func SystemPrompt(grade, topic string, mode Mode) string {
	var b strings.Builder
	b.WriteString(persona)
	if grade != "" {
		fmt.Fprintf(&b, " The student is in %s.", grade)
	}
	if topic != "" {
		fmt.Fprintf(&b, " The current topic is %s.", topic)
	}
	switch mode {
	case ModeHint:
		b.WriteString(" The student is stuck on a question. Provide a helpful, scaffolding hint without giving away the direct answer. Use an analogy if possible. Keep it short (2-3 sentences max).")
	case ModeDecompose:
		b.WriteString(" Help the student break down the question. Identify the key terms and what the question is asking. Do not answer it yet.")
	case ModeExplain:
		b.WriteString(" Explain the concept clearly and simply.")
	}
	return b.String()
}

// TutorRequest erstellt die Chat-Anfrage für eine Frage
func TutorRequest(question, grade, topic string, mode Mode) ChatRequest {
	return ChatRequest{
		Model: DefaultChatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: SystemPrompt(grade, topic, mode)},
			{Role: "user", Content: question},
		},
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Tutor bewertet offene Antworten mit einem LLM
type Tutor struct {
	provider Provider
}

// NewTutor erstellt einen neuen Tutor; provider darf nil sein
func NewTutor(provider Provider) *Tutor {
	return &Tutor{provider: provider}
}

// Grade ist das Ergebnis einer Bewertung
type Grade struct {
	Correct  bool   `json:"is_correct"`
	Feedback string `json:"feedback"`
	Score    int    `json:"score"`
}

// GradeOpenAnswer bewertet eine offene Antwort anhand der Rubrik. Ohne
// Provider oder bei Fehlern wird nach Stichworten bewertet.
func (t *Tutor) GradeOpenAnswer(ctx context.Context, question, rubric, answer string) Grade {
	// Leere oder zu kurze Antworten sofort als falsch werten
	if len(strings.TrimSpace(answer)) < 3 {
		return Grade{Feedback: "Try writing a full sentence about the idea."}
	}
	if t == nil || t.provider == nil {
		return keywordGrade(rubric, answer)
	}

	prompt := fmt.Sprintf(`Grade this student answer FAIRLY but not too generously.

Question: %s
Rubric: %s
Student answer: %s

Reply ONLY in this JSON format:
{"is_correct": true/false, "feedback": "one short sentence", "score": 0-100}

Accept spelling mistakes and synonyms when the core idea is right.
Answers like "idk", "no" or a single vague word are not correct.`, question, rubric, limitContent(answer, 1500))

	resp, err := t.provider.Chat(ctx, []ChatMessage{
		{Role: "system", Content: persona + " You are grading a quiz. Answer in JSON."},
		{Role: "user", Content: prompt},
	}, &GenerateOptions{Temperature: 0.1, MaxTokens: DefaultMaxTokens})
	if err != nil {
		return keywordGrade(rubric, answer)
	}

	var g Grade
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &g); err != nil {
		return keywordGrade(rubric, answer)
	}
	return g
}

// keywordGrade zählt, wie viele Rubrik-Stichworte in der Antwort vorkommen
func keywordGrade(rubric, answer string) Grade {
	keywords := RubricKeywords(rubric)
	if len(keywords) == 0 {
		return Grade{Correct: true, Score: 100, Feedback: "Thanks for explaining!"}
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	score := hits * 100 / len(keywords)
	if hits > 0 {
		return Grade{Correct: true, Score: score, Feedback: "Good thinking, you used the key ideas."}
	}
	return Grade{Score: score, Feedback: "Look again at the key ideas: " + strings.Join(keywords, ", ") + "."}
}

// RubricKeywords liest die Stichworte aus "Look for keywords: a b c..."
func RubricKeywords(rubric string) []string {
	rubric = strings.TrimPrefix(rubric, "Look for keywords:")
	rubric = strings.TrimSuffix(strings.TrimSpace(rubric), "...")
	var out []string
	for _, w := range strings.Fields(strings.ToLower(rubric)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// Helper-Funktionen

func limitContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "\n[... gekürzt ...]"
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return "{}"
	}
	return text[start : end+1]
}
