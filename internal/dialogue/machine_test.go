package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"

	"curie/internal/content"
	"curie/internal/eventloop"
	"curie/internal/hint"
	"curie/internal/models"
	"curie/internal/timers"
)

type fakeSurface struct {
	messages []Message
	views    []View
	ended    string
}

func (f *fakeSurface) AppendMessage(m Message)    { f.messages = append(f.messages, m) }
func (f *fakeSurface) Render(v View)              { f.views = append(f.views, v) }
func (f *fakeSurface) SessionEnded(reason string) { f.ended = reason }

func (f *fakeSurface) lastView() View {
	if len(f.views) == 0 {
		return View{}
	}
	return f.views[len(f.views)-1]
}

func (f *fakeSurface) has(text string) bool {
	for _, m := range f.messages {
		if strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

// fakeSpeech spricht nie von selbst zu Ende; finish schließt die letzte Äußerung ab
type fakeSpeech struct {
	spoken   []string
	pending  func()
	speaking bool
	cancels  int
}

func (f *fakeSpeech) Speak(text string, onDone func()) {
	f.spoken = append(f.spoken, text)
	f.pending = onDone
	f.speaking = true
}

func (f *fakeSpeech) Cancel() {
	f.cancels++
	f.pending = nil
	f.speaking = false
}

func (f *fakeSpeech) IsSpeaking() bool { return f.speaking }

func (f *fakeSpeech) finish() {
	done := f.pending
	f.pending = nil
	f.speaking = false
	if done != nil {
		done()
	}
}

func (f *fakeSpeech) last() string {
	if len(f.spoken) == 0 {
		return ""
	}
	return f.spoken[len(f.spoken)-1]
}

type fakeListening struct {
	listening bool
	starts    int
	stops     int
}

func (f *fakeListening) Start() error      { f.starts++; f.listening = true; return nil }
func (f *fakeListening) Stop()             { f.stops++; f.listening = false }
func (f *fakeListening) IsListening() bool { return f.listening }

type fakeHints struct {
	result hint.Hint
	calls  []hint.Context
}

func (f *fakeHints) GetHint(_ context.Context, _ string, hc hint.Context) hint.Hint {
	f.calls = append(f.calls, hc)
	return f.result
}

type fakeActivity struct {
	events      []string
	minutes     int
	transcripts int
}

func (f *fakeActivity) LogEvent(_, action string, _ map[string]string) {
	f.events = append(f.events, action)
}
func (f *fakeActivity) AddMinute(string) { f.minutes++ }
func (f *fakeActivity) Transcript(_, _, _, _, _ string) {
	f.transcripts++
}

type firstPicker struct{}

func (firstPicker) Pick(int) int { return 0 }

type harness struct {
	m        *Machine
	surface  *fakeSurface
	speech   *fakeSpeech
	mic      *fakeListening
	hints    *fakeHints
	activity *fakeActivity
	clock    *timers.ManualClock
	bank     *timers.Bank
}

func loadGuides(t *testing.T) *models.Content {
	t.Helper()
	c, err := content.ParseFile("../../content/pedagogical_guides.md")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		surface:  &fakeSurface{},
		speech:   &fakeSpeech{},
		mic:      &fakeListening{},
		hints:    &fakeHints{result: hint.Hint{Text: "Think about particle size.", Source: hint.SourceProxy}},
		activity: &fakeActivity{},
		clock:    timers.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
	exec := eventloop.NewInline()
	h.bank = timers.NewBank(h.clock, exec)
	h.m = New(context.Background(), "sess-1", Deps{
		Content:   loadGuides(t),
		Surface:   h.surface,
		Speech:    h.speech,
		Listening: h.mic,
		Hints:     h.hints,
		Activity:  h.activity,
		Picker:    firstPicker{},
		Exec:      exec,
		Bank:      h.bank,
	})
	return h
}

var marie = &models.Student{Username: "marie.curie", Name: "Marie Curie", School: "TMSA"}

// toTopics startet die Sitzung und wählt eine Klassenstufe
func (h *harness) toTopics(t *testing.T, user *models.Student, gradeInput string) {
	t.Helper()
	h.m.Start(user)
	if h.m.Snapshot().Phase != PhaseIntro {
		t.Fatalf("phase=%s, erwartet intro", h.m.Snapshot().Phase)
	}
	h.speech.finish()
	if got := h.surface.lastView().Screen; got != ScreenGrades {
		t.Fatalf("screen=%s, erwartet grades", got)
	}
	h.m.HandleInput(gradeInput)
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s nach Stufenwahl", h.m.Snapshot().Phase)
	}
}

func TestScenario_EighthGradeMixture(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, marie, "8th Graders")

	h.m.HandleInput("Matter & Interactions")
	snap := h.m.Snapshot()
	if snap.Phase != PhaseDiscussion || snap.Discussion != Comprehension || snap.QuestionID != "PS.22" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if !h.surface.has("🎯 Standard: PS - Matter & Interactions") {
		t.Fatalf("Standard-Zeile fehlt")
	}
	if !strings.HasPrefix(h.speech.last(), "Okay Scientist, we're tackling Matter & Interactions. Sand and water") {
		t.Fatalf("intro=%q", h.speech.last())
	}

	h.m.Dispatch(Intent{Kind: IntentShowOptions})
	if h.m.Snapshot().Discussion != Selection || len(h.surface.lastView().Options) != 4 {
		t.Fatalf("optionen nicht gezeigt: %+v", h.surface.lastView())
	}

	h.m.Dispatch(Intent{Kind: IntentSelectOption, Value: "Mixture (Filtration)"})
	if h.m.Snapshot().Discussion != Reasoning {
		t.Fatalf("discussion=%s", h.m.Snapshot().Discussion)
	}
	if h.speech.last() != "Interesting choice. Why do you think Mixture (Filtration) is the answer?" {
		t.Fatalf("challenge=%q", h.speech.last())
	}

	h.speech.finish()
	if h.mic.starts != 1 {
		t.Fatalf("mikrofon starts=%d", h.mic.starts)
	}
	h.clock.Advance(4 * time.Second)
	if got := h.surface.lastView().Starters; len(got) != 4 {
		t.Fatalf("starters=%v", got)
	}
	if h.m.Snapshot().Discussion != Reasoning {
		t.Fatalf("gerüst darf die phase nicht ändern")
	}

	h.m.HandleInput("Because the sand is too big for the filter")
	if h.mic.listening {
		t.Fatalf("mikrofon läuft noch")
	}
	h.clock.Advance(time.Second)
	if !h.surface.has(correctMessage) {
		t.Fatalf("richtig-Zweig fehlt")
	}
	if got := h.m.Snapshot().ConsecutiveCorrect; got != 1 {
		t.Fatalf("consecutiveCorrect=%d", got)
	}
	if h.m.Snapshot().Phase != PhaseDiscussion {
		t.Fatalf("rückkehr zu früh")
	}

	h.clock.Advance(4 * time.Second)
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s, erwartet topic_selection", h.m.Snapshot().Phase)
	}
	if !contains(h.activity.events, models.ActivityQuestionCorrect) {
		t.Fatalf("events=%v", h.activity.events)
	}
}

func TestInactivity_StaleAfterSelection(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.PresentOptions()

	h.clock.Advance(11 * time.Second)
	if h.surface.has(stuckPrompt) {
		t.Fatalf("veralteter Untätigkeits-Timer hat gefeuert")
	}
}

func TestInactivity_FiresInComprehension(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")

	h.clock.Advance(9 * time.Second)
	if h.surface.has(stuckPrompt) {
		t.Fatalf("zu früh")
	}
	h.clock.Advance(time.Second)
	if !h.surface.has("🤔 " + stuckPrompt) {
		t.Fatalf("ermutigung fehlt")
	}
	if h.m.Snapshot().Discussion != Comprehension {
		t.Fatalf("phase geändert")
	}
}

func TestIsCorrect_PrefixHeuristic(t *testing.T) {
	cases := []struct {
		selected, correct string
		want              bool
	}{
		{"Jupiter", "Jupiter", true},
		{"J-something-else-starting-with-J", "Jupiter", true},
		{"jupiter", "Jupiter", true},
		{"Saturn", "Jupiter", false},
		{"", "Jupiter", false},
		{"Jupiter", "", false},
		{"über", "Über", true},
		{"Äther", "Über", false},
	}
	for _, c := range cases {
		if got := IsCorrect(c.selected, c.correct); got != c.want {
			t.Fatalf("IsCorrect(%q, %q)=%v", c.selected, c.correct, got)
		}
	}
}

func TestFinalize_WithoutSelectionAborts(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")

	h.m.FinalizeAnswer()
	if !h.surface.has(abortMessage) {
		t.Fatalf("neutrale Meldung fehlt")
	}
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestFinalize_IncorrectResetsStreak(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.Session().ConsecutiveCorrect = 2
	h.m.PresentOptions()
	h.m.SelectOption("Compound (Chemical Reaction)")
	h.m.FinalizeAnswer()

	if h.m.Snapshot().ConsecutiveCorrect != 0 {
		t.Fatalf("serie nicht zurückgesetzt")
	}
	if !h.surface.has("Not quite. The correct answer was Mixture (Filtration).") {
		t.Fatalf("lösung nicht genannt")
	}
}

func TestFinalize_PromotesEasyAfterThree(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.Session().Difficulty = Easy
	h.m.Session().ConsecutiveCorrect = 2
	h.m.PresentOptions()
	h.m.SelectOption("Mixture (Filtration)")
	h.m.FinalizeAnswer()

	if snap := h.m.Snapshot(); snap.ConsecutiveCorrect != 3 || snap.Difficulty != Medium {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestStop_KeepsPhase(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")
	if !h.speech.speaking {
		t.Fatalf("frage wird nicht gesprochen")
	}

	h.m.HandleInput("Stop talking please")
	if h.speech.speaking || h.speech.cancels == 0 {
		t.Fatalf("ausgabe nicht abgebrochen")
	}
	if snap := h.m.Snapshot(); snap.Phase != PhaseDiscussion || snap.Discussion != Comprehension {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestStop_DuringIntroShowsGrades(t *testing.T) {
	h := newHarness(t)
	h.m.Start(nil)
	h.m.Dispatch(Intent{Kind: IntentStop})
	if h.m.Snapshot().Phase != PhaseGradeSelection {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestRandomQuestion_NoGradeIsNoop(t *testing.T) {
	h := newHarness(t)
	h.m.Start(nil)
	h.speech.finish()
	views := len(h.surface.views)

	h.m.StartRandomQuestion()
	if h.m.Snapshot().Phase != PhaseGradeSelection || len(h.surface.views) != views {
		t.Fatalf("zufallsfrage ohne stufe hat etwas getan")
	}
}

func TestRandomQuestion_FromTopics(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "5th grade")
	h.m.HandleInput("give me a random one")
	snap := h.m.Snapshot()
	if snap.Phase != PhaseDiscussion || snap.QuestionID == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestGradeIsFixedForSession(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("back to grades")
	h.m.SelectGrade("5th")
	if snap := h.m.Snapshot(); snap.GradeID != "8th" || snap.Phase != PhaseTopicSelection {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestComprehension_FreeTextNudges(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")

	h.m.HandleInput("hmm I am not sure")
	if snap := h.m.Snapshot(); snap.QuestionAttempts != 1 || snap.Discussion != Comprehension {
		t.Fatalf("snapshot=%+v", snap)
	}
	h.m.HandleInput("I think it is iron rusting or a mixture (filtration)")
	if snap := h.m.Snapshot(); snap.Discussion != Reasoning || snap.SelectedOption != "Mixture (Filtration)" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestSciELA_CorrectPraisesAndReturns(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "SciELA")
	h.m.HandleInput("plants and animals")
	h.m.PresentOptions()
	h.m.SelectOption("Sunlight")

	if !h.surface.has(scielaPraise) || h.m.Snapshot().ConsecutiveCorrect != 1 {
		t.Fatalf("lob fehlt")
	}
	if h.m.Snapshot().Discussion == Reasoning {
		t.Fatalf("richtige K-4-Antwort darf nicht begründet werden")
	}
	h.clock.Advance(3 * time.Second)
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestSciELA_IncorrectAsksWhyWithoutSilence(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "SciELA")
	h.m.HandleInput("plants and animals")
	h.m.PresentOptions()
	h.m.SelectOption("Rocks")

	if h.m.Snapshot().Discussion != Reasoning {
		t.Fatalf("discussion=%s", h.m.Snapshot().Discussion)
	}
	h.speech.finish()
	if h.bank.Pending(timers.Silence) {
		t.Fatalf("K-4-Spur darf keinen Stille-Timer haben")
	}
	if h.mic.starts != 1 {
		t.Fatalf("mikrofon nicht gestartet")
	}
}

func TestDecompose_RemoteHint(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, marie, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.Dispatch(Intent{Kind: IntentDecompose})

	if h.speech.last() != decomposeSpeech {
		t.Fatalf("analogie nicht gesprochen")
	}
	h.speech.finish()
	h.clock.Advance(3 * time.Second)
	if len(h.hints.calls) != 0 {
		t.Fatalf("hinweis zu früh")
	}
	h.clock.Advance(time.Second)
	if len(h.hints.calls) != 1 || h.hints.calls[0].Topic != "Matter & Interactions" || h.hints.calls[0].Grade != "8th Graders" {
		t.Fatalf("calls=%+v", h.hints.calls)
	}
	if !h.surface.has(scanningMessage) || !h.surface.has("Here is a hint: Think about particle size.") {
		t.Fatalf("hinweis nicht angezeigt")
	}
	if !contains(h.activity.events, models.ActivityHintRequested) {
		t.Fatalf("events=%v", h.activity.events)
	}
}

func TestDecompose_StaticHintUsesQuestionTopic(t *testing.T) {
	h := newHarness(t)
	h.hints.result = hint.Hint{Source: hint.SourceStatic}
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("energy: conservation and transfer")
	h.m.Decompose()
	h.speech.finish()
	h.clock.Advance(4 * time.Second)

	want := "(Thinking... Focus on: Conduction. Remember: Conduction is when heat moves"
	if !h.surface.has(want) {
		t.Fatalf("statischer hinweis fehlt: %+v", h.surface.messages)
	}
}

func TestDecompose_HintSurvivesPhaseChange(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, nil, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.Decompose()
	h.speech.finish()

	h.m.PresentOptions()
	h.clock.Advance(4 * time.Second)
	if len(h.hints.calls) != 1 {
		t.Fatalf("später hinweis wurde verworfen")
	}
}

func TestSessionClock_WarningAndEnd(t *testing.T) {
	h := newHarness(t)
	h.m.Start(marie)
	if h.activity.minutes != 1 {
		t.Fatalf("minutes=%d beim Start", h.activity.minutes)
	}

	h.clock.Advance(25 * time.Minute)
	if !h.surface.has("⏰ Attention Scientist Marie. We have 5 minutes remaining") {
		t.Fatalf("warnung fehlt")
	}
	if h.activity.minutes < 25 {
		t.Fatalf("minutes=%d", h.activity.minutes)
	}

	h.clock.Advance(5 * time.Minute)
	if !h.surface.has("🛑 Great work today, Scientist Marie! Session complete.") {
		t.Fatalf("ende fehlt")
	}
	if h.m.Snapshot().Phase != PhaseEnded {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
	h.m.HandleInput("8th")
	if h.m.Snapshot().GradeID != "" {
		t.Fatalf("eingabe nach Sitzungsende verarbeitet")
	}

	h.clock.Advance(5 * time.Second)
	if h.surface.ended != "session_complete" || h.bank.Len() != 0 {
		t.Fatalf("ended=%q timers=%d", h.surface.ended, h.bank.Len())
	}
}

func TestGuestIsNotLogged(t *testing.T) {
	h := newHarness(t)
	h.m.Start(nil)
	h.clock.Advance(2 * time.Minute)
	if len(h.activity.events) != 0 || h.activity.minutes != 0 {
		t.Fatalf("gast protokolliert: %v / %d", h.activity.events, h.activity.minutes)
	}
	if !h.surface.has("Welcome scientists to TMSA Curie") {
		t.Fatalf("standard-begrüßung fehlt: %+v", h.surface.messages)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func countOf(list []string, v string) int {
	n := 0
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}

// toReasoning führt bis zur gesprochenen Warum-Frage nach der richtigen Option
func (h *harness) toReasoning(t *testing.T) {
	t.Helper()
	h.toTopics(t, marie, "8th")
	h.m.HandleInput("matter & interactions")
	h.m.PresentOptions()
	h.m.SelectOption("Mixture (Filtration)")
	h.speech.finish()
	if !h.bank.Pending(timers.Silence) {
		t.Fatalf("stille-timer nicht gestellt")
	}
}

func TestFinalize_CancelsSilenceTimer(t *testing.T) {
	h := newHarness(t)
	h.toReasoning(t)

	h.m.HandleInput("Because the sand stays in the filter")
	h.clock.Advance(time.Second)
	if !h.m.Snapshot().Resolved || h.speech.last() != correctSpeech {
		t.Fatalf("resolved=%v last=%q", h.m.Snapshot().Resolved, h.speech.last())
	}
	if h.bank.Pending(timers.Silence) {
		t.Fatalf("stille-timer läuft nach der auswertung weiter")
	}

	h.clock.Advance(3 * time.Second)
	for _, v := range h.surface.views {
		if len(v.Starters) > 0 {
			t.Fatalf("satzanfänge nach der auswertung gezeigt")
		}
	}
	if h.speech.last() != correctSpeech {
		t.Fatalf("rückmeldung überschrieben: %q", h.speech.last())
	}
}

func TestFinalize_ScaffoldHintDroppedAfterAnswer(t *testing.T) {
	h := newHarness(t)
	h.toReasoning(t)

	h.clock.Advance(4 * time.Second)
	if got := h.surface.lastView().Starters; len(got) != 4 {
		t.Fatalf("starters=%v", got)
	}
	h.m.HandleInput("Because it has sand in it")
	h.speech.finish()
	h.clock.Advance(time.Second)
	if !h.m.Snapshot().Resolved {
		t.Fatalf("nicht ausgewertet")
	}

	h.clock.Advance(4 * time.Second)
	for _, text := range h.speech.spoken {
		if strings.HasPrefix(text, "What is this question really asking us?") {
			t.Fatalf("themenhinweis nach der auswertung: %q", text)
		}
	}
}

func TestFinalize_SecondReasonIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.toReasoning(t)

	h.m.HandleInput("Because the sand stays in the filter")
	h.clock.Advance(time.Second)
	h.m.HandleInput("And the water goes through")
	h.clock.Advance(time.Second)
	h.m.FinalizeAnswer()

	if got := h.m.Snapshot().ConsecutiveCorrect; got != 1 {
		t.Fatalf("consecutiveCorrect=%d", got)
	}
	if n := countOf(h.activity.events, models.ActivityQuestionCorrect); n != 1 {
		t.Fatalf("events=%v", h.activity.events)
	}

	h.clock.Advance(3 * time.Second)
	if h.m.Snapshot().Phase != PhaseTopicSelection {
		t.Fatalf("phase=%s", h.m.Snapshot().Phase)
	}
}

func TestSciELA_SecondClickIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.toTopics(t, marie, "SciELA")
	h.m.HandleInput("plants and animals")
	h.m.PresentOptions()
	h.m.SelectOption("Sunlight")
	h.m.SelectOption("Sunlight")
	h.m.HandleInput("sunlight")

	if got := h.m.Snapshot().ConsecutiveCorrect; got != 1 {
		t.Fatalf("consecutiveCorrect=%d", got)
	}
	if n := countOf(h.activity.events, models.ActivityQuestionCorrect); n != 1 {
		t.Fatalf("events=%v", h.activity.events)
	}
	if h.m.Snapshot().Discussion == Reasoning {
		t.Fatalf("discussion=%s", h.m.Snapshot().Discussion)
	}
}
