package dialogue

// IntentKind ist eine Bedienaktion des Clients
type IntentKind string

const (
	IntentSelectGrade  IntentKind = "select_grade"
	IntentSelectTopic  IntentKind = "select_topic"
	IntentRandom       IntentKind = "random"
	IntentShowOptions  IntentKind = "show_options"
	IntentSelectOption IntentKind = "select_option"
	IntentDecompose    IntentKind = "decompose"
	IntentDifferent    IntentKind = "different"
	IntentToggleMic    IntentKind = "toggle_mic"
	IntentStop         IntentKind = "stop"
	IntentStarter      IntentKind = "starter"
	IntentReplay       IntentKind = "replay"
	IntentStartQuiz    IntentKind = "start_quiz"
	IntentQuizAnswer   IntentKind = "quiz_answer"
)

type Intent struct {
	Kind  IntentKind `json:"kind"`
	Value string     `json:"value,omitempty"`
}

// Dispatch leitet einen Klick an die passende Operation weiter.
// Unbekannte Aktionen werden protokolliert und verworfen.
func (m *Machine) Dispatch(in Intent) {
	if m.s.Phase == PhaseEnded {
		return
	}
	switch in.Kind {
	case IntentSelectGrade:
		m.SelectGrade(in.Value)
	case IntentSelectTopic:
		m.SelectTopic(in.Value)
	case IntentRandom:
		m.StartRandomQuestion()
	case IntentShowOptions:
		m.PresentOptions()
	case IntentSelectOption:
		m.SelectOption(in.Value)
	case IntentDecompose:
		m.Decompose()
	case IntentDifferent:
		if m.s.Phase == PhaseDiscussion {
			m.interrupt()
		}
		m.StartRandomQuestion()
	case IntentToggleMic:
		m.ToggleMic()
	case IntentStop:
		m.Stop()
	case IntentStarter:
		m.UseStarter(in.Value)
	case IntentReplay:
		m.Replay()
	case IntentStartQuiz:
		m.StartQuiz()
	case IntentQuizAnswer:
		m.AnswerQuiz(in.Value)
	default:
		m.log.Warn("⚠️ Unbekannte Aktion", "kind", in.Kind)
	}
}
