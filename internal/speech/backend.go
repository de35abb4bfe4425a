package speech

import (
	"context"
	"strings"

	"curie/internal/eventloop"
	"curie/internal/logger"
)

// Utterance ist eine einzelne Sprachausgabe mit ihrer Generation
type Utterance struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Text       string `json:"text"`
}

// Backend spricht eine Äußerung. Speak und Cancel laufen auf dem
// Sitzungs-Loop; done wird ebenfalls auf dem Loop aufgerufen.
type Backend interface {
	Name() string
	Speak(ctx context.Context, u Utterance, done func(error))
	Cancel()
}

// Audio ist das Ergebnis einer entfernten Synthese
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer erzeugt Audio über einen Netzwerkdienst (blockierend)
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// Player spielt Audio beim Client ab und meldet das Ende über done
type Player interface {
	Play(u Utterance, audio *Audio, done func(error))
	StopAudio()
}

// RemoteBackend holt Audio von einem Synthesizer und gibt es an den Player
type RemoteBackend struct {
	synth   Synthesizer
	player  Player
	exec    eventloop.Executor
	log     *logger.Logger
	current string
}

func NewRemoteBackend(synth Synthesizer, player Player, exec eventloop.Executor, log *logger.Logger) *RemoteBackend {
	if log == nil {
		log = logger.Nop()
	}
	return &RemoteBackend{synth: synth, player: player, exec: exec, log: log}
}

func (b *RemoteBackend) Name() string { return b.synth.Name() }

func (b *RemoteBackend) Speak(ctx context.Context, u Utterance, done func(error)) {
	b.current = u.ID
	b.exec.Go(func() {
		audio, err := b.synth.Synthesize(ctx, u.Text)
		b.exec.Post(func() {
			if b.current != u.ID {
				// überholt; Audio wird verworfen
				return
			}
			if err != nil {
				b.current = ""
				done(err)
				return
			}
			b.player.Play(u, audio, func(playErr error) {
				b.exec.Post(func() {
					if b.current == u.ID {
						b.current = ""
					}
					done(playErr)
				})
			})
		})
	})
}

func (b *RemoteBackend) Cancel() {
	b.current = ""
	b.player.StopAudio()
}

// Voice ist eine vom Browser gemeldete Stimme
type Voice struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// PreferredVoice wählt Zira, Google US English oder eine weibliche Stimme,
// sonst die erste englische. ok=false heißt Browser-Standard.
func PreferredVoice(voices []Voice) (Voice, bool) {
	for _, v := range voices {
		if strings.Contains(v.Name, "Zira") ||
			strings.Contains(v.Name, "Google US English") ||
			strings.Contains(v.Name, "Female") {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.Contains(v.Lang, "en") {
			return v, true
		}
	}
	return Voice{}, false
}

// LocalRequest beschreibt eine Ausgabe über die Browser-Sprachsynthese
type LocalRequest struct {
	Utterance
	Voice string  `json:"voice,omitempty"`
	Lang  string  `json:"lang"`
	Rate  float64 `json:"rate"`
}

// LocalVoice ist die Sprachsynthese des Clients
type LocalVoice interface {
	Say(req LocalRequest, done func(error))
	StopSpeech()
}

// LocalBackend nutzt die Browser-Stimme; immer verfügbar
type LocalBackend struct {
	voice  LocalVoice
	exec   eventloop.Executor
	voices []Voice
	rate   float64
}

func NewLocalBackend(voice LocalVoice, exec eventloop.Executor) *LocalBackend {
	return &LocalBackend{voice: voice, exec: exec, rate: 0.9}
}

func (b *LocalBackend) Name() string { return "browser" }

// SetVoices übernimmt die Stimmenliste des Clients
func (b *LocalBackend) SetVoices(voices []Voice) {
	b.voices = append(b.voices[:0], voices...)
}

func (b *LocalBackend) Speak(_ context.Context, u Utterance, done func(error)) {
	req := LocalRequest{Utterance: u, Lang: "en-US", Rate: b.rate}
	if v, ok := PreferredVoice(b.voices); ok {
		req.Voice = v.Name
	}
	b.voice.Say(req, func(err error) {
		b.exec.Post(func() { done(err) })
	})
}

func (b *LocalBackend) Cancel() {
	b.voice.StopSpeech()
}
