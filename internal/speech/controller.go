// Package speech serialisiert die Sprachausgabe einer Sitzung. Jede neue
// Äußerung überholt die vorige; nur die aktuelle Generation darf ihren
// Abschluss melden.
package speech

import (
	"context"
	"time"

	"github.com/google/uuid"

	"curie/internal/eventloop"
	"curie/internal/logger"
	"curie/internal/timers"
)

// Listening ist die Sicht der Sprachausgabe auf das Mikrofon
type Listening interface {
	IsActive() bool
	Start() error
	Stop()
}

// Options für den Controller
type Options struct {
	// Primary ist optional (z.B. ElevenLabs); Fallback ist Pflicht
	Primary  Backend
	Fallback Backend

	// RemoteResumeDelay: Pause vor dem Wiedereinschalten des Mikrofons
	// nach entfernter Wiedergabe
	RemoteResumeDelay time.Duration

	OnSpeaking func(bool)
}

// Controller gehört zu genau einer Sitzung und läuft auf deren Loop
type Controller struct {
	ctx  context.Context
	exec eventloop.Executor
	bank *timers.Bank
	log  *logger.Logger

	primary     Backend
	fallback    Backend
	listening   Listening
	onSpeaking  func(bool)
	resumeDelay time.Duration

	generation    uint64
	speaking      bool
	pendingResume bool
	lastSpoken    string
}

func NewController(ctx context.Context, exec eventloop.Executor, bank *timers.Bank, log *logger.Logger, opts Options) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	if opts.RemoteResumeDelay <= 0 {
		opts.RemoteResumeDelay = 500 * time.Millisecond
	}
	return &Controller{
		ctx:         ctx,
		exec:        exec,
		bank:        bank,
		log:         log,
		primary:     opts.Primary,
		fallback:    opts.Fallback,
		onSpeaking:  opts.OnSpeaking,
		resumeDelay: opts.RemoteResumeDelay,
	}
}

// SetListening verbindet das Mikrofon; beide kennen sich gegenseitig
func (c *Controller) SetListening(l Listening) {
	c.listening = l
}

func (c *Controller) IsSpeaking() bool {
	return c.speaking
}

// Speak spricht text. onDone läuft nur, wenn diese Äußerung beim Abschluss
// noch die aktuelle Generation ist.
func (c *Controller) Speak(text string, onDone func()) {
	text = DropRepeatedAddress(c.lastSpoken, Preprocess(text))
	c.lastSpoken = text

	c.generation++
	u := Utterance{ID: uuid.NewString(), Generation: c.generation, Text: text}

	c.cancelBackends()
	if c.bank.Pending(timers.SpeechResume) {
		c.pendingResume = true
	}
	c.bank.Cancel(timers.SpeechResume)

	// Ein bereits unterbrochenes Mikrofon bleibt vorgemerkt
	if c.listening != nil && c.listening.IsActive() {
		c.listening.Stop()
		c.pendingResume = true
	}

	c.setSpeaking(true)
	c.log.Debug("🔊 Spreche", "generation", u.Generation, "text", text)

	if c.primary != nil {
		c.primary.Speak(c.ctx, u, func(err error) {
			c.primaryDone(u, onDone, err)
		})
		return
	}
	c.speakFallback(u, onDone)
}

func (c *Controller) primaryDone(u Utterance, onDone func(), err error) {
	if u.Generation != c.generation {
		return
	}
	if err != nil {
		c.log.Warn("⚠️ Primäre Sprachausgabe fehlgeschlagen, nutze Browser-Stimme",
			"backend", c.primary.Name(), "error", err)
		c.speakFallback(u, onDone)
		return
	}
	c.complete(onDone, c.resumeDelay)
}

func (c *Controller) speakFallback(u Utterance, onDone func()) {
	c.fallback.Speak(c.ctx, u, func(err error) {
		if u.Generation != c.generation {
			return
		}
		if err != nil {
			c.log.Warn("⚠️ Browser-Stimme meldet Fehler", "error", err)
		}
		c.complete(onDone, 0)
	})
}

func (c *Controller) complete(onDone func(), resumeAfter time.Duration) {
	c.setSpeaking(false)
	resume := c.pendingResume
	c.pendingResume = false

	if onDone != nil {
		onDone()
	}
	if !resume {
		return
	}
	if c.speaking {
		// onDone hat neu gesprochen; die neue Äußerung übernimmt das Mikrofon
		c.pendingResume = true
		return
	}
	if resumeAfter <= 0 {
		c.resumeListening()
		return
	}
	c.bank.Arm(timers.SpeechResume, resumeAfter, c.resumeListening)
}

func (c *Controller) resumeListening() {
	if c.speaking || c.listening == nil {
		return
	}
	if err := c.listening.Start(); err != nil {
		c.log.Warn("⚠️ Mikrofon konnte nicht fortgesetzt werden", "error", err)
	}
}

// Cancel bricht jede laufende Ausgabe ab (globales "stop"). Die Phase des
// Dialogs bleibt unberührt, das Mikrofon wird nicht fortgesetzt.
func (c *Controller) Cancel() {
	c.generation++
	c.cancelBackends()
	c.bank.Cancel(timers.SpeechResume)
	c.pendingResume = false
	c.setSpeaking(false)
}

func (c *Controller) cancelBackends() {
	if c.primary != nil {
		c.primary.Cancel()
	}
	c.fallback.Cancel()
}

func (c *Controller) setSpeaking(v bool) {
	if c.speaking == v {
		return
	}
	c.speaking = v
	if c.onSpeaking != nil {
		c.onSpeaking(v)
	}
}
