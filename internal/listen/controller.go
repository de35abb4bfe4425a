// Package listen steuert die Spracherkennung einer Sitzung: ein Start, eine
// Äußerung, dann endet die Erkennung.
package listen

import (
	"errors"
	"strings"

	"curie/internal/logger"
)

// ErrSpeaking: das Mikrofon darf nicht während der Sprachausgabe starten
var ErrSpeaking = errors.New("listen: sprachausgabe aktiv")

// Recognizer ist eine Erkennung für genau eine Äußerung pro Start.
// Ereignisse kommen über die Events-Methoden des Controllers zurück.
type Recognizer interface {
	Start() error
	Stop()
}

// Options für den Controller
type Options struct {
	// IsSpeaking blockiert Start während der Sprachausgabe
	IsSpeaking func() bool
	// OnTranscript erhält das beste Transkript jeder Äußerung
	OnTranscript func(text string)
	// OnChange meldet Wechsel von IsListening
	OnChange func(listening bool)
}

// Controller läuft auf dem Sitzungs-Loop
type Controller struct {
	rec  Recognizer
	log  *logger.Logger
	opts Options

	listening bool
	starting  bool
}

func NewController(rec Recognizer, log *logger.Logger, opts Options) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{rec: rec, log: log, opts: opts}
}

// SetRecognizer tauscht die Erkennung (z.B. Browser → Cloud)
func (c *Controller) SetRecognizer(rec Recognizer) {
	if c.IsActive() {
		c.Stop()
	}
	c.rec = rec
}

func (c *Controller) IsListening() bool {
	return c.listening
}

// IsActive ist true, solange gehört wird oder ein Start aussteht
func (c *Controller) IsActive() bool {
	return c.listening || c.starting
}

func (c *Controller) Start() error {
	if c.rec == nil {
		return errors.New("listen: keine spracherkennung verbunden")
	}
	if c.opts.IsSpeaking != nil && c.opts.IsSpeaking() {
		return ErrSpeaking
	}
	if c.IsActive() {
		return nil
	}
	c.starting = true
	if err := c.rec.Start(); err != nil {
		c.starting = false
		return err
	}
	return nil
}

func (c *Controller) Stop() {
	if !c.IsActive() {
		return
	}
	c.rec.Stop()
	c.starting = false
	c.set(false)
}

func (c *Controller) Toggle() error {
	if c.IsActive() {
		c.Stop()
		return nil
	}
	return c.Start()
}

// OnStart: die Erkennung hört jetzt zu
func (c *Controller) OnStart() {
	if !c.starting {
		// Start kam nach einem Stop an
		return
	}
	c.starting = false
	c.set(true)
}

// OnEnd: die Erkennung wurde beendet
func (c *Controller) OnEnd() {
	c.starting = false
	c.set(false)
}

// OnResult reicht das Transkript an den Dialog weiter
func (c *Controller) OnResult(transcript string) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}
	c.log.Debug("🎤 Transkript", "text", transcript)
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(transcript)
	}
}

// OnError protokolliert; kein automatischer Neustart
func (c *Controller) OnError(err error) {
	c.log.Warn("⚠️ Spracherkennung fehlgeschlagen", "error", err)
	c.starting = false
	c.set(false)
}

func (c *Controller) set(v bool) {
	if c.listening == v {
		return
	}
	c.listening = v
	if c.opts.OnChange != nil {
		c.opts.OnChange(v)
	}
}
