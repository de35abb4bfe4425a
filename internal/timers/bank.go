// Package timers verwaltet benannte, abbrechbare Verzögerungen einer Sitzung.
package timers

import (
	"time"

	"curie/internal/eventloop"
)

// Namen der Timer-Slots, die der Dialog verwendet
const (
	Inactivity    = "inactivity"
	Silence       = "silence"
	Grace         = "grace"
	Return        = "return"
	DecomposeHint = "decompose_hint"
	SessionWarn   = "session_warning"
	SessionEnd    = "session_end"
	ActivityTick  = "activity_tick"
	SpeechResume  = "speech_resume"
	Logout        = "logout"
)

// PhaseScoped sind die Slots, die jeder Phasenwechsel verwirft
var PhaseScoped = []string{Inactivity, Silence, Grace, Return}

// Bank hält pro Name höchstens einen lebenden Timer. Alle Methoden und
// alle Callbacks laufen auf dem Sitzungs-Loop.
type Bank struct {
	clock Clock
	exec  eventloop.Executor
	slots map[string]slot
	seq   uint64
}

type slot struct {
	id   uint64
	stop Stopper
}

func NewBank(clock Clock, exec eventloop.Executor) *Bank {
	if clock == nil {
		clock = RealClock{}
	}
	return &Bank{
		clock: clock,
		exec:  exec,
		slots: make(map[string]slot),
	}
}

// Arm bricht einen vorhandenen Timer gleichen Namens ab und plant fn neu.
// fn läuft nur, wenn der Slot beim Feuern noch zu genau diesem Aufruf gehört.
func (b *Bank) Arm(name string, d time.Duration, fn func()) {
	b.Cancel(name)
	b.seq++
	id := b.seq

	stop := b.clock.AfterFunc(d, func() {
		b.exec.Post(func() {
			cur, ok := b.slots[name]
			if !ok || cur.id != id {
				return
			}
			delete(b.slots, name)
			fn()
		})
	})
	b.slots[name] = slot{id: id, stop: stop}
}

// Cancel bricht die genannten Timer ab; unbekannte Namen werden ignoriert
func (b *Bank) Cancel(names ...string) {
	for _, name := range names {
		s, ok := b.slots[name]
		if !ok {
			continue
		}
		s.stop.Stop()
		delete(b.slots, name)
	}
}

// CancelAll verwirft jeden Timer der Bank (Logout, Verbindungsende)
func (b *Bank) CancelAll() {
	for name, s := range b.slots {
		s.stop.Stop()
		delete(b.slots, name)
	}
}

func (b *Bank) Pending(name string) bool {
	_, ok := b.slots[name]
	return ok
}

func (b *Bank) Len() int {
	return len(b.slots)
}

func (b *Bank) Now() time.Time {
	return b.clock.Now()
}
