// Package eventloop serialisiert alle Zustandsänderungen einer Lernsitzung
// auf eine einzige Goroutine.
package eventloop

import (
	"context"
	"sync"

	"curie/internal/logger"
)

// Executor trennt Arbeit auf dem Loop (Post) von blockierender Arbeit
// außerhalb (Go). Ergebnisse von Go müssen per Post zurückkommen.
type Executor interface {
	Post(fn func())
	Go(fn func())
}

// Loop führt gepostete Funktionen strikt nacheinander in FIFO-Reihenfolge aus
type Loop struct {
	log *logger.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// New erstellt einen Loop. Run muss separat gestartet werden.
func New(log *logger.Logger) *Loop {
	if log == nil {
		log = logger.Nop()
	}
	return &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post reiht fn ein. Nach Close wird fn verworfen.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go startet blockierende Arbeit außerhalb des Loops
func (l *Loop) Go(fn func()) {
	go fn()
}

// Do postet fn und wartet auf die Ausführung. Darf nicht vom Loop selbst
// aufgerufen werden.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run arbeitet die Warteschlange ab, bis ctx endet oder Close gerufen wird
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.exec(fn)
		}
	}
}

// Close beendet den Loop; noch wartende Funktionen werden verworfen
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Done ist geschlossen, sobald der Loop beendet wurde
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("❌ Panik im Sitzungs-Loop", "panic", r)
		}
	}()
	fn()
}
