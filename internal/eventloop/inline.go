package eventloop

// Inline führt alles synchron auf der aufrufenden Goroutine aus. Posts
// während einer laufenden Ausführung werden angehängt und danach in
// FIFO-Reihenfolge abgearbeitet, wie es auch der echte Loop tut.
// Nur für Tests und Werkzeuge ohne Nebenläufigkeit gedacht.
type Inline struct {
	queue   []func()
	running bool
}

func NewInline() *Inline {
	return &Inline{}
}

func (in *Inline) Post(fn func()) {
	if fn == nil {
		return
	}
	in.queue = append(in.queue, fn)
	if in.running {
		return
	}
	in.running = true
	defer func() { in.running = false }()
	for len(in.queue) > 0 {
		next := in.queue[0]
		in.queue = in.queue[1:]
		next()
	}
}

func (in *Inline) Go(fn func()) {
	fn()
}
