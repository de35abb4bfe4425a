package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"curie/internal/dialogue"
	"curie/internal/eventloop"
	"curie/internal/listen"
	"curie/internal/logger"
	"curie/internal/models"
	"curie/internal/speech"
	"curie/internal/timers"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// clientMessage kommt vom Browser
type clientMessage struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Intent *dialogue.Intent `json:"intent,omitempty"`
	// ID der Äußerung bei speech_ended / playback_ended
	ID     string         `json:"id,omitempty"`
	Error  string         `json:"error,omitempty"`
	Voices []speech.Voice `json:"voices,omitempty"`
	Mime   string         `json:"mime,omitempty"`
}

type audioMessage struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Format     string `json:"format"`
	Data       []byte `json:"data"`
}

// serverMessage geht an den Browser
type serverMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Message   *dialogue.Message    `json:"message,omitempty"`
	View      *dialogue.View       `json:"view,omitempty"`
	Speak     *speech.LocalRequest `json:"speak,omitempty"`
	Audio     *audioMessage        `json:"audio,omitempty"`
	Value     *bool                `json:"value,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

// wsSession verbindet eine Dialogmaschine mit einem Browser. Alles außer
// den beiden Pumpen läuft auf dem Loop der Sitzung.
type wsSession struct {
	id      string
	conn    *websocket.Conn
	student *models.Student
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loop   *eventloop.Loop
	send   chan []byte
	closed bool

	machine *dialogue.Machine
	speech  *speech.Controller
	local   *speech.LocalBackend
	mic     *listen.Controller
	cloud   *listen.CloudRecognizer

	// offene Rückmeldungen des Clients je Äußerung
	says  map[string]func(error)
	plays map[string]func(error)
}

func newSession(id string, conn *websocket.Conn, student *models.Student, c *models.Content, opts HubOptions, log *logger.Logger) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	log = log.With("session", id)
	s := &wsSession{
		id:      id,
		conn:    conn,
		student: student,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		loop:    eventloop.New(log),
		send:    make(chan []byte, sendBuffer),
		says:    make(map[string]func(error)),
		plays:   make(map[string]func(error)),
	}

	bank := timers.NewBank(timers.RealClock{}, s.loop)
	s.local = speech.NewLocalBackend(s, s.loop)

	var primary speech.Backend
	if opts.Voice != nil {
		primary = speech.NewRemoteBackend(opts.Voice, s, s.loop, log)
	}
	s.speech = speech.NewController(ctx, s.loop, bank, log, speech.Options{
		Primary:           primary,
		Fallback:          s.local,
		RemoteResumeDelay: opts.RemoteResume,
		OnSpeaking: func(v bool) {
			s.push(serverMessage{Type: "speaking", Value: &v})
		},
	})

	s.mic = listen.NewController(nil, log, listen.Options{
		IsSpeaking:   s.speech.IsSpeaking,
		OnTranscript: func(text string) { s.machine.HandleInput(text) },
		OnChange: func(v bool) {
			s.push(serverMessage{Type: "listening", Value: &v})
		},
	})
	var rec listen.Recognizer = browserMic{s}
	if opts.Transcriber != nil {
		s.cloud = listen.NewCloudRecognizer(ctx, rec, opts.Transcriber, s.loop, s.mic, log)
		rec = s.cloud
	}
	s.mic.SetRecognizer(rec)
	s.speech.SetListening(s.mic)

	s.machine = dialogue.New(ctx, id, dialogue.Deps{
		Content:   c,
		Surface:   s,
		Speech:    s.speech,
		Listening: micState{s.mic},
		Hints:     opts.Hints,
		Activity:  opts.Activity,
		Grader:    opts.Grader,
		Quizzes:   opts.Quizzes,
		Exec:      s.loop,
		Bank:      bank,
		Log:       log,
		Timings:   opts.Timings,
	})
	return s
}

// run blockiert, bis die Verbindung endet
func (s *wsSession) run() {
	go s.loop.Run(s.ctx)
	go s.writePump()

	s.push(serverMessage{Type: "session", SessionID: s.id})
	s.log.Info("🔌 Sitzung verbunden", "guest", s.student == nil)

	s.readPump()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	s.loop.Do(ctx, func() {
		s.machine.Close()
		s.closeSend()
	})
	cancel()
	s.cancel()
	s.loop.Close()
	s.log.Info("🔌 Sitzung getrennt")
}

func (s *wsSession) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("⚠️ WebSocket-Fehler", "error", err)
			}
			return
		}

		if kind == websocket.BinaryMessage {
			s.loop.Post(func() {
				if s.cloud != nil {
					s.cloud.AppendAudio(data)
				}
			})
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("Ungültige Client-Nachricht", "error", err)
			continue
		}
		s.loop.Post(func() { s.handle(msg) })
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push reiht eine Nachricht ein; nur auf dem Loop aufrufen
func (s *wsSession) push(msg serverMessage) {
	if s.closed {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("❌ Nachricht nicht serialisierbar", "type", msg.Type, "error", err)
		return
	}
	select {
	case s.send <- data:
	default:
		s.log.Warn("⚠️ Client liest nicht mehr, Sitzung wird getrennt")
		s.closeSend()
	}
}

func (s *wsSession) closeSend() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// handle verarbeitet eine Client-Nachricht auf dem Loop
func (s *wsSession) handle(msg clientMessage) {
	switch msg.Type {
	case "start":
		s.machine.Start(s.student)
	case "input":
		s.machine.HandleInput(msg.Text)
	case "intent":
		if msg.Intent != nil {
			s.machine.Dispatch(*msg.Intent)
		}
	case "speech_ended":
		s.acknowledge(s.says, msg)
	case "playback_ended":
		s.acknowledge(s.plays, msg)
	case "voices":
		s.local.SetVoices(msg.Voices)
	case "listen_started":
		s.mic.OnStart()
	case "listen_ended":
		// mit Cloud-Erkennung endet die Äußerung erst mit dem Transkript
		if s.cloud == nil {
			s.mic.OnEnd()
		}
	case "listen_result":
		if s.cloud == nil {
			s.mic.OnResult(msg.Text)
		}
	case "listen_error":
		s.mic.OnError(errors.New(msg.Error))
	case "audio_end":
		if s.cloud != nil {
			s.cloud.Finish(msg.Mime)
		}
	default:
		s.log.Debug("Unbekannte Client-Nachricht", "type", msg.Type)
	}
}

func (s *wsSession) acknowledge(pending map[string]func(error), msg clientMessage) {
	done, ok := pending[msg.ID]
	if !ok {
		return
	}
	delete(pending, msg.ID)
	var err error
	if msg.Error != "" {
		err = errors.New(msg.Error)
	}
	done(err)
}

// === dialogue.Surface ===

func (s *wsSession) AppendMessage(m dialogue.Message) {
	s.push(serverMessage{Type: "message", Message: &m})
}

func (s *wsSession) Render(v dialogue.View) {
	s.push(serverMessage{Type: "render", View: &v})
}

func (s *wsSession) SessionEnded(reason string) {
	s.push(serverMessage{Type: "session_end", Reason: reason})
	s.closeSend()
}

// === speech.LocalVoice ===

func (s *wsSession) Say(req speech.LocalRequest, done func(error)) {
	s.says[req.ID] = done
	s.push(serverMessage{Type: "speak", Speak: &req})
}

func (s *wsSession) StopSpeech() {
	if len(s.says) == 0 {
		return
	}
	clear(s.says)
	s.push(serverMessage{Type: "stop_speech"})
}

// === speech.Player ===

func (s *wsSession) Play(u speech.Utterance, audio *speech.Audio, done func(error)) {
	s.plays[u.ID] = done
	s.push(serverMessage{Type: "play_audio", Audio: &audioMessage{
		ID:         u.ID,
		Generation: u.Generation,
		Format:     audio.Format,
		Data:       audio.Data,
	}})
}

func (s *wsSession) StopAudio() {
	if len(s.plays) == 0 {
		return
	}
	clear(s.plays)
	s.push(serverMessage{Type: "stop_speech"})
}

// browserMic steuert die Aufnahme im Browser
type browserMic struct{ s *wsSession }

func (b browserMic) Start() error {
	b.s.push(serverMessage{Type: "listen_start"})
	return nil
}

func (b browserMic) Stop() {
	b.s.push(serverMessage{Type: "listen_stop"})
}

// micState meldet dem Dialog auch einen ausstehenden Start als aktiv
type micState struct{ *listen.Controller }

func (m micState) IsListening() bool { return m.IsActive() }
