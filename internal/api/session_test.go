package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"curie/internal/dialogue"
	"curie/internal/hint"
	"curie/internal/models"
	"curie/internal/storage"
)

type staticHints struct{}

func (staticHints) GetHint(_ context.Context, _ string, hc hint.Context) hint.Hint {
	return hint.Hint{Text: hint.Static(hc.Topic), Source: hint.SourceStatic}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, ts *testServer, query string) *wsClient {
	t.Helper()
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

// waitFor liest, bis eine Nachricht vom Typ kind kommt
func (c *wsClient) waitFor(kind string) serverMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg serverMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("warte auf %s: %v", kind, err)
		}
		if msg.Type == kind {
			return msg
		}
	}
}

func (c *wsClient) send(msg clientMessage) {
	c.t.Helper()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("WriteJSON: %v", err)
	}
}

func TestWS_GuestIntroToTopics(t *testing.T) {
	ts := newTestServer(t, nil)
	c := dialWS(t, ts, "")

	if msg := c.waitFor("session"); msg.SessionID == "" {
		t.Fatalf("keine session id")
	}
	c.send(clientMessage{Type: "voices", Voices: nil})
	c.send(clientMessage{Type: "start"})

	intro := c.waitFor("message")
	if intro.Message == nil || intro.Message.Role != dialogue.RoleTutor {
		t.Fatalf("intro=%+v", intro)
	}
	speak := c.waitFor("speak")
	if speak.Speak == nil || speak.Speak.ID == "" || speak.Speak.Rate != 0.9 {
		t.Fatalf("speak=%+v", speak.Speak)
	}

	c.send(clientMessage{Type: "speech_ended", ID: speak.Speak.ID})
	grades := c.waitFor("render")
	if grades.View == nil || grades.View.Screen != dialogue.ScreenGrades || len(grades.View.Grades) == 0 {
		t.Fatalf("view=%+v", grades.View)
	}

	c.send(clientMessage{Type: "intent", Intent: &dialogue.Intent{Kind: dialogue.IntentSelectGrade, Value: "8th"}})
	topics := c.waitFor("render")
	if topics.View == nil || topics.View.Screen != dialogue.ScreenTopics {
		t.Fatalf("view=%+v", topics.View)
	}
}

func TestWS_InvalidTokenRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("verbindung trotz ungültigem token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp=%v", resp)
	}
}

func TestWS_StudentSessionIsCounted(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.signup(t, "Marie", "Curie").Token
	c := dialWS(t, ts, "?token="+token)
	c.waitFor("session")

	if n := ts.hub.Len(); n != 1 {
		t.Fatalf("sessions=%d", n)
	}

	c.send(clientMessage{Type: "start"})
	welcome := c.waitFor("message")
	if welcome.Message == nil || !strings.Contains(welcome.Message.Text, "Marie Curie") {
		t.Fatalf("welcome=%+v", welcome.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := ts.hub.Len(); n != 0 {
		t.Fatalf("nach Shutdown: sessions=%d", n)
	}
}

type quizResult struct {
	quiz *models.Quiz
	err  error
}

func (q quizResult) GetActiveQuiz() (*models.Quiz, error)  { return q.quiz, q.err }
func (quizResult) SaveQuizResult(*models.QuizResult) error { return nil }

func TestActiveQuiz_NotFoundIsNoQuiz(t *testing.T) {
	q, err := activeQuiz{quizResult{err: storage.ErrNotFound}}.GetActiveQuiz()
	if q != nil || err != nil {
		t.Fatalf("q=%v err=%v", q, err)
	}

	boom := errors.New("disk full")
	if _, err := (activeQuiz{quizResult{err: boom}}).GetActiveQuiz(); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	want := &models.Quiz{ID: "quiz-1"}
	if got, err := (activeQuiz{quizResult{quiz: want}}).GetActiveQuiz(); got != want || err != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
