package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("api key fehlt")
		}
		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Text != "... Hello" || body.ModelID != "eleven_turbo_v2_5" {
			t.Errorf("body=%+v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	el := NewElevenLabs("key", "voice-1").WithBaseURL(srv.URL)
	audio, err := el.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "ID3mp3" || audio.Format != "audio/mpeg" {
		t.Fatalf("audio=%+v", audio)
	}
}

func TestElevenLabs_NonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewElevenLabs("key", "v").WithBaseURL(srv.URL).Synthesize(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("erwartet 401-Fehler, got %v", err)
	}
}

func TestElevenLabs_MissingKey(t *testing.T) {
	if _, err := NewElevenLabs("", "v").Synthesize(context.Background(), "x"); err == nil {
		t.Fatalf("ohne Schlüssel muss ein Fehler kommen")
	}
}

// deferredExec führt Post sofort aus, Go erst auf Abruf
type deferredExec struct {
	pending []func()
}

func (d *deferredExec) Post(fn func()) { fn() }
func (d *deferredExec) Go(fn func())   { d.pending = append(d.pending, fn) }

func (d *deferredExec) runAll() {
	fns := d.pending
	d.pending = nil
	for _, fn := range fns {
		fn()
	}
}

type fakeSynth struct {
	err error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*Audio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Audio{Data: []byte(text), Format: "audio/mpeg"}, nil
}

type fakePlayer struct {
	played []Utterance
	dones  []func(error)
	stops  int
}

func (p *fakePlayer) Play(u Utterance, _ *Audio, done func(error)) {
	p.played = append(p.played, u)
	p.dones = append(p.dones, done)
}

func (p *fakePlayer) StopAudio() { p.stops++ }

func TestRemoteBackend_DiscardsAudioAfterCancel(t *testing.T) {
	exec := &deferredExec{}
	player := &fakePlayer{}
	b := NewRemoteBackend(&fakeSynth{}, player, exec, nil)

	called := false
	b.Speak(context.Background(), Utterance{ID: "a", Text: "A"}, func(error) { called = true })
	b.Cancel()
	exec.runAll()

	if len(player.played) != 0 {
		t.Fatalf("veraltetes Audio wurde abgespielt")
	}
	if called {
		t.Fatalf("done darf für verworfenes Audio nicht laufen")
	}
}

func TestRemoteBackend_PlaysAndReportsEnd(t *testing.T) {
	exec := &deferredExec{}
	player := &fakePlayer{}
	b := NewRemoteBackend(&fakeSynth{}, player, exec, nil)

	var got error = errors.New("unset")
	b.Speak(context.Background(), Utterance{ID: "a", Text: "A"}, func(err error) { got = err })
	exec.runAll()
	if len(player.played) != 1 {
		t.Fatalf("Audio nicht abgespielt")
	}
	player.dones[0](nil)
	if got != nil {
		t.Fatalf("done err=%v", got)
	}
}

func TestRemoteBackend_SynthesisErrorReported(t *testing.T) {
	exec := &deferredExec{}
	b := NewRemoteBackend(&fakeSynth{err: errors.New("down")}, &fakePlayer{}, exec, nil)

	var got error
	b.Speak(context.Background(), Utterance{ID: "a"}, func(err error) { got = err })
	exec.runAll()
	if got == nil {
		t.Fatalf("Fehler wurde nicht gemeldet")
	}
}
