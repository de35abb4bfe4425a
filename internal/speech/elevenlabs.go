package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const elevenLabsDefaultBase = "https://api.elevenlabs.io"

// ElevenLabs erzeugt MP3-Audio über die REST-API von ElevenLabs
type ElevenLabs struct {
	apiKey  string
	voiceID string
	baseURL string
	model   string
	client  *http.Client
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:  strings.TrimSpace(apiKey),
		voiceID: strings.TrimSpace(voiceID),
		baseURL: elevenLabsDefaultBase,
		model:   "eleven_turbo_v2_5",
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// WithBaseURL setzt eine andere API-Adresse (Tests, Proxy)
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimSuffix(base, "/")
	}
	return e
}

func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if e.apiKey == "" || e.voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: api key und voice id erforderlich")
	}

	body, err := json.Marshal(map[string]interface{}{
		// führende Pause, sonst wird das erste Wort verschluckt
		"text":     "... " + text,
		"model_id": e.model,
		"voice_settings": voiceSettings{
			Stability:       0.35,
			SimilarityBoost: 0.8,
			Style:           0.5,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs-anfrage fehlgeschlagen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs-fehler (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs-audio lesen: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "audio/mpeg"
	}
	return &Audio{Data: data, Format: format}, nil
}
