// Package hint löst Hinweise über eine feste Kette auf: Proxy, direkter
// Aufruf mit lokalem Schlüssel, statische Definitionen.
package hint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curie/internal/llm"
	"curie/internal/logger"
)

// Source nennt die Stufe, die den Hinweis geliefert hat
type Source string

const (
	SourceProxy  Source = "proxy"
	SourceDirect Source = "direct"
	SourceStatic Source = "static"
)

// Context beschreibt die Lage des Schülers
type Context struct {
	Grade string
	Topic string
	Mode  llm.Mode
}

// Hint ist immer verwendbar; Source zeigt die Herkunft
type Hint struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// FromModel: der Hinweis stammt von einem Sprachmodell
func (h Hint) FromModel() bool {
	return h.Source != SourceStatic
}

// Forwarder ist die direkte Upstream-Verbindung (z.B. llm.OpenAIProvider)
type Forwarder interface {
	Forward(ctx context.Context, req llm.ChatRequest) (int, []byte, error)
}

// Options der Kette
type Options struct {
	// ProxyURL ist der vollständige POST-Endpunkt, leer = Stufe 1 aus
	ProxyURL string
	// Direct ist nur mit lokalem Schlüssel gesetzt
	Direct       Forwarder
	StageTimeout time.Duration
	HTTPClient   *http.Client
}

// Oracle ist zustandslos und kann von allen Sitzungen geteilt werden
type Oracle struct {
	proxyURL string
	direct   Forwarder
	timeout  time.Duration
	client   *http.Client
	log      *logger.Logger
}

func NewOracle(opts Options, log *logger.Logger) *Oracle {
	if log == nil {
		log = logger.Nop()
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 8 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Oracle{
		proxyURL: strings.TrimSpace(opts.ProxyURL),
		direct:   opts.Direct,
		timeout:  opts.StageTimeout,
		client:   opts.HTTPClient,
		log:      log,
	}
}

// GetHint blockiert höchstens zwei Stufen-Timeouts und liefert immer einen Text
func (o *Oracle) GetHint(ctx context.Context, question string, hc Context) Hint {
	if text, ok := o.Remote(ctx, question, hc); ok {
		return text
	}
	return Hint{Text: Static(hc.Topic), Source: SourceStatic}
}

// Remote versucht nur die Netzwerkstufen. ok=false heißt: statisch weiter.
func (o *Oracle) Remote(ctx context.Context, question string, hc Context) (Hint, bool) {
	req := llm.TutorRequest(question, hc.Grade, hc.Topic, hc.Mode)

	if o.proxyURL != "" {
		text, err := o.viaProxy(ctx, req)
		if err == nil {
			o.log.Debug("💡 Hinweis über Proxy", "topic", hc.Topic)
			return Hint{Text: text, Source: SourceProxy}, true
		}
		o.log.Warn("⚠️ Hint-Proxy fehlgeschlagen, versuche lokalen Schlüssel", "error", err)
	}

	if o.direct != nil {
		text, err := o.viaDirect(ctx, req)
		if err == nil {
			o.log.Debug("💡 Hinweis über lokalen Schlüssel", "topic", hc.Topic)
			return Hint{Text: text, Source: SourceDirect}, true
		}
		o.log.Warn("⚠️ Direkter Upstream fehlgeschlagen", "error", err)
	}
	return Hint{}, false
}

func (o *Oracle) viaProxy(ctx context.Context, req llm.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.proxyURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	// kein Authorization-Header: der Proxy hält den Schlüssel
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("proxy nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return parseChat(resp.StatusCode, data)
}

func (o *Oracle) viaDirect(ctx context.Context, req llm.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	status, data, err := o.direct.Forward(ctx, req)
	if err != nil {
		return "", err
	}
	return parseChat(status, data)
}

func parseChat(status int, data []byte) (string, error) {
	if status < 200 || status > 299 {
		return "", fmt.Errorf("status %d", status)
	}
	var resp llm.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("antwort ungültig: %w", err)
	}
	text, ok := resp.FirstContent()
	if !ok {
		return "", fmt.Errorf("antwort ohne inhalt")
	}
	return text, nil
}
