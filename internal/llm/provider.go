package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curie/internal/logger"
)

// ollamaSemaphore limitiert gleichzeitige Ollama-Anfragen (verhindert Speicherüberlauf)
var ollamaSemaphore = make(chan struct{}, 1)

func acquireOllama(ctx context.Context) error {
	select {
	case ollamaSemaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func releaseOllama() {
	<-ollamaSemaphore
}

// Provider definiert das Interface für Chat-Backends
type Provider interface {
	// Chat führt einen Chat mit Nachrichtenverlauf
	Chat(ctx context.Context, messages []ChatMessage, options *GenerateOptions) (*GenerateResponse, error)

	// IsAvailable prüft, ob das Backend erreichbar ist
	IsAvailable(ctx context.Context) bool

	// GetName gibt den Namen des Providers zurück
	GetName() string

	// GetCurrentModel gibt das aktuelle Modell zurück
	GetCurrentModel() string
}

// GenerateOptions enthält optionale Parameter für die Generierung
type GenerateOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// GenerateResponse enthält die Antwort des LLM
type GenerateResponse struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
	Done        bool   `json:"done"`
}

// ChatMessage repräsentiert eine Chat-Nachricht
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest ist das Format von /v1/chat/completions (und des Hint-Proxys)
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatResponse ist die Antwort von /v1/chat/completions
type ChatResponse struct {
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// FirstContent liefert den Text der ersten Antwort
func (r *ChatResponse) FirstContent() (string, bool) {
	if r == nil || len(r.Choices) == 0 {
		return "", false
	}
	content := strings.TrimSpace(r.Choices[0].Message.Content)
	return content, content != ""
}

// ModelInfo enthält Informationen über ein Modell
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// OpenAIProvider spricht jede OpenAI-kompatible Chat-API an
type OpenAIProvider struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
	log          *logger.Logger
}

// NewOpenAIProvider erstellt einen Provider für /v1/chat/completions
func NewOpenAIProvider(baseURL, apiKey, defaultModel string, log *logger.Logger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAIProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       strings.TrimSpace(apiKey),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log,
	}
}

func (o *OpenAIProvider) GetName() string { return "OpenAI" }

func (o *OpenAIProvider) GetCurrentModel() string { return o.defaultModel }

func (o *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	return o.apiKey != ""
}

func (o *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage, options *GenerateOptions) (*GenerateResponse, error) {
	req := ChatRequest{Model: o.defaultModel, Messages: messages}
	if options != nil {
		if options.Model != "" {
			req.Model = options.Model
		}
		req.MaxTokens = options.MaxTokens
		req.Temperature = options.Temperature
	}

	status, body, err := o.Forward(ctx, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("openai-fehler (%d): %s", status, limitContent(string(body), 300))
	}

	var result ChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("openai-antwort ungültig: %w", err)
	}
	content, ok := result.FirstContent()
	if !ok {
		return nil, fmt.Errorf("openai-antwort ohne inhalt")
	}
	return &GenerateResponse{
		Content:     content,
		Model:       result.Model,
		TotalTokens: result.Usage.TotalTokens,
		Done:        true,
	}, nil
}

// Forward schickt req unverändert weiter und liefert Status und Rohantwort.
// Der Hint-Proxy reicht beides an den Client durch.
func (o *OpenAIProvider) Forward(ctx context.Context, req ChatRequest) (int, []byte, error) {
	if o.apiKey == "" {
		return 0, nil, fmt.Errorf("openai: kein api key konfiguriert")
	}
	if req.Model == "" {
		req.Model = o.defaultModel
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 150
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("openai-anfrage fehlgeschlagen: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("openai-antwort lesen: %w", err)
	}
	o.log.Debug("[OpenAI] Antwort erhalten", "status", resp.StatusCode, "dauer", time.Since(start))
	return resp.StatusCode, body, nil
}

// OllamaProvider implementiert den Provider für Ollama
type OllamaProvider struct {
	baseURL      string
	defaultModel string
	client       *http.Client
	log          *logger.Logger
}

// NewOllamaProvider erstellt einen neuen Ollama-Provider
func NewOllamaProvider(baseURL, defaultModel string, log *logger.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if defaultModel == "" {
		defaultModel = "qwen2.5:7b"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OllamaProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		log: log,
	}
}

// ResolveModel prüft, ob das Modell existiert, sonst wird das erste verfügbare genommen
func (o *OllamaProvider) ResolveModel(ctx context.Context) {
	models, err := o.GetModels(ctx)
	if err != nil || len(models) == 0 {
		return
	}
	for _, m := range models {
		if m.Name == o.defaultModel {
			return
		}
	}
	o.log.Warnf("⚠️  Modell '%s' nicht gefunden, verwende '%s'", o.defaultModel, models[0].Name)
	o.defaultModel = models[0].Name
}

func (o *OllamaProvider) GetName() string {
	return "Ollama"
}

func (o *OllamaProvider) GetCurrentModel() string {
	return o.defaultModel
}

func (o *OllamaProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (o *OllamaProvider) GetModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

func (o *OllamaProvider) Chat(ctx context.Context, messages []ChatMessage, options *GenerateOptions) (*GenerateResponse, error) {
	// Semaphore: Nur eine Anfrage gleichzeitig an Ollama
	if err := acquireOllama(ctx); err != nil {
		return nil, err
	}
	defer releaseOllama()

	return o.chatWithRetry(ctx, messages, options, 2)
}

func (o *OllamaProvider) chatWithRetry(ctx context.Context, messages []ChatMessage, options *GenerateOptions, maxRetries int) (*GenerateResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			o.log.Infof("   [Ollama] 🔄 Retry %d/%d...", attempt, maxRetries)
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := o.doChat(ctx, messages, options)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Bei Context-Abbruch sofort aufhören
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Nur bei abgestürztem Runner erneut versuchen
		if !strings.Contains(err.Error(), "terminated") && !strings.Contains(err.Error(), "(500)") {
			break
		}
	}
	return nil, lastErr
}

func (o *OllamaProvider) doChat(ctx context.Context, messages []ChatMessage, options *GenerateOptions) (*GenerateResponse, error) {
	model := o.defaultModel
	if options != nil && options.Model != "" {
		model = options.Model
	}

	reqBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}
	if options != nil {
		opts := map[string]interface{}{}
		if options.Temperature > 0 {
			opts["temperature"] = options.Temperature
		}
		if options.MaxTokens > 0 {
			opts["num_predict"] = options.MaxTokens
		}
		if len(opts) > 0 {
			reqBody["options"] = opts
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama-chat fehlgeschlagen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama-fehler (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Model string `json:"model"`
		Done  bool   `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	o.log.Debug("[Ollama] ✓ Antwort", "zeichen", len(result.Message.Content), "dauer", time.Since(start))
	return &GenerateResponse{
		Content: strings.TrimSpace(result.Message.Content),
		Model:   result.Model,
		Done:    result.Done,
	}, nil
}
