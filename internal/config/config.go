package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Duration wird in der JSON-Datei als "10s", "4m" usw. geschrieben
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Zahl = Millisekunden
		var ms int64
		if err2 := json.Unmarshal(b, &ms); err2 != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Timings der Dialogsteuerung
type Timings struct {
	Inactivity     Duration `json:"inactivity"`
	Silence        Duration `json:"silence"`
	ScaffoldHint   Duration `json:"scaffold_hint"`
	DecomposeHint  Duration `json:"decompose_hint"`
	PostFinalize   Duration `json:"post_finalize"`
	SciELAReturn   Duration `json:"sciela_return"`
	ReasoningGrace Duration `json:"reasoning_grace"`
	RemoteResume   Duration `json:"remote_resume"`
	Session        Duration `json:"session"`
	SessionWarn    Duration `json:"session_warning"`
	LogoutDelay    Duration `json:"logout_delay"`
	ActivityTick   Duration `json:"activity_tick"`
	HintTimeout    Duration `json:"hint_timeout"`
}

// Config enthält alle Konfigurationseinstellungen
type Config struct {
	// Server-Einstellungen
	ServerPort string `json:"server_port"`
	LogMode    string `json:"log_mode"`

	// Pfade
	ContentPaths []string `json:"content_paths"`
	DatabasePath string   `json:"database_path"`
	StaticDir    string   `json:"static_dir"`

	// LLM-Einstellungen. Ohne OpenAI-Key wird Ollama als Upstream genutzt.
	OpenAIURL    string `json:"openai_url"`
	OpenAIModel  string `json:"openai_model"`
	OpenAIAPIKey string `json:"-"`
	OllamaURL    string `json:"ollama_url"`
	DefaultModel string `json:"default_model"`
	HintProxyURL string `json:"hint_proxy_url"`

	// Sprachausgabe
	ElevenLabsAPIKey  string `json:"-"`
	ElevenLabsVoiceID string `json:"elevenlabs_voice_id"`

	// Spracherkennung auf dem Server (Google Cloud Speech)
	CloudSpeech       bool   `json:"cloud_speech"`
	SpeechLanguage    string `json:"speech_language"`
	SpeechSampleRate  int    `json:"speech_sample_rate"`
	GoogleCredentials string `json:"-"`

	// Anmeldung
	JWTSecret       string `json:"-"`
	TeacherUsername string `json:"teacher_username"`
	TeacherPassword string `json:"-"`

	RedisURL string `json:"redis_url"`

	Timings Timings `json:"timings"`
}

// Default gibt die Standardkonfiguration zurück
func Default() *Config {
	return &Config{
		ServerPort:       "8080",
		LogMode:          "dev",
		ContentPaths:     []string{"content"},
		DatabasePath:     "curie.db",
		StaticDir:        "./web/static",
		OpenAIURL:        "https://api.openai.com",
		OpenAIModel:      "gpt-4o-mini",
		OllamaURL:        "http://localhost:11434",
		DefaultModel:     "qwen2.5:7b",
		SpeechLanguage:   "en-US",
		SpeechSampleRate: 16000,
		TeacherUsername:  "teacher",
		Timings: Timings{
			Inactivity:     Duration(10 * time.Second),
			Silence:        Duration(4 * time.Second),
			ScaffoldHint:   Duration(5 * time.Second),
			DecomposeHint:  Duration(4 * time.Second),
			PostFinalize:   Duration(4 * time.Second),
			SciELAReturn:   Duration(3 * time.Second),
			ReasoningGrace: Duration(1 * time.Second),
			RemoteResume:   Duration(500 * time.Millisecond),
			Session:        Duration(30 * time.Minute),
			SessionWarn:    Duration(25 * time.Minute),
			LogoutDelay:    Duration(5 * time.Second),
			ActivityTick:   Duration(time.Minute),
			HintTimeout:    Duration(8 * time.Second),
		},
	}
}

// Load lädt die Konfiguration aus einer Datei. Fehlt die Datei, gelten die
// Standardwerte; danach überschreiben Umgebungsvariablen (.env eingeschlossen).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDotenv liest .env-Dateien; bereits gesetzte Variablen gewinnen
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func (c *Config) applyEnv() {
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIURL, "OPENAI_BASE_URL")
	setString(&c.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setString(&c.ElevenLabsVoiceID, "ELEVENLABS_VOICE_ID")
	setString(&c.JWTSecret, "CURIE_JWT_SECRET")
	setString(&c.TeacherUsername, "CURIE_TEACHER_USERNAME")
	setString(&c.TeacherPassword, "CURIE_TEACHER_PASSWORD")
	setString(&c.HintProxyURL, "CURIE_HINT_PROXY_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.GoogleCredentials, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.ServerPort, "PORT")
	setString(&c.DatabasePath, "CURIE_DB")
	if v := os.Getenv("CURIE_CLOUD_SPEECH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.CloudSpeech = b
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Save speichert die Konfiguration in eine Datei (ohne Geheimnisse)
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
