package listen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"curie/internal/eventloop"
	"curie/internal/logger"
)

// maximale Länge einer gepufferten Äußerung
const maxUtteranceBytes = 4 << 20

// Events sind die Rückmeldungen einer Erkennung an den Controller
type Events interface {
	OnStart()
	OnEnd()
	OnResult(transcript string)
	OnError(err error)
}

// Transcriber wandelt eine komplette Äußerung in Text (blockierend)
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Close() error
}

// CloudRecognizer lässt den Browser Audio streamen und transkribiert auf
// dem Server. mic steuert nur die Aufnahme beim Client.
type CloudRecognizer struct {
	ctx    context.Context
	mic    Recognizer
	tr     Transcriber
	exec   eventloop.Executor
	events Events
	log    *logger.Logger

	buf    bytes.Buffer
	active bool
	epoch  uint64
}

func NewCloudRecognizer(ctx context.Context, mic Recognizer, tr Transcriber, exec eventloop.Executor, events Events, log *logger.Logger) *CloudRecognizer {
	if log == nil {
		log = logger.Nop()
	}
	return &CloudRecognizer{ctx: ctx, mic: mic, tr: tr, exec: exec, events: events, log: log}
}

func (r *CloudRecognizer) Start() error {
	r.buf.Reset()
	r.epoch++
	r.active = true
	if err := r.mic.Start(); err != nil {
		r.active = false
		return err
	}
	return nil
}

func (r *CloudRecognizer) Stop() {
	r.active = false
	r.epoch++
	r.buf.Reset()
	r.mic.Stop()
}

// AppendAudio nimmt einen Audio-Frame des Clients an
func (r *CloudRecognizer) AppendAudio(frame []byte) {
	if !r.active {
		return
	}
	if r.buf.Len()+len(frame) > maxUtteranceBytes {
		r.log.Warn("⚠️ Äußerung zu lang, Audio wird abgeschnitten", "bytes", r.buf.Len())
		return
	}
	r.buf.Write(frame)
}

// Finish schließt die Äußerung ab und transkribiert sie außerhalb des Loops
func (r *CloudRecognizer) Finish(mimeType string) {
	if !r.active {
		return
	}
	r.active = false
	audio := append([]byte(nil), r.buf.Bytes()...)
	r.buf.Reset()
	epoch := r.epoch

	r.exec.Go(func() {
		ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
		defer cancel()
		text, err := r.tr.Transcribe(ctx, audio, mimeType)
		r.exec.Post(func() {
			if epoch != r.epoch {
				return
			}
			if err != nil {
				r.events.OnError(err)
				return
			}
			r.events.OnResult(text)
			r.events.OnEnd()
		})
	})
}

// GCPTranscriber nutzt die synchrone Google Cloud Speech-to-Text API
type GCPTranscriber struct {
	client       *speech.Client
	languageCode string
	sampleRate   int
}

// NewGCPTranscriber erstellt den Client. Zugangsdaten kommen aus
// GOOGLE_APPLICATION_CREDENTIALS(_JSON).
func NewGCPTranscriber(ctx context.Context, languageCode string, sampleRate int) (*GCPTranscriber, error) {
	c, err := speech.NewClient(ctx, clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &GCPTranscriber{client: c, languageCode: languageCode, sampleRate: sampleRate}, nil
}

func (g *GCPTranscriber) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GCPTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               g.languageCode,
			Encoding:                   inferEncoding(mimeType),
			SampleRateHertz:            int32(g.sampleRate),
			EnableAutomaticPunctuation: true,
			MaxAlternatives:            1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	return bestTranscript(resp), nil
}

func bestTranscript(resp *speechpb.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	for _, res := range resp.GetResults() {
		alts := res.GetAlternatives()
		if len(alts) > 0 && strings.TrimSpace(alts[0].GetTranscript()) != "" {
			return strings.TrimSpace(alts[0].GetTranscript())
		}
	}
	return ""
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "wav"), strings.Contains(m, "l16"), strings.Contains(m, "pcm"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
