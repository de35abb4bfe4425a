package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"curie/internal/activity"
	"curie/internal/api"
	"curie/internal/auth"
	"curie/internal/cache"
	"curie/internal/config"
	"curie/internal/content"
	"curie/internal/dialogue"
	"curie/internal/hint"
	"curie/internal/listen"
	"curie/internal/llm"
	"curie/internal/logger"
	"curie/internal/quiz"
	"curie/internal/speech"
	"curie/internal/storage"
)

func main() {
	// Kommandozeilen-Flags
	configPath := flag.String("config", "config.json", "Pfad zur Konfigurationsdatei")
	port := flag.String("port", "", "Server-Port (überschreibt die Konfiguration)")
	flag.Parse()

	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  .env konnte nicht gelesen werden: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Konnte Konfiguration nicht laden, verwende Standardwerte: %v\n", err)
		cfg = config.Default()
	}
	if *port != "" {
		cfg.ServerPort = *port
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("❌ Server-Fehler", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info("🔬 TMSA CURIE - Start")
	log.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage initialisieren
	log.Info("💾 Initialisiere Datenbank...")
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("datenbank: %w", err)
	}
	defer store.Close()
	log.Infof("   ✓ Datenbank: %s", cfg.DatabasePath)

	// Anmeldung
	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn("⚠️  CURIE_JWT_SECRET fehlt, Tokens gelten nur bis zum Neustart")
		secret = fmt.Sprintf("dev-%d", time.Now().UnixNano())
	}
	authSvc, err := auth.NewService(store, auth.Options{
		Secret:          secret,
		TeacherUsername: cfg.TeacherUsername,
		TeacherPassword: cfg.TeacherPassword,
	})
	if err != nil {
		return err
	}
	if cfg.TeacherPassword == "" {
		log.Warn("⚠️  Kein Lehrkraft-Passwort gesetzt, Lehrer-Login ist deaktiviert")
	}

	// Redis ist optional
	var activityCache cache.ActivityCache
	if cfg.RedisURL != "" {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := cache.NewClient(rctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Warn("⚠️  Redis nicht erreichbar, Aktivität nur in SQLite", "error", err)
		} else {
			defer client.Close()
			activityCache = cache.NewActivityCache(client)
			log.Info("   ✓ Redis-Cache für Aktivität aktiv")
		}
	}
	recorder := activity.NewRecorder(store, activityCache, log)

	// LLM: OpenAI mit Schlüssel, sonst lokales Ollama
	log.Info("🤖 Initialisiere LLM-Provider...")
	var provider llm.Provider
	var upstream hint.Forwarder
	if cfg.OpenAIAPIKey != "" {
		openai := llm.NewOpenAIProvider(cfg.OpenAIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
		provider, upstream = openai, openai
		log.Infof("   ✓ OpenAI: %s (%s)", cfg.OpenAIURL, cfg.OpenAIModel)
	} else {
		ollama := llm.NewOllamaProvider(cfg.OllamaURL, cfg.DefaultModel, log)
		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if ollama.IsAvailable(lctx) {
			ollama.ResolveModel(lctx)
			provider = ollama
			log.Infof("   ✓ Ollama erreichbar: %s (%s)", cfg.OllamaURL, ollama.GetCurrentModel())
		} else {
			log.Warnf("   ⚠️  Ollama NICHT erreichbar unter %s, Bewertung nach Stichworten", cfg.OllamaURL)
		}
		cancel()
	}

	hintOpts := hint.Options{ProxyURL: cfg.HintProxyURL, StageTimeout: cfg.Timings.HintTimeout.D()}
	if upstream != nil {
		hintOpts.Direct = upstream
	}
	oracle := hint.NewOracle(hintOpts, log)

	// Sprachausgabe und -erkennung
	hubOpts := api.HubOptions{
		Auth:         authSvc,
		Hints:        oracle,
		Activity:     recorder,
		Grader:       llm.NewTutor(provider),
		Quizzes:      store,
		Timings:      dialogueTimings(cfg.Timings),
		RemoteResume: cfg.Timings.RemoteResume.D(),
		Log:          log,
	}
	if cfg.ElevenLabsAPIKey != "" {
		hubOpts.Voice = speech.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID)
		log.Info("   ✓ ElevenLabs-Stimme aktiv")
	}
	if cfg.CloudSpeech {
		tr, err := listen.NewGCPTranscriber(ctx, cfg.SpeechLanguage, cfg.SpeechSampleRate)
		if err != nil {
			log.Warn("⚠️  Google Speech nicht verfügbar, nutze Browser-Erkennung", "error", err)
		} else {
			defer tr.Close()
			hubOpts.Transcriber = tr
			log.Infof("   ✓ Google Speech: %s", cfg.SpeechLanguage)
		}
	}

	// Lernstoff im Hintergrund laden; /health meldet die Bereitschaft
	loader := content.NewLoader(log)
	hubOpts.Content = loader
	hub := api.NewHub(hubOpts)

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Content:  loader,
		Auth:     authSvc,
		Activity: recorder,
		Quizzes:  quiz.NewBuilder(0),
		Upstream: upstream,
		Sessions: hub,
		Log:      log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(handler, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("📚 Lade Lernstoff...", "paths", cfg.ContentPaths)
		if err := loader.Load(cfg.ContentPaths...); err != nil {
			log.Error("❌ Lernstoff konnte nicht geladen werden", "error", err)
			return nil
		}
		c, _ := loader.Content()
		log.Infof("   ✓ Lernstoff: %d Klassenstufen", len(c.Grades))
		return nil
	})

	g.Go(func() error {
		log.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Infof("✅ Server läuft auf: http://localhost:%s", cfg.ServerPort)
		log.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Info("💡 Drücke Strg+C zum Beenden")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("⏹️  Server wird heruntergefahren...")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Shutdown(sctx); err != nil {
			log.Warn("⚠️  Sitzungen nicht rechtzeitig beendet", "error", err)
		}
		return server.Shutdown(sctx)
	})

	return g.Wait()
}

func dialogueTimings(t config.Timings) dialogue.Timings {
	return dialogue.Timings{
		Inactivity:     t.Inactivity.D(),
		Silence:        t.Silence.D(),
		ScaffoldHint:   t.ScaffoldHint.D(),
		DecomposeHint:  t.DecomposeHint.D(),
		PostFinalize:   t.PostFinalize.D(),
		SciELAReturn:   t.SciELAReturn.D(),
		ReasoningGrace: t.ReasoningGrace.D(),
		Session:        t.Session.D(),
		SessionWarn:    t.SessionWarn.D(),
		LogoutDelay:    t.LogoutDelay.D(),
		ActivityTick:   t.ActivityTick.D(),
	}
}
