package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"curie/internal/logger"
	"curie/internal/models"
	"curie/internal/pdf"
)

// ErrNoContent: noch nichts geladen oder keine Klassenstufe gefunden
var ErrNoContent = errors.New("content: kein lernstoff geladen")

// Loader lädt den Lernstoff einmal und meldet Bereitschaft über Ready()
type Loader struct {
	log *logger.Logger

	once    sync.Once
	ready   chan struct{}
	mu      sync.RWMutex
	content *models.Content
	err     error
}

func NewLoader(log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{log: log, ready: make(chan struct{})}
}

// Ready wird geschlossen, sobald Load abgeschlossen ist (auch bei Fehler)
func (l *Loader) Ready() <-chan struct{} {
	return l.ready
}

// Load liest alle Pfade (Dateien oder Verzeichnisse) und führt die
// Klassenstufen zusammen. Nur der erste Aufruf wirkt.
func (l *Loader) Load(paths ...string) error {
	l.once.Do(func() {
		c, err := l.load(paths)
		l.mu.Lock()
		l.content, l.err = c, err
		l.mu.Unlock()
		close(l.ready)
	})
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Set übernimmt bereits geladenen Inhalt (Tests, eingebetteter Stoff)
func (l *Loader) Set(c *models.Content) {
	l.once.Do(func() {
		l.mu.Lock()
		l.content = c
		if c == nil || len(c.Grades) == 0 {
			l.err = ErrNoContent
		}
		l.mu.Unlock()
		close(l.ready)
	})
}

// Content liefert den geladenen Stoff oder ErrNoContent
func (l *Loader) Content() (*models.Content, error) {
	select {
	case <-l.ready:
	default:
		return nil, ErrNoContent
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.content, nil
}

// Wait blockiert bis zur Bereitschaft
func (l *Loader) Wait(ctx context.Context) (*models.Content, error) {
	select {
	case <-l.ready:
		return l.Content()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) load(paths []string) (*models.Content, error) {
	merged := &models.Content{}
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			l.log.Warn("⚠️ Inhaltspfad nicht lesbar", "path", p, "error", err)
			continue
		}
		for _, f := range files {
			c, err := ParseFile(f)
			if err != nil {
				l.log.Warn("⚠️ Konnte Inhalt nicht parsen", "file", f, "error", err)
				continue
			}
			l.log.Info("📚 Inhalt geladen", "file", f, "grades", len(c.Grades))
			merge(merged, c)
		}
	}
	if len(merged.Grades) == 0 {
		return nil, ErrNoContent
	}
	normalize(merged)
	return merged, nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".yaml", ".yml", ".json", ".pdf":
		return true
	}
	return false
}

// ParseFile wählt den Parser nach Dateiendung
func ParseFile(path string) (*models.Content, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		doc, err := pdf.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return ParseMarkdown(strings.NewReader(doc.Text))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".md":
		return ParseMarkdown(f)
	case ".yaml", ".yml", ".json":
		return ParseYAML(f)
	}
	return nil, fmt.Errorf("nicht unterstütztes format: %s", ext)
}

// merge hängt Stufen an; gleiche IDs bekommen die Themen der späteren Datei
func merge(dst, src *models.Content) {
	if dst.BotName == "" || (src.BotName != "" && src.BotName != DefaultBotName) {
		dst.BotName = src.BotName
	}
	if dst.IntroMessage == "" || (src.IntroMessage != "" && src.IntroMessage != DefaultIntroMessage) {
		dst.IntroMessage = src.IntroMessage
	}
	for _, g := range src.Grades {
		if existing, ok := dst.FindGrade(g.ID); ok {
			existing.Strands = append(existing.Strands, g.Strands...)
			continue
		}
		dst.Grades = append(dst.Grades, g)
	}
}
