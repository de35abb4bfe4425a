package pdf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document ist der extrahierte Text eines PDF-Leitfadens
type Document struct {
	Name      string
	Text      string
	PageCount int
}

// ParseFile parst eine einzelne PDF-Datei
func ParseFile(filePath string) (*Document, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Öffnen der PDF: %w", err)
	}
	defer f.Close()

	return &Document{
		Name:      filepath.Base(filePath),
		Text:      extractText(r),
		PageCount: r.NumPage(),
	}, nil
}

// extractText liest zeilenweise, damit Schlüsselzeilen wie "Question: "
// erhalten bleiben
func extractText(r *pdf.Reader) string {
	var content strings.Builder

	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// Fallback auf reinen Text der Seite
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			content.WriteString(text)
			content.WriteString("\n")
			continue
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			content.WriteString(strings.TrimRight(line.String(), " "))
			content.WriteString("\n")
		}
	}

	return content.String()
}
