package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildPDF schreibt ein einseitiges PDF mit einer Textzeile pro Eintrag
func buildPDF(lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n")
	y := 720
	for _, l := range lines {
		fmt.Fprintf(&content, "1 0 0 1 72 %d Tm\n(%s) Tj\n", y, l)
		y -= 20
	}
	content.WriteString("ET\n")

	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return out.Bytes()
}

var guideLines = []string{
	"## Plants and Animals (Code: K4.L.1)",
	"Question: What do plants need to make food?",
	"Options: *Sunlight, Toys, Rocks, Shoes",
}

func writePDF(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile_KeepsLines(t *testing.T) {
	doc, err := ParseFile(writePDF(t, "guide.pdf", buildPDF(guideLines)))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if doc.PageCount != 1 || doc.Name != "guide.pdf" {
		t.Fatalf("doc=%+v", doc)
	}
	lines := strings.Split(strings.TrimSpace(doc.Text), "\n")
	if len(lines) != len(guideLines) {
		t.Fatalf("lines=%q", lines)
	}
	for i, want := range guideLines {
		if lines[i] != want {
			t.Fatalf("zeile %d: %q, erwartet %q", i, lines[i], want)
		}
	}
}

func TestParseFile_NotAPDF(t *testing.T) {
	if _, err := ParseFile(writePDF(t, "broken.pdf", []byte("Question: no pdf"))); err == nil {
		t.Fatalf("erwartet Fehler")
	}
}
