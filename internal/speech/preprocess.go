package speech

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	with string
}

// Aussprache-Korrekturen, Reihenfolge ist relevant
var rewrites = []rewrite{
	{regexp.MustCompile(`[\x{00B0}\x{00BA}]F`), " degrees Fahrenheit"},
	{regexp.MustCompile(`[\x{00B0}\x{00BA}]C`), " degrees Celsius"},
	{regexp.MustCompile(`(\d+)\s?F\b`), "$1 degrees Fahrenheit"},
	{regexp.MustCompile(`(\d+)\s?C\b`), "$1 degrees Celsius"},
	{regexp.MustCompile(`\bNC\b`), "North Carolina"},
	{regexp.MustCompile(`\bvs\.`), "versus"},
	{regexp.MustCompile(`Awesome`), "Great"},
}

var (
	trailingAddress = regexp.MustCompile(`(?i),\s*Scientist\b`)
	leadingAddress  = regexp.MustCompile(`(?i)\bScientist,\s*`)
)

// Preprocess bereitet Text für die Sprachausgabe auf. Keine Seiteneffekte.
func Preprocess(text string) string {
	for _, rw := range rewrites {
		text = rw.re.ReplaceAllString(text, rw.with)
	}
	return text
}

// DropRepeatedAddress entfernt die Anrede ", Scientist" bzw. "Scientist, ",
// wenn die vorige Äußerung den Schüler schon so angesprochen hat.
func DropRepeatedAddress(previous, text string) string {
	if !strings.Contains(previous, "Scientist") || !strings.Contains(text, "Scientist") {
		return text
	}
	text = trailingAddress.ReplaceAllString(text, "")
	return leadingAddress.ReplaceAllString(text, "")
}
