package speech

import "testing"

func TestPreprocess(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Water boils at 212°F.", "Water boils at 212 degrees Fahrenheit."},
		{"Ice melts at 0°C", "Ice melts at 0 degrees Celsius"},
		{"It was 75 F outside", "It was 75 degrees Fahrenheit outside"},
		{"About 30C today", "About 30 degrees Celsius today"},
		{"Raleigh, NC is the capital", "Raleigh, North Carolina is the capital"},
		{"Producers vs. consumers", "Producers versus consumers"},
		{"Awesome work!", "Great work!"},
		{"NCAA stays", "NCAA stays"},
	}
	for _, c := range cases {
		if got := Preprocess(c.in); got != c.want {
			t.Fatalf("Preprocess(%q)=%q, erwartet %q", c.in, got, c.want)
		}
	}
}

func TestDropRepeatedAddress(t *testing.T) {
	if got := DropRepeatedAddress("", "Scientist, here are the topics."); got != "Scientist, here are the topics." {
		t.Fatalf("ohne Vorgänger darf nichts entfernt werden: %q", got)
	}
	got := DropRepeatedAddress("Welcome Scientist Ada.", "Great job, Scientist! Scientist, next one.")
	if got != "Great job! next one." {
		t.Fatalf("got %q", got)
	}
}

func TestPreferredVoice(t *testing.T) {
	voices := []Voice{
		{Name: "Deutsch", Lang: "de-DE"},
		{Name: "Daniel", Lang: "en-GB"},
		{Name: "Microsoft Zira - English (United States)", Lang: "en-US"},
	}
	v, ok := PreferredVoice(voices)
	if !ok || v.Name != voices[2].Name {
		t.Fatalf("erwartet Zira, got %+v", v)
	}

	v, ok = PreferredVoice(voices[:2])
	if !ok || v.Name != "Daniel" {
		t.Fatalf("erwartet erste englische Stimme, got %+v", v)
	}

	if _, ok := PreferredVoice([]Voice{{Name: "Anna", Lang: "de-DE"}}); ok {
		t.Fatalf("ohne englische Stimme muss der Browser-Standard greifen")
	}
}
