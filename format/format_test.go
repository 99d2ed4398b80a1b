package format

import (
	"errors"
	"testing"
	"time"
)

func TestProcessPunctuation(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		in    string
		want  string
	}{
		{"off is identity", LevelOff, "  hello ,world  ", "  hello ,world  "},
		{"off keeps lowercase", LevelOff, "hello", "hello"},
		{"medium comma spacing", LevelMedium, "hello ,world", "Hello, world"},
		{"medium question mark", LevelMedium, "what is this ?", "What is this?"},
		{"medium keeps decimals", LevelMedium, "pi is 3.14", "Pi is 3.14"},
		{"medium keeps runs together", LevelMedium, "really ? ! ok", "Really?! ok"},
		{"medium leaves case after stop", LevelMedium, "one. two", "One. two"},
		{"medium trims", LevelMedium, "  hi  ", "Hi"},
		{"high capitalizes after stop", LevelHigh, "hello.world", "Hello. World"},
		{"high conjunction comma", LevelHigh, "привет. как дела и что нового", "Привет. Как дела, и что нового"},
		{"high conjunction at start", LevelHigh, "и так далее", "И так далее"},
		{"high conjunction after comma", LevelHigh, "да, но нет", "Да, но нет"},
		{"high conjunction case insensitive", LevelHigh, "да ИЛИ нет", "Да, ИЛИ нет"},
		{"high word containing conjunction", LevelHigh, "мы иногда ходим", "Мы иногда ходим"},
		{"high leaves english alone", LevelHigh, "i think that you know what and when", "I think that you know what and when"},
		{"empty", LevelHigh, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProcessPunctuation(tt.in, tt.level)
			if got != tt.want {
				t.Errorf("ProcessPunctuation(%q, %s) = %q, want %q", tt.in, tt.level, got, tt.want)
			}
		})
	}
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world . this is  a test ,ok  ", "Hello world. This is a test, ok"},
		{"wait... what", "Wait… what"},
		{"wait . . . what", "Wait… what"},
		{"really?!   yes", "Really?! Yes"},
		{"meet at 10:30 ; bring 2,5 kg", "Meet at 10:30; bring 2,5 kg"},
		{"first line\n\nsecond line", "First line second line"},
		{"он сказал :да", "Он сказал: да"},
		{"one\v\vtwo\u00a0\u00a0three\u2003four", "One two three four"},
		{"tab\t\u0085next", "Tab next"},
	}

	for _, tt := range tests {
		got, err := FormatText(tt.in)
		if err != nil {
			t.Fatalf("FormatText(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("FormatText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTextIdempotent(t *testing.T) {
	inputs := []string{
		"  hello   world . this is  a test ,ok  ",
		"wait.... what ?! yes",
		"a , b ; c : d . e",
		"quote: \"hi .\" then",
		"привет . как дела ?нормально",
	}
	for _, in := range inputs {
		once, err := FormatText(in)
		if err != nil {
			t.Fatalf("FormatText(%q): %v", in, err)
		}
		twice, err := FormatText(once)
		if err != nil {
			t.Fatalf("FormatText(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestFormatTextEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t", "\u00a0\v"} {
		if _, err := FormatText(in); !errors.Is(err, ErrNothingToFormat) {
			t.Errorf("FormatText(%q) err = %v, want ErrNothingToFormat", in, err)
		}
	}
}

func TestAutoPunctuate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "Hello world."},
		{"is it ready? yes it is", "Is it ready? Yes it is."},
		{"what?really", "What?really?"},
		{"wow!great", "Wow!great!"},
		{"first. second! third", "First. Second! Third."},
		{"already done.", "Already done."},
		{"one.   two", "One. Two."},
	}

	for _, tt := range tests {
		got, err := AutoPunctuate(tt.in)
		if err != nil {
			t.Fatalf("AutoPunctuate(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("AutoPunctuate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := AutoPunctuate("  "); !errors.Is(err, ErrNothingToPunctuate) {
		t.Errorf("AutoPunctuate(blank) err = %v, want ErrNothingToPunctuate", err)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{65 * time.Second, "01:05"},
		{59*time.Second + 900*time.Millisecond, "00:59"},
		{61 * time.Minute, "61:00"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestCounts(t *testing.T) {
	if n := CountWords("  one two\nthree "); n != 3 {
		t.Errorf("CountWords = %d, want 3", n)
	}
	if n := CountWords("   "); n != 0 {
		t.Errorf("CountWords(blank) = %d, want 0", n)
	}
	if n := CountChars("привет"); n != 6 {
		t.Errorf("CountChars = %d, want 6", n)
	}
}

func TestLevel(t *testing.T) {
	for _, name := range []string{"off", "medium", "high"} {
		l, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if l.String() != name {
			t.Errorf("round trip %q -> %q", name, l.String())
		}
	}
	if _, err := ParseLevel("extreme"); err == nil {
		t.Error("expected error for unknown level")
	}
	if LevelHigh.Next() != LevelOff || LevelOff.Next() != LevelMedium {
		t.Error("Next does not cycle")
	}

	var l Level
	if err := l.UnmarshalText([]byte("high")); err != nil || l != LevelHigh {
		t.Errorf("UnmarshalText = %v, %v", l, err)
	}
}
