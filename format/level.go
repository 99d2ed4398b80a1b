package format

import "fmt"

// Level selects how aggressively recognized segments are punctuated.
type Level int

const (
	LevelOff Level = iota
	LevelMedium
	LevelHigh
)

var levelNames = [...]string{"off", "medium", "high"}

func (l Level) String() string {
	if l < LevelOff || l > LevelHigh {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Next cycles off -> medium -> high -> off.
func (l Level) Next() Level {
	return (l + 1) % Level(len(levelNames))
}

func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("unknown punctuation level %q (want off, medium or high)", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
