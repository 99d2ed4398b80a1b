package transcriber

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Script replays recognition events from a text file, one step per line:
//
//	interim <text>
//	final <text>
//	error <code>
//	end
//	sleep <ms>
//
// Blank lines and lines starting with '#' are ignored. Steps are consumed
// across restarts: after "end" the next Start continues where the previous
// run stopped.
type Script struct {
	mu    sync.Mutex
	steps []scriptStep
	pos   int
}

type scriptStep struct {
	op    string
	text  string
	delay time.Duration
}

func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScript(f)
}

func ParseScript(r io.Reader) (*Script, error) {
	s := &Script{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		op, arg, _ := strings.Cut(raw, " ")
		arg = strings.TrimSpace(arg)
		step := scriptStep{op: strings.ToLower(op), text: arg}

		switch step.op {
		case "interim", "final":
		case "error":
			if arg == "" {
				return nil, fmt.Errorf("script line %d: error needs a code", line)
			}
		case "end":
		case "sleep":
			ms, err := strconv.Atoi(arg)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("script line %d: bad sleep %q", line, arg)
			}
			step.delay = time.Duration(ms) * time.Millisecond
		default:
			return nil, fmt.Errorf("script line %d: unknown step %q", line, op)
		}
		s.steps = append(s.steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Remaining reports how many steps have not been played yet.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.pos
}

// Recognizer returns a Fake whose recognitions play this script.
func (s *Script) Recognizer() *Fake {
	f := NewFake()
	f.OnStart = s.play
	return f
}

func (s *Script) next() (scriptStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.steps) {
		return scriptStep{}, false
	}
	st := s.steps[s.pos]
	s.pos++
	return st, true
}

func (s *Script) play(r *FakeRecognition) {
	stopped := r.Stopped()
	if stopped == nil {
		return
	}
	for {
		select {
		case <-stopped:
			return
		default:
		}
		st, ok := s.next()
		if !ok {
			return
		}
		switch st.op {
		case "sleep":
			select {
			case <-stopped:
				return
			case <-time.After(st.delay):
			}
		case "interim":
			r.Interim(st.text)
		case "final":
			r.Final(st.text)
		case "error":
			r.Fail(ErrorCode(st.text))
		case "end":
			r.End()
			return
		}
	}
}
