// Package clipboard copies transcripts to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("clipboard: no clipboard utility found (install xclip, xsel or wl-clipboard)")

// System uses the platform clipboard.
type System struct{}

func (System) Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

func (System) Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

// Fake keeps the copied text in memory.
type Fake struct {
	mu   sync.Mutex
	text string
	err  error
}

func (f *Fake) Copy(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

func (f *Fake) Read() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

// Fail makes every following call return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}
