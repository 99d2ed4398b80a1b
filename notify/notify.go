// Package notify raises desktop notifications for events the user may miss
// while the panel is in the background.
package notify

import (
	"sync"

	"scribe/log"

	"github.com/gen2brain/beeep"
)

const appName = "Scribe"

type Notifier interface {
	Notify(title, message string)
}

// Desktop sends notifications through the platform notification service.
type Desktop struct{}

func (Desktop) Notify(title, message string) {
	if err := beeep.Notify(appName+": "+title, message, ""); err != nil {
		log.Warnf("notify: %v", err)
	}
}

// Silent drops every notification.
type Silent struct{}

func (Silent) Notify(string, string) {}

type Message struct {
	Title   string
	Message string
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Notify(title, message string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, Message{title, message})
	r.mu.Unlock()
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}
