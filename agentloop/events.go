package agentloop

import (
	"log/slog"
	"sync"
)

// Observer receives human-readable progress messages. Notify is best-effort:
// it must not block the loop and reports nothing back.
type Observer interface {
	Notify(message string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(message string)

// Notify calls f(message).
func (f ObserverFunc) Notify(message string) { f(message) }

// NopObserver drops every message.
type NopObserver struct{}

// Notify does nothing.
func (NopObserver) Notify(string) {}

// MultiObserver fans a message out to several observers in order.
type MultiObserver []Observer

// Notify forwards message to every observer.
func (m MultiObserver) Notify(message string) {
	for _, o := range m {
		if o != nil {
			o.Notify(message)
		}
	}
}

// LogObserver mirrors narrations into a structured log.
type LogObserver struct {
	Logger *slog.Logger
}

// Notify logs message at info level.
func (o LogObserver) Notify(message string) {
	if o.Logger != nil {
		o.Logger.Info("narration", "message", message)
	}
}

// Recorder keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Notify appends message.
func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
