// Package notifier pushes trading events to an operator channel.
package notifier

// Notifier receives operator-facing event messages. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Notify(text string) error
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(string) error { return nil }
