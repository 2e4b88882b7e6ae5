package controller

import "github.com/nerrad567/haunt-core/internal/sequence"

// Notifiers fans each event out to several notifiers, in order. Nil
// entries are skipped.
type Notifiers []sequence.Notifier

// Broadcast implements sequence.Notifier.
func (ns Notifiers) Broadcast(channel string, payload any) {
	for _, n := range ns {
		if n != nil {
			n.Broadcast(channel, payload)
		}
	}
}
