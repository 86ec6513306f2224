package websocket

import (
	"log"

	"erp-conflict-engine/internal/domain"
)

// Notifier turns domain events into broadcast messages. It satisfies the
// conflict service's EventSink; delivery failures are logged and
// dropped, never propagated back into detection.
type Notifier struct {
	manager *Manager
}

func NewNotifier(manager *Manager) *Notifier {
	return &Notifier{manager: manager}
}

func (n *Notifier) Publish(event domain.Event) {
	var (
		msg *Message
		err error
	)

	switch e := event.(type) {
	case domain.ConflictDetectedEvent:
		msg, err = NewMessage(TypeConflictDetected, conflictPayload(e.Conflict))
	case domain.CriticalConflictEvent:
		msg, err = NewMessage(TypeCriticalConflict, conflictPayload(e.Conflict))
	case domain.HighConflictRateEvent:
		msg, err = NewMessage(TypeHighConflictRate, HighConflictRatePayload{
			RecordType:    e.RecordType,
			Count:         e.Count,
			WindowSeconds: int(e.Window.Seconds()),
		})
	default:
		return
	}

	if err != nil {
		log.Printf("failed to build notification for %s: %v", event.Type(), err)
		return
	}

	if err := n.manager.Broadcast(msg); err != nil {
		log.Printf("failed to broadcast %s: %v", event.Type(), err)
	}
}
