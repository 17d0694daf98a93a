package chat

import (
	"log"

	"mentorship-chat-service/internal/models"
)

// CallRelay forwards call signaling frames between users. The relay is
// stateless: it never inspects SDP payloads and keeps no call table; the
// clients own the session lifecycle.
type CallRelay struct {
	broadcaster Broadcaster
}

func NewCallRelay(broadcaster Broadcaster) *CallRelay {
	return &CallRelay{broadcaster: broadcaster}
}

// Relay forwards one signaling frame to the target user's connections. The
// caller id is stamped server-side so a client cannot spoof another caller.
func (c *CallRelay) Relay(event models.EventName, callerID int, sig models.CallSignal) {
	switch event {
	case models.EventCallInvite, models.EventCallAccept, models.EventCallReject, models.EventCallEnd:
	default:
		return
	}
	sig.CallerID = callerID

	payload, err := models.NewEnvelope(event, sig)
	if err != nil {
		return
	}
	if !c.broadcaster.SendToUser(sig.TargetID, payload) {
		// Target offline; the invite simply rings out on the caller's side.
		log.Printf("call signal undeliverable: event=%s caller=%d target=%d", event, callerID, sig.TargetID)
	}
}
