package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/mqtt"
)

// Signaler turns an interaction into session activity.
// *auth.ActivityMonitor implements it.
type Signaler interface {
	Signal(ctx context.Context, kind string) (bool, error)
}

// ActivityMessage is the payload a kiosk publishes on its activity topic.
type ActivityMessage struct {
	Kind string `json:"kind"`
}

// SessionMessage is what the core publishes on a kiosk's session topic.
type SessionMessage struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
	At     string `json:"at"`
}

// ActivityHandler returns an MQTT handler feeding kiosk interaction
// signals to sig. Messages from terminals other than terminalID are
// ignored; an empty terminalID accepts every terminal.
func ActivityHandler(sig Signaler, terminalID string) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		from, ok := mqtt.ParseTerminalActivity(topic)
		if !ok {
			return fmt.Errorf("unexpected activity topic %q", topic)
		}
		if terminalID != "" && from != terminalID {
			return nil
		}

		var msg ActivityMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding activity from %s: %w", from, err)
		}

		// Unknown kinds are ignored by the monitor.
		if _, err := sig.Signal(context.Background(), msg.Kind); err != nil {
			return fmt.Errorf("recording activity from %s: %w", from, err)
		}
		return nil
	}
}

// ForcedLogoutAnnouncer returns a listener for
// auth.ActivityMonitor.OnForcedLogout that tells the kiosk to return to
// the PIN screen.
func ForcedLogoutAnnouncer(pub Publisher, terminalID string, now func() time.Time, logger Logger) func(auth.EndReason) {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(reason auth.EndReason) {
		msg := SessionMessage{
			Event:  "forced_logout",
			Reason: string(reason),
			At:     now().UTC().Format(time.RFC3339),
		}
		if err := pub.PublishJSON(mqtt.Topics{}.TerminalSession(terminalID), msg, false); err != nil {
			logger.Warn("announcing forced logout failed", "reason", string(reason), "error", err)
		}
	}
}
