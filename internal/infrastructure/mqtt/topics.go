package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic prefixes. Every topic lives under paddydryer/.
const (
	TopicRoot         = "paddydryer"
	TopicPrefixSystem = TopicRoot + "/system"
	TopicPrefixDryer  = TopicRoot + "/dryer"
	TopicPrefixBatch  = TopicRoot + "/batch"
	TopicPrefixTerm   = TopicRoot + "/terminal"
)

// Topics provides builders for paddy dryer MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DryerStatus(3) // "paddydryer/dryer/3/status"
type Topics struct{}

// SystemStatus is the core's retained online/offline status, also used
// for the Last Will.
//
// Example: paddydryer/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DryerStatus is the retained dashboard tile of one dryer.
//
// Example: paddydryer/dryer/3/status
func (Topics) DryerStatus(dryer int) string {
	return fmt.Sprintf("%s/%d/status", TopicPrefixDryer, dryer)
}

// BatchEvent carries a committed batch mutation. event is the part of
// the event type after "batch.", e.g. "completed".
//
// Example: paddydryer/batch/D3-20251029-001/completed
func (Topics) BatchEvent(batchCode, event string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixBatch, batchCode, event)
}

// TerminalActivity is where a kiosk reports user interaction.
//
// Example: paddydryer/terminal/kiosk-1/activity
func (Topics) TerminalActivity(terminalID string) string {
	return fmt.Sprintf("%s/%s/activity", TopicPrefixTerm, terminalID)
}

// TerminalSession is where the core announces session changes to a kiosk,
// such as a forced logout.
//
// Example: paddydryer/terminal/kiosk-1/session
func (Topics) TerminalSession(terminalID string) string {
	return fmt.Sprintf("%s/%s/session", TopicPrefixTerm, terminalID)
}

// AllTerminalActivity matches activity from every kiosk.
//
// Pattern: paddydryer/terminal/+/activity
func (Topics) AllTerminalActivity() string {
	return TopicPrefixTerm + "/+/activity"
}

// AllDryerStatus matches every dryer tile.
//
// Pattern: paddydryer/dryer/+/status
func (Topics) AllDryerStatus() string {
	return TopicPrefixDryer + "/+/status"
}

// AllTopics matches all paddy dryer traffic.
//
// Pattern: paddydryer/#
func (Topics) AllTopics() string {
	return TopicRoot + "/#"
}

// ParseTerminalActivity extracts the terminal ID from an activity topic.
func ParseTerminalActivity(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicRoot || parts[1] != "terminal" || parts[3] != "activity" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// ParseDryerStatus extracts the dryer number from a dryer status topic.
func ParseDryerStatus(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicRoot || parts[1] != "dryer" || parts[3] != "status" {
		return 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
