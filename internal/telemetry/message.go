package telemetry

import "encoding/json"

// Message is one telemetry tick as delivered to subscribers.
type Message struct {
	Pose     *Pose     `json:"pose"`
	Velocity *Velocity `json:"velocity"`
}

// NewMessage builds the tick payload from a snapshot.
func NewMessage(s Snapshot) Message {
	return Message{Pose: s.Pose, Velocity: s.Velocity}
}

// Event types broadcast on the notify stream.
const (
	EventMapUpdated = "map_updated"
)

// Event is a notify-stream message.
type Event struct {
	Type  string `json:"type"`
	Walls int    `json:"walls"`
}

// EncodeMessage serializes a tick payload.
func EncodeMessage(s Snapshot) ([]byte, error) {
	return json.Marshal(NewMessage(s))
}

// EncodeEvent serializes a notify event.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
