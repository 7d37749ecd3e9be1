package domain

import "time"

// DeviceEvent is an opaque device notification such as destination_reached.
type DeviceEvent struct {
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

type RegionEventType string

const RegionExit RegionEventType = "region_exit"

// RegionAlert reports a record that landed outside the configured box.
type RegionAlert struct {
	DeviceID  string          `json:"device_id"`
	Event     RegionEventType `json:"event"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Timestamp int64           `json:"timestamp"`
}

// RecordEntry is the flattened form of a record used by the archive and the relay.
type RecordEntry struct {
	DeviceID   string    `json:"device_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt time.Time `json:"received_at"`
}

type ArchiveQuery struct {
	DeviceID string
	Start    time.Time
	End      time.Time
}

// NewRecordEntry flattens rec.
func NewRecordEntry(rec Record, receivedAt time.Time) *RecordEntry {
	return &RecordEntry{
		DeviceID:   rec.DeviceID(),
		Latitude:   rec.Lat(),
		Longitude:  rec.Lon(),
		ReceivedAt: receivedAt,
	}
}
