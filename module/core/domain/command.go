package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire topics shared with the drone firmware.
const (
	TopicSensor             = "sensor"
	TopicPositions          = "positions"
	TopicDestinationReached = "destination_reached"
	TopicCurrentPosition    = "current_position"
	TopicCommandPrefix      = "command_"
)

var ErrMalformedCommand = errors.New("malformed move command")

// CommandTopic is the per-device command topic.
func CommandTopic(deviceID string) string {
	return TopicCommandPrefix + deviceID
}

// MoveCommand asks one drone to fly to a destination.
type MoveCommand struct {
	DeviceID      string
	Lat           float64
	Lon           float64
	CorrelationID string
}

// Payload encodes the command as "<id>_<lat>_<lon>_<corr>". The correlation
// id is empty for fixed-wait dispatch, leaving the trailing underscore.
func (c MoveCommand) Payload() []byte {
	return []byte(c.DeviceID + "_" + FormatCoord(c.Lat) + "_" + FormatCoord(c.Lon) + "_" + c.CorrelationID)
}

// ParseMoveCommand decodes a command payload. Fields are taken from the right
// so device ids may contain underscores.
func ParseMoveCommand(payload []byte) (MoveCommand, error) {
	parts := strings.Split(string(payload), "_")
	n := len(parts)
	if n < 4 {
		return MoveCommand{}, fmt.Errorf("%w: %q", ErrMalformedCommand, payload)
	}
	lat, err := strconv.ParseFloat(parts[n-3], 64)
	if err != nil {
		return MoveCommand{}, fmt.Errorf("%w: latitude: %v", ErrMalformedCommand, err)
	}
	lon, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil {
		return MoveCommand{}, fmt.Errorf("%w: longitude: %v", ErrMalformedCommand, err)
	}
	return MoveCommand{
		DeviceID:      strings.Join(parts[:n-3], "_"),
		Lat:           lat,
		Lon:           lon,
		CorrelationID: parts[n-1],
	}, nil
}

const arrivalPhrase = " has reached the new destination!"

// Arrival is a decoded destination_reached payload:
// "<id> has reached the new destination![ <corr>]".
type Arrival struct {
	DeviceID      string
	CorrelationID string
}

// Payload encodes the arrival the way the drone firmware reports it.
func (a Arrival) Payload() []byte {
	msg := a.DeviceID + arrivalPhrase
	if a.CorrelationID != "" {
		msg += " " + a.CorrelationID
	}
	return []byte(msg)
}

// ParseArrival decodes an arrival payload. ok is false when the payload does
// not follow the firmware's wording.
func ParseArrival(payload []byte) (a Arrival, ok bool) {
	id, rest, found := strings.Cut(string(payload), arrivalPhrase)
	if !found || id == "" {
		return Arrival{}, false
	}
	return Arrival{DeviceID: id, CorrelationID: strings.TrimSpace(rest)}, true
}
