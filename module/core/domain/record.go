package domain

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// RecordShape selects which payload layout a deployment parses.
type RecordShape string

const (
	ShapeTelemetry RecordShape = "telemetry"
	ShapePosition  RecordShape = "position"
)

// CoordOrder is the element order of a telemetry gps.coordinates pair.
type CoordOrder string

const (
	OrderLonLat CoordOrder = "lonlat"
	OrderLatLon CoordOrder = "latlon"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrMissingField = errors.New("missing required field")
	ErrUnknownShape = errors.New("unknown record shape")
	ErrUnknownOrder = errors.New("unknown coordinate order")
)

// Record is the read view shared by both payload shapes.
type Record interface {
	// DeviceID is empty when the payload carries no device identifier.
	DeviceID() string
	Lat() float64
	Lon() float64
}

type GPS struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// TelemetryRecord is the "sensor" topic payload.
type TelemetryRecord struct {
	GPS  GPS     `json:"gps"`
	Wind float64 `json:"wind"`
	Temp float64 `json:"temp"`

	order CoordOrder
}

func (r *TelemetryRecord) DeviceID() string { return "" }

func (r *TelemetryRecord) Lat() float64 {
	if r.order == OrderLatLon {
		return r.GPS.Coordinates[0]
	}
	return r.GPS.Coordinates[1]
}

func (r *TelemetryRecord) Lon() float64 {
	if r.order == OrderLatLon {
		return r.GPS.Coordinates[1]
	}
	return r.GPS.Coordinates[0]
}

// PositionRecord is the "positions" topic payload.
type PositionRecord struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (r *PositionRecord) DeviceID() string { return r.ID }
func (r *PositionRecord) Lat() float64     { return r.Latitude }
func (r *PositionRecord) Lon() float64     { return r.Longitude }

type telemetryPayload struct {
	GPS *struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"gps"`
	Wind        *float64 `json:"wind"`
	Temp        *float64 `json:"temp"`
	Temperature *float64 `json:"temperature"`
}

type positionPayload struct {
	ID        string   `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ParseTelemetry decodes a telemetry payload. gps.coordinates must hold at
// least two values; wind and temperature default to zero when absent.
func ParseTelemetry(payload []byte, order CoordOrder) (*TelemetryRecord, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	var raw telemetryPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}
	if raw.GPS == nil {
		return nil, fmt.Errorf("gps: %w", ErrMissingField)
	}
	if len(raw.GPS.Coordinates) < 2 {
		return nil, fmt.Errorf("gps.coordinates: %w", ErrMissingField)
	}

	rec := &TelemetryRecord{
		GPS: GPS{
			Type:        raw.GPS.Type,
			Coordinates: append([]float64(nil), raw.GPS.Coordinates[:2]...),
		},
		order: order,
	}
	if raw.Wind != nil {
		rec.Wind = *raw.Wind
	}
	switch {
	case raw.Temp != nil:
		rec.Temp = *raw.Temp
	case raw.Temperature != nil:
		rec.Temp = *raw.Temperature
	}
	return rec, nil
}

// ParsePosition decodes a position payload. The id may be empty.
func ParsePosition(payload []byte) (*PositionRecord, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	var raw positionPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	if raw.Latitude == nil {
		return nil, fmt.Errorf("latitude: %w", ErrMissingField)
	}
	if raw.Longitude == nil {
		return nil, fmt.Errorf("longitude: %w", ErrMissingField)
	}
	return &PositionRecord{ID: raw.ID, Latitude: *raw.Latitude, Longitude: *raw.Longitude}, nil
}

// RecordParser turns a raw payload into a Record.
type RecordParser func(payload []byte) (Record, error)

// NewRecordParser returns the parser for shape.
func NewRecordParser(shape RecordShape, order CoordOrder) (RecordParser, error) {
	switch order {
	case OrderLonLat, OrderLatLon:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrder, order)
	}
	switch shape {
	case ShapeTelemetry:
		return func(payload []byte) (Record, error) {
			return ParseTelemetry(payload, order)
		}, nil
	case ShapePosition:
		return func(payload []byte) (Record, error) {
			return ParsePosition(payload)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownShape, shape)
}

// FormatCoord renders a coordinate with the shortest exact representation.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
