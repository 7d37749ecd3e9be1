package service

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/twpayne/go-kml"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

const (
	KMLNamespace   = kml.Namespace
	KMLContentType = "application/vnd.google-earth.kml+xml"
)

var _ kml.Element = (*groundCoordinates)(nil)

// groundCoordinates always writes the altitude, which kml.Coordinates omits
// when it is zero.
type groundCoordinates struct {
	lon, lat float64
}

func (c *groundCoordinates) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: "coordinates"}}
	value := domain.FormatCoord(c.lon) + "," + domain.FormatCoord(c.lat) + ",0"
	return e.EncodeElement(value, start)
}

func (c *groundCoordinates) Write(w io.Writer) error {
	return c.WriteIndent(w, "", "")
}

func (c *groundCoordinates) WriteIndent(w io.Writer, prefix, indent string) error {
	e := xml.NewEncoder(w)
	e.Indent(prefix, indent)
	return e.Encode(c)
}

// GeoExporter renders records as a KML 2.2 document.
type GeoExporter struct{}

func NewGeoExporter() *GeoExporter {
	return &GeoExporter{}
}

// ExportKML writes one Placemark per record, in order. A placemark is named
// after the record's device id, or its index when the record has none.
// Coordinates are written as "<lon>,<lat>,0" without range checks.
func (e *GeoExporter) ExportKML(records []domain.Record) ([]byte, error) {
	placemarks := make([]kml.Element, 0, len(records))
	for i, rec := range records {
		name := rec.DeviceID()
		if name == "" {
			name = strconv.Itoa(i)
		}
		placemarks = append(placemarks, kml.Placemark(
			kml.Name(name),
			kml.Point(&groundCoordinates{lon: rec.Lon(), lat: rec.Lat()}),
		))
	}

	var buf bytes.Buffer
	if err := kml.KML(kml.Document(placemarks...)).WriteIndent(&buf, "", "  "); err != nil {
		return nil, fmt.Errorf("encode kml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
