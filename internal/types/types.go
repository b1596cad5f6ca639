package types

import (
	"reflect"
	"time"

	"github.com/saviobatista/vessel-tracker/internal/store"
)

// Document field names shared by the snapshot and its history entries
const (
	FieldLatitude           = "lat"
	FieldLongitude          = "lon"
	FieldLightBattery       = "bat1"
	FieldTransmitterBattery = "bat2"
	FieldSOS                = "sos"
	FieldUpdatedAt          = "updatedAt"
	FieldCreatedAt          = store.CreatedAtField
	HistorySubcollection    = "history"
	VesselCollection        = "boats"
)

// TelemetrySample represents a single reading reported by the vessel
type TelemetrySample struct {
	Latitude              *float64   `json:"lat"`
	Longitude             *float64   `json:"lon"`
	LightBatteryPct       *float64   `json:"bat1"`
	TransmitterBatteryPct *float64   `json:"bat2"`
	SOSActive             bool       `json:"sos"`
	RecordedAt            *time.Time `json:"recorded_at,omitempty"`
}

// HasLocation reports whether both coordinates are present
func (s *TelemetrySample) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// SOSFlag returns the SOS state as the integer 0 or 1
func (s *TelemetrySample) SOSFlag() int {
	if s.SOSActive {
		return 1
	}
	return 0
}

// Fields converts the sample into document fields. Every field is present;
// absent readings are written as nil.
func (s *TelemetrySample) Fields() store.Fields {
	return store.Fields{
		FieldLatitude:           floatOrNil(s.Latitude),
		FieldLongitude:          floatOrNil(s.Longitude),
		FieldLightBattery:       floatOrNil(s.LightBatteryPct),
		FieldTransmitterBattery: floatOrNil(s.TransmitterBatteryPct),
		FieldSOS:                s.SOSFlag(),
	}
}

// SampleFromFields rebuilds a sample from stored document fields. stampField
// names the field holding the write timestamp.
func SampleFromFields(fields store.Fields, stampField string) *TelemetrySample {
	sample := &TelemetrySample{
		Latitude:              numberField(fields[FieldLatitude]),
		Longitude:             numberField(fields[FieldLongitude]),
		LightBatteryPct:       numberField(fields[FieldLightBattery]),
		TransmitterBatteryPct: numberField(fields[FieldTransmitterBattery]),
		SOSActive:             sosField(fields[FieldSOS]),
	}
	if ts, ok := timeField(fields[stampField]); ok {
		sample.RecordedAt = &ts
	}
	return sample
}

// SnapshotView is the latest state served to the polling client
type SnapshotView struct {
	HasLocation bool       `json:"hasLocation"`
	Lat         *float64   `json:"lat"`
	Lon         *float64   `json:"lon"`
	Bat1        *float64   `json:"bat1"`
	Bat2        *float64   `json:"bat2"`
	SOS         int        `json:"sos"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

// EmptySnapshotView is the view of a vessel that has never reported
func EmptySnapshotView() *SnapshotView {
	return &SnapshotView{}
}

// NewSnapshotView derives the client view of a stored snapshot. Coordinates
// are only reported when both are present.
func NewSnapshotView(s *TelemetrySample) *SnapshotView {
	view := &SnapshotView{
		HasLocation: s.HasLocation(),
		Bat1:        s.LightBatteryPct,
		Bat2:        s.TransmitterBatteryPct,
		SOS:         s.SOSFlag(),
		UpdatedAt:   s.RecordedAt,
	}
	if view.HasLocation {
		view.Lat = s.Latitude
		view.Lon = s.Longitude
	}
	return view
}

// HistoryEntry is one row of the history table. Coordinates are passed
// through as stored, so either may be null independently.
type HistoryEntry struct {
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
	Bat1      *float64   `json:"bat1"`
	Bat2      *float64   `json:"bat2"`
	SOS       int        `json:"sos"`
	CreatedAt *time.Time `json:"createdAt"`
}

// NewHistoryEntry converts a stored history sample into its client form
func NewHistoryEntry(s *TelemetrySample) HistoryEntry {
	return HistoryEntry{
		Lat:       s.Latitude,
		Lon:       s.Longitude,
		Bat1:      s.LightBatteryPct,
		Bat2:      s.TransmitterBatteryPct,
		SOS:       s.SOSFlag(),
		CreatedAt: s.RecordedAt,
	}
}

// HistoryPage is the response body of the history endpoint
type HistoryPage struct {
	Items []HistoryEntry `json:"items"`
}

// TelemetryMessage carries a raw device payload over the message bus
type TelemetryMessage struct {
	Payload    []byte    `json:"payload"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// VesselKey returns the document key of a vessel snapshot
func VesselKey(vesselID string) string {
	return VesselCollection + "/" + vesselID
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// numberField accepts any numeric kind and json.Number
func numberField(v any) *float64 {
	if v == nil {
		return nil
	}
	if n, ok := v.(interface{ Float64() (float64, error) }); ok {
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	}

	var f float64
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(rv.Uint())
	default:
		return nil
	}
	return &f
}

func sosField(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "1"
	}
	if f := numberField(v); f != nil {
		return *f == 1
	}
	return false
}

func timeField(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		return store.ParseTimestamp(val)
	}
	return time.Time{}, false
}
