// Package parser turns raw device payloads into telemetry samples.
//
// The reporting device is an embedded board on an unreliable link, so
// parsing is lenient: a field of the wrong type is treated as absent rather
// than rejected.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// Raw payload keys sent by the device
const (
	KeyLatitude           = "lat"
	KeyLongitude          = "lon"
	KeyLightBattery       = "bat1"
	KeyTransmitterBattery = "bat2"
	KeySOS                = "sos"
)

// ErrInvalidBody is returned when a request body cannot be decoded at all
var ErrInvalidBody = errors.New("invalid request body")

// ParseSample normalizes a raw payload into a telemetry sample. Numeric
// fields keep their value only when it is a number; sos is active only for
// the number 1 or the string "1". RecordedAt is left for the store to stamp.
func ParseSample(raw map[string]any) *types.TelemetrySample {
	return &types.TelemetrySample{
		Latitude:              number(raw[KeyLatitude]),
		Longitude:             number(raw[KeyLongitude]),
		LightBatteryPct:       number(raw[KeyLightBattery]),
		TransmitterBatteryPct: number(raw[KeyTransmitterBattery]),
		SOSActive:             sos(raw[KeySOS]),
	}
}

// ParseBody decodes an upload body into a raw payload map. JSON objects and
// form-encoded bodies are supported; valid JSON that is not an object yields
// an empty payload.
func ParseBody(contentType string, body []byte) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		raw := make(map[string]any, len(values))
		for key := range values {
			raw[key] = values.Get(key)
		}
		return raw, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	raw, ok := decoded.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return raw, nil
}

// number returns v as a float when it holds a numeric kind
func number(v any) *float64 {
	if v == nil {
		return nil
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

// sos reports whether v is the number 1 or the string "1"
func sos(v any) bool {
	if s, ok := v.(string); ok {
		return s == "1"
	}
	if f := number(v); f != nil {
		return *f == 1
	}
	return false
}
