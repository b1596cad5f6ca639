package testutils

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/saviobatista/vessel-tracker/internal/types"
)

// ErrConditionTimeout is returned by WaitForCondition when time runs out
var ErrConditionTimeout = errors.New("timeout waiting for condition")

// MockTelemetryMessage wraps fields as a JSON payload received from source
func MockTelemetryMessage(source string, fields map[string]any) *types.TelemetryMessage {
	payload, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return &types.TelemetryMessage{
		Payload:    payload,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
	}
}

// MockSample returns a complete telemetry sample body
func MockSample(lat, lon, bat1, bat2 float64, sos bool) map[string]any {
	return map[string]any{
		types.FieldLatitude:           lat,
		types.FieldLongitude:          lon,
		types.FieldLightBattery:       bat1,
		types.FieldTransmitterBattery: bat2,
		types.FieldSOS:                sos,
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrConditionTimeout
		case <-ticker.C:
		}
	}
}
