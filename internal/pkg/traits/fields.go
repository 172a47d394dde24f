package traits

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/go-openapi/swag"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// object is a trait payload with its field values left undecoded
type object map[string]json.RawMessage

func decodeObject(kind Kind, raw json.RawMessage) object {
	fields := object{}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fields
	}

	if err := json.Unmarshal(raw, &fields); err != nil {
		logging.Logger(nil).Debugf("Ignoring malformed %s trait payload: %s", kind.Name(), err)
		return object{}
	}

	return fields
}

// stringField returns the field if it is a JSON string, else ""
func (o object) stringField(key string) string {
	var s string
	if err := json.Unmarshal(o[key], &s); err != nil {
		return ""
	}
	return s
}

// stringOr returns the string field, or def when it is absent or empty
func (o object) stringOr(key, def string) string {
	if s := o.stringField(key); s != "" {
		return s
	}
	return def
}

// stringsField returns the field if it is an array of strings, else nil
func (o object) stringsField(key string) []string {
	var s []string
	if err := json.Unmarshal(o[key], &s); err != nil {
		return nil
	}
	return s
}

// numberField accepts a JSON number or a string holding a number.  Anything else,
// including a non-finite value, is nil.
func (o object) numberField(key string) *float64 {
	raw, ok := o[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}

		if v, err = swag.ConvertFloat64(s); err != nil {
			return nil
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return swag.Float64(v)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
