package traits

import (
	"context"
	"fmt"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

// ValidationError is returned by a mutator when the requested value is
// rejected before anything is sent to the API
type ValidationError struct {
	Trait  Kind
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s.%s %v: %s", e.Trait.Name(), e.Field, e.Value, e.Reason)
}

// Dispatcher sends a command on behalf of a trait mutator
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID string, cmd sdmapi.Command) (sdmapi.Result, error)
}

func validateMode(kind Kind, field string, mode string, allowed []string) error {
	if !contains(allowed, mode) {
		return &ValidationError{
			Trait:  kind,
			Field:  field,
			Value:  mode,
			Reason: fmt.Sprintf("must be one of %v", allowed),
		}
	}
	return nil
}
