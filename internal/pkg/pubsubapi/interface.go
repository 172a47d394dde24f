package pubsubapi

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a device resource update received from the SDM event subscription
type Event struct {
	AckID     string
	EventID   string
	DeviceID  string
	Timestamp time.Time
	// TraitKeys lists the domain keys of the traits that changed
	TraitKeys []string
	// Traits holds the new payload of each changed trait, by domain key
	Traits map[string]json.RawMessage
}

type PubSub interface {
	Pull(ctx context.Context) ([]Event, error)
	AckMessages(ctx context.Context, ackIDs []string) error
}
