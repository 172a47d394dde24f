package pubsubapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	apioption "google.golang.org/api/option"
	pubsubv1 "google.golang.org/api/pubsub/v1"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

const (
	defaultMaxMessageAge = time.Second * 120
	maxPullMessages      = 10
)

// Live pulls SDM device events from a Cloud Pub/Sub subscription
type Live struct {
	gcpProjectID   string
	subscriptionID string
	credsFile      string
	endpoint       string
	httpClient     *http.Client
	timeout        time.Duration
	maxMessageAge  time.Duration
	logMessages    bool
	now            func() time.Time
}

func NewLiveClient(gcpProjectID string, subscriptionID string) *Live {
	return &Live{
		gcpProjectID:   gcpProjectID,
		subscriptionID: subscriptionID,
		maxMessageAge:  defaultMaxMessageAge,
		now:            time.Now,
	}
}

func (c *Live) WithServiceAccountCreds(credsFile string) *Live {
	nc := *c
	nc.credsFile = credsFile
	return &nc
}

func (c *Live) WithTimeout(d time.Duration) *Live {
	nc := *c
	nc.timeout = d
	return &nc
}

// WithEndpoint overrides the Pub/Sub API endpoint.  Requests go through
// httpClient, which must supply any credentials itself.
func (c *Live) WithEndpoint(endpoint string, httpClient *http.Client) *Live {
	nc := *c
	nc.endpoint = endpoint
	nc.httpClient = httpClient
	return &nc
}

func (c *Live) WithMaxMessageAge(d time.Duration) *Live {
	nc := *c
	if d > 0 {
		nc.maxMessageAge = d
	}
	return &nc
}

func (c *Live) WithLogMessages() *Live {
	nc := *c
	nc.logMessages = true
	return &nc
}

func (c *Live) api(ctx context.Context) (*pubsubv1.Service, error) {
	var opts []apioption.ClientOption

	if c.endpoint != "" {
		opts = append(opts, apioption.WithEndpoint(c.endpoint))
	}
	if c.httpClient != nil {
		opts = append(opts, apioption.WithHTTPClient(c.httpClient))
	} else if c.credsFile != "" {
		opts = append(opts, apioption.WithCredentialsFile(c.credsFile))
	}

	pubsub, err := pubsubv1.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return pubsub, nil
}

func (c *Live) MakeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, cancel
}

func (c *Live) subscription() string {
	return "projects/" + c.gcpProjectID + "/subscriptions/" + c.subscriptionID
}

/*
  Message format for resource updates:

{
	"eventId" : "0120ecc7-3b57-4eb4-9941-91609f189fb4",
	"timestamp" : "2019-01-01T00:00:01Z",
	"resourceUpdate" : {
	  "name" : "enterprises/project-id/devices/device-id",
	  "traits" : {
		"sdm.devices.traits.ThermostatMode" : {
		  "mode" : "COOL"
		}
	  }
	},
	"userId": "AVPHwEuBfnPOnTqzVFT4IONX2Qqhu9EJ4ubO-bNnQ-yi"
}
*/

type sdmResourceUpdate struct {
	Name   string                     `json:"name"`
	Traits map[string]json.RawMessage `json:"traits"`
}

type sdmEvent struct {
	EventID        string             `json:"eventId"`
	Timestamp      time.Time          `json:"timestamp"`
	ResourceUpdate *sdmResourceUpdate `json:"resourceUpdate,omitempty"`
	UserID         string             `json:"userId"`
}

func (c *Live) AckMessages(ctx context.Context, ackIDs []string) error {
	if len(ackIDs) == 0 {
		return nil
	}

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	s, err := c.api(ctx)
	if err != nil {
		return errors.Wrap(err, "initialising the api")
	}

	ackRequest := pubsubv1.AcknowledgeRequest{
		AckIds: ackIDs,
	}

	_, err = s.Projects.Subscriptions.Acknowledge(c.subscription(), &ackRequest).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "executing acknowledge call")
	}

	logging.Logger(ctx).Debugf("sent ACK %v", ackIDs)

	return nil
}

// parseReceivedMessages returns the device events in messages, plus the ack
// IDs of messages that are dropped without processing
func (c *Live) parseReceivedMessages(ctx context.Context, messages []*pubsubv1.ReceivedMessage) (toAck []string, events []Event) {
	ctxLogger := logging.Logger(ctx)

	for _, message := range messages {
		if message.Message == nil {
			continue
		}
		msgLogger := ctxLogger.WithField("message", message.Message.MessageId)
		msgLogger.Infof("pubsub message: delivery attempt %d", message.DeliveryAttempt)

		// event data is base64 encoded
		data, err := base64.StdEncoding.DecodeString(message.Message.Data)
		if err != nil {
			msgLogger.WithError(err).Error("decoding base64-encoded data field")
			continue
		}
		if c.logMessages {
			msgLogger.Debugf("message data: %s", data)
		}

		publishTime, err := time.Parse(time.RFC3339Nano, message.Message.PublishTime)
		if err != nil {
			msgLogger.WithError(err).Warnf("parsing message publish time (`%s`)", message.Message.PublishTime)
		} else if c.now().After(publishTime.Add(c.maxMessageAge)) {
			msgLogger.Warnf("ignoring message, older than %s (%s)", c.maxMessageAge, publishTime)
			toAck = append(toAck, message.AckId)
			continue
		}

		event := sdmEvent{}
		if err := json.Unmarshal(data, &event); err != nil {
			msgLogger.WithError(err).Error("parsing SDM event")
			continue
		}

		if event.ResourceUpdate == nil || event.ResourceUpdate.Name == "" {
			msgLogger.Warnf("ignoring message, not a resource update (%s)", data)
			toAck = append(toAck, message.AckId)
			continue
		}

		keys := make([]string, 0, len(event.ResourceUpdate.Traits))
		for k := range event.ResourceUpdate.Traits {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		events = append(events, Event{
			AckID:     message.AckId,
			EventID:   event.EventID,
			DeviceID:  sdmapi.DeviceIDFromName(event.ResourceUpdate.Name),
			Timestamp: event.Timestamp,
			TraitKeys: keys,
			Traits:    event.ResourceUpdate.Traits,
		})
	}

	return
}

// Pull fetches up to 10 messages from the subscription.  Stale messages and
// messages that are not resource updates are acknowledged and dropped; the
// caller acknowledges the returned events once they are handled.
func (c *Live) Pull(ctx context.Context) ([]Event, error) {
	pullCtx, cancel := c.MakeContext(ctx)
	defer cancel()

	s, err := c.api(pullCtx)
	if err != nil {
		return nil, errors.Wrap(err, "initialising the api")
	}

	pullRequest := pubsubv1.PullRequest{
		MaxMessages: maxPullMessages,
	}

	response, err := s.Projects.Subscriptions.Pull(c.subscription(), &pullRequest).Context(pullCtx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "pulling messages from topic subscription")
	}

	messagesToAck, events := c.parseReceivedMessages(ctx, response.ReceivedMessages)

	// Ack messages we declined to process
	if len(messagesToAck) > 0 {
		if err := c.AckMessages(ctx, messagesToAck); err != nil {
			logging.Logger(ctx).WithError(err).Warnf("acknowledging %d dropped messages", len(messagesToAck))
		}
	}

	return events, nil
}
