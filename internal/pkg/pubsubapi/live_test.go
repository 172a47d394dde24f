package pubsubapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	acked    []string
}

func (f *fakeSubscription) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/projects/gcp-project/subscriptions/sdm-events:pull":
			assert.Equal(t, http.MethodPost, r.Method)
			var req map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.EqualValues(t, 10, req["maxMessages"])

			assert.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"receivedMessages": f.messages}))

		case "/v1/projects/gcp-project/subscriptions/sdm-events:acknowledge":
			var req struct {
				AckIds []string `json:"ackIds"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.acked = append(f.acked, req.AckIds...)
			_, _ = w.Write([]byte(`{}`))

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func message(ackID string, published time.Time, data string) map[string]interface{} {
	return map[string]interface{}{
		"ackId": ackID,
		"message": map[string]interface{}{
			"messageId":   "m-" + ackID,
			"data":        base64.StdEncoding.EncodeToString([]byte(data)),
			"publishTime": published.Format(time.RFC3339Nano),
		},
	}
}

const modeUpdate = `{
	"eventId": "0120ecc7-3b57-4eb4-9941-91609f189fb4",
	"timestamp": "2019-01-01T00:00:01Z",
	"resourceUpdate": {
		"name": "enterprises/project-id/devices/device-1",
		"traits": {
			"sdm.devices.traits.ThermostatMode": {"mode": "COOL"},
			"sdm.devices.traits.Connectivity": {"status": "ONLINE"}
		}
	},
	"userId": "AVPHwEuBfnPOnTqzVFT4IONX2Qqhu9EJ4ubO-bNnQ-yi"
}`

func newTestClient(t *testing.T, f *fakeSubscription, now time.Time) *Live {
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	c := NewLiveClient("gcp-project", "sdm-events").
		WithEndpoint(server.URL+"/", server.Client()).
		WithTimeout(5 * time.Second).
		WithLogMessages()
	c.now = func() time.Time { return now }

	return c
}

func TestPull(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	f := &fakeSubscription{
		messages: []map[string]interface{}{
			message("fresh", now.Add(-10*time.Second), modeUpdate),
			message("stale", now.Add(-time.Hour), modeUpdate),
			message("relation", now, `{"eventId": "x", "relationUpdate": {"type": "CREATED"}}`),
			message("garbage", now, `not json`),
		},
	}

	c := newTestClient(t, f, now)

	events, err := c.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "fresh", ev.AckID)
	assert.Equal(t, "0120ecc7-3b57-4eb4-9941-91609f189fb4", ev.EventID)
	assert.Equal(t, "device-1", ev.DeviceID)
	assert.True(t, ev.Timestamp.Equal(time.Date(2019, 1, 1, 0, 0, 1, 0, time.UTC)))
	assert.Equal(t, []string{"sdm.devices.traits.Connectivity", "sdm.devices.traits.ThermostatMode"}, ev.TraitKeys)
	assert.JSONEq(t, `{"mode": "COOL"}`, string(ev.Traits["sdm.devices.traits.ThermostatMode"]))

	// dropped messages are acked, unparseable ones are left for redelivery
	f.mu.Lock()
	assert.ElementsMatch(t, []string{"stale", "relation"}, f.acked)
	f.mu.Unlock()
}

func TestPullMaxMessageAge(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeSubscription{
		messages: []map[string]interface{}{
			message("old", now.Add(-time.Hour), modeUpdate),
		},
	}

	c := newTestClient(t, f, now).WithMaxMessageAge(2 * time.Hour)

	events, err := c.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAckMessages(t *testing.T) {
	f := &fakeSubscription{}
	c := newTestClient(t, f, time.Now())

	require.NoError(t, c.AckMessages(context.Background(), nil))
	require.NoError(t, c.AckMessages(context.Background(), []string{"a", "b"}))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, f.acked)
}

func TestPullError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "denied", "status": "PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	c := NewLiveClient("gcp-project", "sdm-events").WithEndpoint(server.URL+"/", server.Client())

	_, err := c.Pull(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pulling messages")
}
