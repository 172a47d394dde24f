package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/googleapi"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/pubsubapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

var _watchCmdOpts struct {
	googlePubSubSubscription string
	googlePubSubProjectID    string
	googleCloudCredsFile     string
	maxMessageAge            time.Duration
	concurrency              int
	logMessages              bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow SDM device events and keep thermostat views up to date",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doWatch()
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIFlags(); err != nil {
			return err
		}
		return checkRequiredFlags("google.pubsub.project-id", "google.pubsub.subscription-id", "google.creds.file")
	},
}

func init() {
	watchCmd.Flags().StringVar(&_watchCmdOpts.googlePubSubProjectID, "pubsub-project", "", "ID of Google cloud project containing the pub/sub subscription")
	watchCmd.Flags().StringVar(&_watchCmdOpts.googlePubSubSubscription, "pubsub-subscription", "", "Google pub/sub subscription ID")
	watchCmd.Flags().StringVar(&_watchCmdOpts.googleCloudCredsFile, "gcp-creds", "", "Google Cloud service account credentials file")
	watchCmd.Flags().DurationVar(&_watchCmdOpts.maxMessageAge, "pubsub-maxage", time.Second*1200, "maximum age of a Device Access message that we will process, eg. 1m or 10s")
	watchCmd.Flags().IntVar(&_watchCmdOpts.concurrency, "concurrency", 10, "maximum number of events handled at once")
	watchCmd.Flags().BoolVar(&_watchCmdOpts.logMessages, "log-messages", false, "log pubsub messages (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("google.pubsub.project-id", watchCmd.Flags().Lookup("pubsub-project")))
	errPanic(viper.GetViper().BindPFlag("google.pubsub.subscription-id", watchCmd.Flags().Lookup("pubsub-subscription")))
	errPanic(viper.GetViper().BindPFlag("google.pubsub.max-message-age", watchCmd.Flags().Lookup("pubsub-maxage")))
	errPanic(viper.GetViper().BindPFlag("google.pubsub.concurrency", watchCmd.Flags().Lookup("concurrency")))
	errPanic(viper.GetViper().BindPFlag("google.creds.file", watchCmd.Flags().Lookup("gcp-creds")))
	errPanic(viper.GetViper().BindPFlag("logging.log-messages", watchCmd.Flags().Lookup("log-messages")))

	addServerFlags(watchCmd)

	rootCmd.AddCommand(watchCmd)
}

// fatalPullError reports errors that retrying will not fix, such as a
// missing subscription or a service account without access to it
func fatalPullError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}

	return false
}

func pullLoop(ctx context.Context, pubsub pubsubapi.PubSub, c chan<- pubsubapi.Event) error {
	defer close(c)

	for {
		logging.Logger(nil).Debug("message-loop: waiting for messages")
		events, err := pubsub.Pull(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logging.Logger(nil).Info("message-loop: shutting down")
				return nil
			}

			if fatalPullError(err) {
				logging.Logger(nil).WithError(err).Error("message-loop: giving up")
				return err
			}

			logging.Logger(nil).WithError(err).Error("message-loop: pulling subscription messages, sleeping 5s")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second * 5):
			}
			continue
		}

		for _, event := range events {
			// Catch shutdown and don't block waiting for a busy handler
			select {
			case <-ctx.Done():
				logging.Logger(nil).Info("message-loop: shutting down")
				return nil
			case c <- event:
			}
		}
	}
}

// eventHandler refreshes thermostat views in response to device events
type eventHandler struct {
	pubsub   pubsubapi.PubSub
	registry *thermostat.Registry
	getter   sdmapi.DeviceGetter
}

func (h *eventHandler) loop(maxConcurrent int, c <-chan pubsubapi.Event) {
	limit := limiter.NewConcurrencyLimiter(maxConcurrent)

	for event := range c {
		event := event
		limit.ExecuteWithTicket(func(ticket int) {
			h.handle(ticket, event)
		})
	}

	logging.Logger(nil).Info("event-loop: shutting down")
	limit.Wait()
	logging.Logger(nil).Info("event-loop: done")
}

// changedTraits describes each changed trait with its new payload, eg.
// ThermostatMode={"mode":"COOL"}.  Traits the view does not decode are
// marked as ignored.
func changedTraits(event pubsubapi.Event) []string {
	changes := make([]string, 0, len(event.TraitKeys))
	for _, key := range event.TraitKeys {
		kind, ok := traits.ParseKind(key)
		if !ok {
			changes = append(changes, key+" (ignored)")
			continue
		}
		changes = append(changes, fmt.Sprintf("%s=%s", kind.Name(), event.Traits[key]))
	}

	return changes
}

// handle refreshes the whole view of the event's device, then acknowledges
// the event.  Failed refreshes are left unacknowledged for redelivery.
func (h *eventHandler) handle(ticket int, event pubsubapi.Event) {
	ctx := logging.WithRequestID(context.Background(), event.EventID)
	ctxLogger := logging.Logger(ctx).WithField("device", event.DeviceID)

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		ctxLogger.Debugf("event-goroutine %d: traits changed: %v", ticket, changedTraits(event))
	}

	err := h.registry.Update(ctx, event.DeviceID, h.getter)

	var typeErr *thermostat.DeviceTypeError
	switch {
	case err == nil:
		ctxLogger.Info("Thermostat view refreshed")
	case errors.As(err, &typeErr):
		ctxLogger.Debugf("Ignoring event for %s", typeErr.Type)
	default:
		ctxLogger.WithError(err).Error("refreshing thermostat view")
		return
	}

	if err := h.pubsub.AckMessages(ctx, []string{event.AckID}); err != nil {
		ctxLogger.WithError(err).Error("acknowledging event")
	}

	ctxLogger.Debugf("event-goroutine %d: done", ticket)
}

func doWatch() error {
	maxAge := viper.GetDuration("google.pubsub.max-message-age")
	gcpProject := viper.GetString("google.pubsub.project-id")
	subscription := viper.GetString("google.pubsub.subscription-id")
	credsFile := viper.GetString("google.creds.file")
	concurrency := viper.GetInt("google.pubsub.concurrency")

	var logMessages bool
	if viper.GetBool("logging.log-messages") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logMessages = true
		} else {
			logging.Logger(nil).Warn("log-messages ignored when not in debug mode")
		}
	}

	_, client, err := newAPIClient()
	if err != nil {
		return err
	}

	registry := thermostat.NewRegistry()
	if _, err := registry.Load(commandContext(), client); err != nil {
		return err
	}

	pubsub := pubsubapi.NewLiveClient(gcpProject, subscription).
		WithMaxMessageAge(maxAge).
		WithServiceAccountCreds(credsFile)
	if logMessages {
		pubsub = pubsub.WithLogMessages()
	}

	// context to allow us to stop the loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// comms between pull and event loops
	eventChan := make(chan pubsubapi.Event)

	handler := &eventHandler{
		pubsub:   pubsub,
		registry: registry,
		getter:   client,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.loop(concurrency, eventChan)
	}()

	pullErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pullErr <- pullLoop(ctx, pubsub, eventChan)
	}()

	if viper.GetString("server.listen") != "" {
		s := newStatusServer(registry, client)

		wg.Add(1)
		go func() {
			defer wg.Done()
			runStatusServer(ctx, s)
		}()
	}

	// ctrl-c handler
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)

	var result error
	select {
	case <-c:
		logging.Logger(nil).Info("main: shutting down")
	case result = <-pullErr:
		logging.Logger(nil).Info("main: event pull stopped")
	}

	cancel()
	wg.Wait()

	logging.Logger(nil).Info("main: exiting")
	return result
}
