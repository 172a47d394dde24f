package sdmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	apioption "google.golang.org/api/option"
	sdm "google.golang.org/api/smartdevicemanagement/v1"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/version"
)

// DefaultBaseURL is the SDM API endpoint
const DefaultBaseURL = "https://smartdevicemanagement.googleapis.com"

// Live talks to the SDM REST API.  Each call makes a single attempt, with a
// bearer token from the TokenProvider.
type Live struct {
	sdmProjectID string
	baseURL      string
	tokens       TokenProvider
	httpClient   *http.Client
	timeout      time.Duration
	limiter      *rate.Limiter
}

func NewLiveClient(sdmProjectID string, tokens TokenProvider) *Live {
	return &Live{
		sdmProjectID: sdmProjectID,
		baseURL:      DefaultBaseURL,
		tokens:       tokens,
		httpClient:   http.DefaultClient,
	}
}

func (c *Live) WithBaseURL(baseURL string) *Live {
	nc := *c
	nc.baseURL = baseURL
	return &nc
}

func (c *Live) WithTimeout(d time.Duration) *Live {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Live) WithHTTPClient(hc *http.Client) *Live {
	nc := *c
	nc.httpClient = hc
	return &nc
}

// WithRateLimit throttles requests to rps per second with the given burst,
// keeping the client under the per-project SDM quota.  rps <= 0 disables it.
func (c *Live) WithRateLimit(rps float64, burst int) *Live {
	nc := *c
	if rps <= 0 {
		nc.limiter = nil
		return &nc
	}

	if burst < 1 {
		burst = 1
	}
	nc.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return &nc
}

func (c *Live) ProjectID() string {
	return c.sdmProjectID
}

func (c *Live) MakeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, cancel
}

// limitedTransport waits for the rate limiter before each request
type limitedTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}

	return t.base.RoundTrip(req)
}

// client returns an HTTP client that authorizes every request with a token
// from the provider, throttled by the rate limiter if there is one
func (c *Live) client(ctx context.Context) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &oauth2.Transport{
		Source: newTokenSource(ctx, c.tokens),
		Base:   base,
	}
	if c.limiter != nil {
		rt = &limitedTransport{limiter: c.limiter, base: rt}
	}

	hc := *c.httpClient
	hc.Transport = rt
	return &hc
}

func (c *Live) api(ctx context.Context) (*sdm.Service, error) {
	s, err := sdm.NewService(ctx,
		apioption.WithHTTPClient(c.client(ctx)),
		apioption.WithEndpoint(strings.TrimSuffix(c.baseURL, "/")+"/"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating SDM service")
	}
	s.UserAgent = version.UserAgent()

	return s, nil
}

// classify maps API failures to *HTTPError and deadline failures to
// *TimeoutError, and wraps anything else
func (c *Live) classify(ctx context.Context, err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return errors.Wrap(newHTTPError(apiErr.Code, []byte(apiErr.Body)), op)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: c.timeout, err: err}
	}

	return errors.Wrap(err, op)
}

// undecodedResponse reports a 2xx response whose body the generated client
// could not decode, eg. an empty one.  Transport failures are never JSON
// errors.
func undecodedResponse(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (c *Live) parent() string {
	return "enterprises/" + c.sdmProjectID
}

func (c *Live) deviceName(deviceID string) string {
	return c.parent() + "/devices/" + deviceID
}

func toRawDevice(d *sdm.GoogleHomeEnterpriseSdmV1Device) (RawDevice, error) {
	device := RawDevice{
		Name: d.Name,
		Type: d.Type,
	}

	if len(d.Traits) > 0 {
		if err := json.Unmarshal(d.Traits, &device.Traits); err != nil {
			return device, errors.Wrapf(err, "decoding traits of %s", d.Name)
		}
	}

	for _, p := range d.ParentRelations {
		if p == nil {
			continue
		}
		device.ParentRelations = append(device.ParentRelations, ParentRelation{
			Parent:      p.Parent,
			DisplayName: p.DisplayName,
		})
	}

	return device, nil
}

// Devices lists every device the user granted the project access to
func (c *Live) Devices(ctx context.Context) ([]RawDevice, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	s, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.Enterprises.Devices.List(c.parent()).Context(ctx).Do()
	if err != nil {
		return nil, c.classify(ctx, err, "listing devices")
	}

	devices := make([]RawDevice, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		if d == nil {
			continue
		}
		device, err := toRawDevice(d)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// GetDevice fetches the current snapshot of one device
func (c *Live) GetDevice(ctx context.Context, deviceID string) (*RawDevice, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	s, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	d, err := s.Enterprises.Devices.Get(c.deviceName(deviceID)).Context(ctx).Do()
	if err != nil {
		return nil, c.classify(ctx, err, "fetching device details")
	}

	device, err := toRawDevice(d)
	if err != nil {
		return nil, err
	}

	return &device, nil
}

// ExecuteCommand sends command to a device.  Only the status matters, the
// response body is ignored.
func (c *Live) ExecuteCommand(ctx context.Context, deviceID string, command Command) error {
	params, err := json.Marshal(command)
	if err != nil {
		return errors.Wrapf(err, "encoding params of %s", command.Name())
	}

	logging.Logger(ctx).Debugf("sending command: %s, params %s", command.Name(), params)

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	s, err := c.api(ctx)
	if err != nil {
		return err
	}

	cmdRequest := &sdm.GoogleHomeEnterpriseSdmV1ExecuteDeviceCommandRequest{
		Command: command.Name(),
		Params:  googleapi.RawMessage(params),
	}

	_, err = s.Enterprises.Devices.ExecuteCommand(c.deviceName(deviceID), cmdRequest).Context(ctx).Do()
	if err != nil && !undecodedResponse(err) {
		return c.classify(ctx, err, "executing command "+command.Name())
	}

	return nil
}

// Do sends a JSON request to path (relative to the API base URL) through the
// same authorized client and returns the raw JSON response.  It covers calls
// the generated SDM service does not.  A non-2xx response fails with
// *HTTPError.
func (c *Live) Do(ctx context.Context, method string, path string, body interface{}) (json.RawMessage, error) {
	ctxLogger := logging.Logger(ctx)
	op := method + " " + path

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		ctxLogger.Debugf("%s: request body %s", op, b)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.baseURL, "/")+path, reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, "building request %s", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client(ctx).Do(req)
	if err != nil {
		return nil, c.classify(ctx, err, op)
	}
	defer googleapi.CloseBody(resp)

	ctxLogger.Debugf("%s: HTTP %d", op, resp.StatusCode)

	if err := googleapi.CheckResponse(resp); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, newHTTPError(apiErr.Code, []byte(apiErr.Body))
		}
		return nil, errors.Wrap(err, op)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, err, "reading response body")
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage("{}"), nil
	}

	return json.RawMessage(respBody), nil
}
