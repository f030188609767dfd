package scout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for robot calls.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of attempts per call.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 100 * time.Millisecond

	// maxResponseBytes limits response bodies to 1 MB.
	maxResponseBytes = 1 << 20
)

// Lokarria endpoints
const (
	pathLocalization      = "/lokarria/localization"
	pathLaserProperties   = "/lokarria/laser/properties"
	pathLaserEchoes       = "/lokarria/laser/echoes"
	pathDifferentialDrive = "/lokarria/differentialdrive"
)

type vector3 struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type quaternion struct {
	W float64 `json:"W"`
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

type localizationResponse struct {
	Pose struct {
		Orientation quaternion `json:"Orientation"`
		Position    vector3    `json:"Position"`
	} `json:"Pose"`
	Timestamp int64 `json:"Timestamp"`
}

type echoesResponse struct {
	Echoes    []float64 `json:"Echoes"`
	Timestamp int64     `json:"Timestamp"`
}

type driveRequest struct {
	TargetAngularSpeed float64 `json:"TargetAngularSpeed"`
	TargetLinearSpeed  float64 `json:"TargetLinearSpeed"`
}

// FetchOption configures a LokarriaClient.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts per call.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// LokarriaClient talks to a robot server over the Lokarria HTTP API. It is
// both a RobotSource and a Driver.
type LokarriaClient struct {
	baseURL string
	cfg     fetchConfig
	client  *http.Client

	mu    sync.Mutex
	laser *LaserProperties
}

// NewLokarriaClient creates a client for the server at baseURL,
// e.g. "http://localhost:50000".
func NewLokarriaClient(baseURL string, opts ...FetchOption) (*LokarriaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("robot client: API URL is empty")
	}
	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	return &LokarriaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		client:  client,
	}, nil
}

// Pose returns the robot pose with the orientation quaternion reduced to a heading.
func (c *LokarriaClient) Pose(ctx context.Context) (Pose, error) {
	var resp localizationResponse
	if err := c.getJSON(ctx, pathLocalization, &resp); err != nil {
		return Pose{}, err
	}
	q := resp.Pose.Orientation
	return Pose{
		X:       resp.Pose.Position.X,
		Y:       resp.Pose.Position.Y,
		Heading: QuaternionHeading(q.W, q.X, q.Y, q.Z),
	}, nil
}

// LaserProperties returns the sweep geometry. It is fetched once and cached.
func (c *LokarriaClient) LaserProperties(ctx context.Context) (LaserProperties, error) {
	c.mu.Lock()
	cached := c.laser
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	var props LaserProperties
	if err := c.getJSON(ctx, pathLaserProperties, &props); err != nil {
		return LaserProperties{}, err
	}
	if props.Beams() == 0 {
		return LaserProperties{}, fmt.Errorf("robot client: invalid laser properties %+v", props)
	}
	c.mu.Lock()
	c.laser = &props
	c.mu.Unlock()
	return props, nil
}

// Scan returns the latest laser echoes as a scan.
func (c *LokarriaClient) Scan(ctx context.Context) (Scan, error) {
	props, err := c.LaserProperties(ctx)
	if err != nil {
		return Scan{}, err
	}
	var resp echoesResponse
	if err := c.getJSON(ctx, pathLaserEchoes, &resp); err != nil {
		return Scan{}, err
	}
	scan := NewSweepScan(props.StartAngle, props.AngleIncrement, resp.Echoes)
	scan.Timestamp = resp.Timestamp
	return scan, nil
}

// Drive posts a differential drive command.
func (c *LokarriaClient) Drive(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(driveRequest{TargetAngularSpeed: cmd.Angular, TargetLinearSpeed: cmd.Linear})
	if err != nil {
		return fmt.Errorf("encoding drive command: %w", err)
	}
	_, err = c.retry(ctx, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, pathDifferentialDrive, body)
	})
	return err
}

func (c *LokarriaClient) getJSON(ctx context.Context, path string, v interface{}) error {
	body, err := c.retry(ctx, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		// Parse errors are not transient; do not retry.
		return fmt.Errorf("parsing JSON from %s: %w", path, err)
	}
	return nil
}

func (c *LokarriaClient) retry(ctx context.Context, call func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := range c.cfg.maxRetries {
		if attempt > 0 {
			backoff := c.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("robot client: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := call()
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("robot client: all %d attempts failed: %w", c.cfg.maxRetries, lastErr)
}

// do performs a single request. GETs expect 200, POSTs accept any 2xx.
func (c *LokarriaClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode == http.StatusOK
	if method != http.MethodGet {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		return nil, fmt.Errorf("HTTP %s %s: status %d", method, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return data, nil
}
