package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/JoseManu96/ml.school/internal/logger"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// parentRunTag is the reserved MLflow tag linking a nested run to its parent.
const parentRunTag = "mlflow.parentRunId"

// Client talks to the MLflow REST API. It resolves its experiment lazily on
// the first StartRun and caches the identifier afterwards. Client is safe
// for concurrent use.
type Client struct {
	baseURL    string
	experiment string
	httpClient *http.Client
	log        *logger.Logger

	mu           sync.Mutex
	experimentID string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger attaches a logger to the client.
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient builds a client for the tracking server at baseURL. Runs are
// created under the named experiment, which is created on first use if the
// server does not know it yet.
func NewClient(baseURL, experiment string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		experiment: experiment,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type kv struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metricEntry struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// StartRun opens a top-level MLflow run. Any failure here means the
// tracking server is unusable for this run, so the error is reported as a
// run initialization failure.
func (c *Client) StartRun(ctx context.Context, name string, tags map[string]string) (string, error) {
	runID, err := c.createRun(ctx, name, tags)
	if err != nil {
		return "", mlerrors.NewRunInitError(c.baseURL, err)
	}
	c.log.WithFields(logger.Fields{"run_id": runID, "name": name}).Info("Started tracking run.")
	return runID, nil
}

// StartNested opens a run linked to parentID through the reserved MLflow
// parent tag.
func (c *Client) StartNested(ctx context.Context, parentID, name string) (string, error) {
	runID, err := c.createRun(ctx, name, map[string]string{parentRunTag: parentID})
	if err != nil {
		return "", fmt.Errorf("failed to create nested run %q: %w", name, err)
	}
	return runID, nil
}

// LogParams records parameters on a run through the log-batch endpoint.
func (c *Client) LogParams(ctx context.Context, runID string, params map[string]string) error {
	entries := make([]kv, 0, len(params))
	for _, key := range sortedKeys(params) {
		entries = append(entries, kv{Key: key, Value: params[key]})
	}
	payload := map[string]any{"run_id": runID, "params": entries}
	if _, err := c.post(ctx, "runs/log-batch", payload); err != nil {
		return fmt.Errorf("failed to log params on run %s: %w", runID, err)
	}
	return nil
}

// LogMetrics records metrics on a run through the log-batch endpoint.
func (c *Client) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	now := time.Now().UnixMilli()
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]metricEntry, 0, len(metrics))
	for _, key := range keys {
		entries = append(entries, metricEntry{Key: key, Value: metrics[key], Timestamp: now})
	}
	payload := map[string]any{"run_id": runID, "metrics": entries}
	if _, err := c.post(ctx, "runs/log-batch", payload); err != nil {
		return fmt.Errorf("failed to log metrics on run %s: %w", runID, err)
	}
	return nil
}

// EndRun closes a run with the given status.
func (c *Client) EndRun(ctx context.Context, runID string, status RunStatus) error {
	payload := map[string]any{
		"run_id":   runID,
		"status":   string(status),
		"end_time": time.Now().UnixMilli(),
	}
	if _, err := c.post(ctx, "runs/update", payload); err != nil {
		return fmt.Errorf("failed to close run %s: %w", runID, err)
	}
	return nil
}

func (c *Client) createRun(ctx context.Context, name string, tags map[string]string) (string, error) {
	experimentID, err := c.ensureExperiment(ctx)
	if err != nil {
		return "", err
	}

	entries := make([]kv, 0, len(tags))
	for _, key := range sortedKeys(tags) {
		entries = append(entries, kv{Key: key, Value: tags[key]})
	}
	payload := map[string]any{
		"experiment_id": experimentID,
		"run_name":      name,
		"start_time":    time.Now().UnixMilli(),
		"tags":          entries,
	}

	body, err := c.post(ctx, "runs/create", payload)
	if err != nil {
		return "", err
	}
	runID := gjson.GetBytes(body, "run.info.run_id").String()
	if runID == "" {
		return "", fmt.Errorf("runs/create response carries no run id")
	}
	return runID, nil
}

// ensureExperiment resolves the experiment identifier, creating the
// experiment when the server does not have it.
func (c *Client) ensureExperiment(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.experimentID != "" {
		return c.experimentID, nil
	}

	endpoint := fmt.Sprintf("%s/api/2.0/mlflow/experiments/get-by-name?experiment_name=%s",
		c.baseURL, url.QueryEscape(c.experiment))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		c.experimentID = gjson.GetBytes(body, "experiment.experiment_id").String()
	case resp.StatusCode == http.StatusNotFound:
		created, err := c.post(ctx, "experiments/create", map[string]any{"name": c.experiment})
		if err != nil {
			return "", err
		}
		c.experimentID = gjson.GetBytes(created, "experiment_id").String()
		c.log.WithFields(logger.Fields{"experiment": c.experiment}).Info("Created tracking experiment.")
	default:
		return "", fmt.Errorf("experiments/get-by-name returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if c.experimentID == "" {
		return "", fmt.Errorf("could not resolve experiment %q", c.experiment)
	}
	return c.experimentID, nil
}

// post sends a JSON payload to an MLflow endpoint and returns the raw
// response body.
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s/api/2.0/mlflow/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
