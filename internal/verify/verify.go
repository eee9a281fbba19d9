package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// Single-qubit Hadamard circuit used as the representative functional
// payload: counts over {"0","1"} summing to 1.0.
const smokeCircuit = `OPENQASM 2.0; include "qelib1.inc"; qreg q[1]; creg c[1]; h q[0]; measure q[0] -> c[0];`

// Envelope is the backend's uniform response wrapper.
type Envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ExecuteRequest struct {
	CircuitFile     string         `json:"circuit_file"`
	Shots           int            `json:"shots"`
	BackendType     string         `json:"backend_type"`
	BackendProvider string         `json:"backend_provider"`
	BackendName     string         `json:"backend_name,omitempty"`
	AsyncMode       bool           `json:"async_mode"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

type ExecutionData struct {
	JobID                   string             `json:"job_id"`
	Status                  string             `json:"status"`
	Counts                  map[string]float64 `json:"counts"`
	ExecutionTime           float64            `json:"execution_time"`
	Metadata                map[string]any     `json:"metadata"`
	EstimatedCompletionTime string             `json:"estimated_completion_time,omitempty"`
}

type JobData struct {
	JobID           string         `json:"job_id"`
	Status          string         `json:"status"`
	BackendType     string         `json:"backend_type"`
	BackendProvider string         `json:"backend_provider"`
	BackendName     string         `json:"backend_name"`
	CreatedAt       string         `json:"created_at"`
	CompletedAt     string         `json:"completed_at"`
	Result          map[string]any `json:"result"`
	Error           string         `json:"error"`
}

// ProbeError marks a verification failure: the deployment is reported
// failed even when every earlier stage succeeded.
type ProbeError struct {
	Probe string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("verification probe %s failed: %v", e.Probe, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Client issues smoke requests against the gateway's public URL. It never
// talks to internal addresses: the property under test is the whole chain.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks the liveness endpoint through the gateway.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, http.StatusOK)
	return err
}

// ExecuteCircuit submits a circuit. Synchronous success is 200, async
// accept is 202; the caller decides which is expected.
func (c *Client) ExecuteCircuit(ctx context.Context, reqBody ExecuteRequest) (int, ExecutionData, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, ExecutionData{}, fmt.Errorf("encode execute request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/circuits/execute", bytes.NewReader(payload))
	if err != nil {
		return 0, ExecutionData{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	env, status, err := c.doEnvelope(req, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return status, ExecutionData{}, err
	}

	var data ExecutionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return status, ExecutionData{}, fmt.Errorf("decode execution data: %w", err)
	}
	return status, data, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (JobData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/jobs/"+jobID, nil)
	if err != nil {
		return JobData{}, err
	}
	env, _, err := c.doEnvelope(req, http.StatusOK)
	if err != nil {
		return JobData{}, err
	}
	var data JobData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return JobData{}, fmt.Errorf("decode job data: %w", err)
	}
	return data, nil
}

func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	_, _, err = c.doEnvelope(req, http.StatusOK)
	return err
}

func (c *Client) do(req *http.Request, wantStatus ...int) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	for _, want := range wantStatus {
		if resp.StatusCode == want {
			return resp.StatusCode, nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) doEnvelope(req *http.Request, wantStatus ...int) (Envelope, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Envelope{}, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Envelope{}, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	ok := false
	for _, want := range wantStatus {
		if resp.StatusCode == want {
			ok = true
			break
		}
	}
	if !ok {
		return Envelope{}, resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, resp.StatusCode, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Status != "success" {
		if env.Error != nil {
			return env, resp.StatusCode, fmt.Errorf("backend error %s: %s", env.Error.Code, env.Error.Message)
		}
		return env, resp.StatusCode, fmt.Errorf("backend envelope status %q", env.Status)
	}
	return env, resp.StatusCode, nil
}

type Options struct {
	Shots           int
	BackendProvider string
	AsyncProbe      bool
	JobPollInterval time.Duration
	JobPollAttempts int
}

// Run executes the verification stage: liveness probe, synchronous
// functional probe, and optionally an async job round trip.
func Run(ctx context.Context, logger *slog.Logger, c *Client, opts Options) error {
	logger.Info("verification liveness probe", "url", c.baseURL+"/api/v1/health")
	if err := c.Health(ctx); err != nil {
		return &ProbeError{Probe: "liveness", Err: err}
	}

	logger.Info("verification functional probe",
		"provider", opts.BackendProvider,
		"shots", opts.Shots,
	)
	status, data, err := c.ExecuteCircuit(ctx, ExecuteRequest{
		CircuitFile:     smokeCircuit,
		Shots:           opts.Shots,
		BackendType:     "simulator",
		BackendProvider: opts.BackendProvider,
		AsyncMode:       false,
	})
	if err != nil {
		return &ProbeError{Probe: "functional", Err: err}
	}
	if status != http.StatusOK {
		return &ProbeError{Probe: "functional", Err: fmt.Errorf("expected 200 for synchronous execution, got %d", status)}
	}
	if err := checkCounts(data.Counts); err != nil {
		return &ProbeError{Probe: "functional", Err: err}
	}
	logger.Info("functional probe ok", "counts", data.Counts, "execution_time", data.ExecutionTime)

	if !opts.AsyncProbe {
		return nil
	}
	if err := runAsyncProbe(ctx, logger, c, opts); err != nil {
		return &ProbeError{Probe: "async", Err: err}
	}
	return nil
}

func runAsyncProbe(ctx context.Context, logger *slog.Logger, c *Client, opts Options) error {
	status, data, err := c.ExecuteCircuit(ctx, ExecuteRequest{
		CircuitFile:     smokeCircuit,
		Shots:           opts.Shots,
		BackendType:     "simulator",
		BackendProvider: opts.BackendProvider,
		AsyncMode:       true,
	})
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusOK {
		return fmt.Errorf("expected 202 for async submission, got %d", status)
	}
	if data.JobID == "" {
		return fmt.Errorf("async submission returned no job_id")
	}
	logger.Info("async probe job submitted", "job_id", data.JobID)

	interval := opts.JobPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	attempts := opts.JobPollAttempts
	if attempts <= 0 {
		attempts = 15
	}

	for i := 0; i < attempts; i++ {
		job, err := c.JobStatus(ctx, data.JobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case "COMPLETED":
			logger.Info("async probe job completed", "job_id", job.JobID)
			return nil
		case "FAILED", "CANCELLED":
			return fmt.Errorf("async job %s ended %s: %s", job.JobID, job.Status, job.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	// Exercise cancellation on the still-running job before giving up.
	if err := c.CancelJob(ctx, data.JobID); err != nil {
		return fmt.Errorf("async job %s did not complete and cancel failed: %w", data.JobID, err)
	}
	return fmt.Errorf("async job %s did not complete within %d polls (cancelled)", data.JobID, attempts)
}

func checkCounts(counts map[string]float64) error {
	if len(counts) == 0 {
		return fmt.Errorf("execution returned no counts")
	}
	sum := 0.0
	for key, v := range counts {
		if key != "0" && key != "1" {
			return fmt.Errorf("unexpected measurement key %q for single-qubit circuit", key)
		}
		if v < 0 {
			return fmt.Errorf("negative count proportion %f for key %q", v, key)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("count proportions sum to %f, expected 1.0", sum)
	}
	return nil
}
