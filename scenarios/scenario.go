// Package scenarios defines the interface for auth API test scenarios.
package scenarios

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/config"
)

// Scenario defines the interface for auth API test scenarios.
// Each scenario exercises one part of the API end-to-end.
type Scenario interface {
	// Name returns the scenario name for identification and reporting.
	Name() string

	// Description provides a human-readable description of what the scenario tests.
	Description() string

	// Setup prepares the scenario before execution.
	Setup(ctx context.Context) error

	// Execute runs the scenario. A non-nil error means the run could not
	// continue at all (unreachable service, transport failure); unexpected
	// status codes are reported through the Result instead.
	Execute(ctx context.Context) (*Result, error)

	// Teardown cleans up after the scenario execution.
	Teardown(ctx context.Context) error
}

// Printer receives the human-readable transcript of a scenario as it runs.
type Printer interface {
	// Separator prints the divider between tests.
	Separator()
	// Section announces a test, e.g. "Testing User Login...".
	Section(title string)
	// Exchange prints the status code and body of a response.
	Exchange(resp *client.Response)
	// Outcome prints a success or failure line.
	Outcome(ok bool, msg string)
	// Notice prints a free-form line.
	Notice(msg string)
}

type discardPrinter struct{}

func (discardPrinter) Separator()                {}
func (discardPrinter) Section(string)            {}
func (discardPrinter) Exchange(*client.Response) {}
func (discardPrinter) Outcome(bool, string)      {}
func (discardPrinter) Notice(string)             {}

// Deps are the collaborators shared by every scenario in a run.
type Deps struct {
	Printer  Printer
	Observer client.RequestObserver
	Logger   *slog.Logger

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func (d Deps) printer() Printer {
	if d.Printer == nil {
		return discardPrinter{}
	}
	return d.Printer
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// newAuthClient builds the API client every scenario uses.
func newAuthClient(cfg *config.Config, deps Deps) *client.AuthClient {
	opts := []client.Option{
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(deps.logger()),
	}
	if deps.Observer != nil {
		opts = append(opts, client.WithObserver(deps.Observer))
	}
	if deps.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(deps.HTTPClient))
	}
	return client.NewAuthClient(cfg.BaseURL, opts...)
}

// awaitService blocks until the API answers when the config asks for it.
func awaitService(ctx context.Context, c *client.AuthClient, cfg *config.Config, deps Deps) error {
	if !cfg.WaitForReady {
		return nil
	}
	deps.logger().Info("Waiting for auth service",
		slog.String("url", c.BaseURL()),
		slog.Duration("timeout", cfg.ReadyTimeout))
	if err := c.WaitForReady(ctx, cfg.ReadyTimeout); err != nil {
		return fmt.Errorf("service not ready: %w", err)
	}
	return nil
}

// StageStatus is the outcome of a single stage.
type StageStatus string

// Stage outcomes.
const (
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// Result contains the outcome of a scenario execution.
// All methods are thread-safe for concurrent access.
type Result struct {
	mu sync.Mutex `json:"-"`

	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Aborted is set when a required stage failed and later stages never ran.
	Aborted bool `json:"aborted,omitempty"`

	// Metrics contains timing and count metrics from the scenario.
	Metrics map[string]any `json:"metrics,omitempty"`

	// Details contains scenario-specific output data.
	Details map[string]any `json:"details,omitempty"`

	// Errors contains all errors encountered during execution.
	Errors []string `json:"errors,omitempty"`

	// Warnings contains non-fatal issues encountered.
	Warnings []string `json:"warnings,omitempty"`

	// Stages tracks completion of each stage in the scenario.
	Stages []StageResult `json:"stages,omitempty"`
}

// StageResult represents the outcome of a single stage in a scenario.
type StageResult struct {
	Name       string        `json:"name"`
	Title      string        `json:"title"`
	Status     StageStatus   `json:"status"`
	StatusCode int           `json:"status_code,omitempty"`
	Expected   []int         `json:"expected,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Success reports whether the stage passed.
func (s StageResult) Success() bool {
	return s.Status == StagePassed
}

// NewResult creates a new Result initialized for the given scenario.
func NewResult(scenarioName string) *Result {
	return &Result{
		ScenarioName: scenarioName,
		StartTime:    time.Now(),
		Success:      false,
		Metrics:      make(map[string]any),
		Details:      make(map[string]any),
		Errors:       []string{},
		Warnings:     []string{},
		Stages:       []StageResult{},
	}
}

// Complete marks the result as complete, setting end time and duration.
func (r *Result) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// AddError adds an error to the result.
func (r *Result) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the result.
func (r *Result) AddWarning(warning string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, warning)
}

// AddStage adds a completed stage to the result.
func (r *Result) AddStage(stage StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, stage)
}

// Stage returns the named stage, if it was recorded.
func (r *Result) Stage(name string) (StageResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Counts returns the number of passed, failed and skipped stages.
func (r *Result) Counts() (passed, failed, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Stages {
		switch s.Status {
		case StagePassed:
			passed++
		case StageFailed:
			failed++
		case StageSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Abort records that a required stage failed and later stages never ran.
func (r *Result) Abort(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Aborted = true
	r.Error = msg
}

// IsAborted reports whether a required stage stopped the scenario.
func (r *Result) IsAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Aborted
}

// Fail marks the result failed and records msg as its error.
func (r *Result) Fail(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Success = false
	r.Error = msg
	r.Errors = append(r.Errors, msg)
}

// settle derives Success from the recorded stages.
func (r *Result) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Success = r.Error == "" && !r.Aborted
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			r.Success = false
		}
	}
}

// SetMetric sets a metric value.
func (r *Result) SetMetric(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metrics[key] = value
}

// SetDetail sets a detail value.
func (r *Result) SetDetail(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Details[key] = value
}

// GetDetail retrieves a detail value safely.
func (r *Result) GetDetail(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	val, ok := r.Details[key]
	return val, ok
}

// GetDetailString retrieves a string detail value safely.
func (r *Result) GetDetailString(key string) (string, bool) {
	val, ok := r.GetDetail(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetDetailBool retrieves a bool detail value safely.
func (r *Result) GetDetailBool(key string) (bool, bool) {
	val, ok := r.GetDetail(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Failed builds a Result for a scenario that could not run at all.
func Failed(scenarioName, msg string) *Result {
	result := NewResult(scenarioName)
	result.Fail(msg)
	result.Complete()
	return result
}
