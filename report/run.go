package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/c360studio/authprobe/scenarios"
)

// Run is the machine-readable report of one authprobe invocation.
type Run struct {
	RunID     string              `json:"run_id"`
	Timestamp time.Time           `json:"timestamp"`
	BaseURL   string              `json:"base_url"`
	Results   []*scenarios.Result `json:"results"`
	Summary   Summary             `json:"summary"`
}

// Summary counts scenario outcomes.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// NewRun builds a report for results, assigning a fresh run ID.
func NewRun(baseURL string, results []*scenarios.Result) *Run {
	run := &Run{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		BaseURL:   baseURL,
		Results:   results,
	}
	run.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			run.Summary.Passed++
		} else {
			run.Summary.Failed++
		}
	}
	return run
}

// Failed reports whether any scenario failed.
func (r *Run) Failed() bool {
	return r.Summary.Failed > 0
}

// Marshal encodes the run as indented JSON.
func (r *Run) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run report: %w", err)
	}
	return data, nil
}

// WriteJSON writes the run as indented JSON followed by a newline.
func (r *Run) WriteJSON(w io.Writer) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// WriteText writes a one-line-per-scenario table of the run.
func (r *Run) WriteText(w io.Writer) {
	fmt.Fprintln(w, "\n═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                          SUMMARY")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	for _, res := range r.Results {
		status := "✓ PASSED"
		if !res.Success {
			status = "✗ FAILED"
		}
		passed, failed, skipped := res.Counts()
		fmt.Fprintf(w, "  %s  %s (%dms) stages: %d passed, %d failed, %d skipped\n",
			status, res.ScenarioName, res.Duration.Milliseconds(), passed, failed, skipped)
		if !res.Success && res.Error != "" {
			errMsg := res.Error
			if len(errMsg) > 80 {
				errMsg = errMsg[:77] + "..."
			}
			fmt.Fprintf(w, "           %s\n", errMsg)
		}
	}

	fmt.Fprintln(w, strings.Repeat("─", 65))
	fmt.Fprintf(w, "  Total: %d | Passed: %d | Failed: %d\n", r.Summary.Total, r.Summary.Passed, r.Summary.Failed)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	if r.Failed() {
		fmt.Fprintln(w, "\nSome tests failed. Run with --json for detailed output.")
	}
}
