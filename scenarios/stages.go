package scenarios

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/authprobe/client"
)

// exchange is one request/response check within a scenario.
type exchange struct {
	name    string // stage key, e.g. "login"
	title   string // summary label, e.g. "Login"
	section string // announced before the request
	passMsg string
	failMsg string
	expect  []int

	// required stops the scenario when the stage fails.
	required bool
	abortMsg string

	// skip returns a reason to skip the stage, or "" to run it.
	skip func() string
	call func(ctx context.Context) (*client.Response, error)
	// check runs after the status matched; an error fails the stage.
	check func(resp *client.Response) error
	// onPass threads state from a passing response into later stages.
	onPass func(resp *client.Response, result *Result)
}

// stageRunner executes exchanges in order against a shared Result.
type stageRunner struct {
	printer Printer
	timeout time.Duration
}

// run executes stages in order. A returned error means the service could not
// be reached or the transport failed; the scenario ends there.
func (sr stageRunner) run(ctx context.Context, result *Result, stages []exchange) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		sr.printer.Separator()
		sr.printer.Section(st.section)

		if st.skip != nil {
			if reason := st.skip(); reason != "" {
				sr.printer.Notice("⚠️  Skipped: " + reason)
				result.AddStage(StageResult{
					Name:     st.name,
					Title:    st.title,
					Status:   StageSkipped,
					Expected: st.expect,
					Error:    reason,
				})
				continue
			}
		}

		stageCtx, cancel := context.WithTimeout(ctx, sr.timeout)
		start := time.Now()
		resp, err := st.call(stageCtx)
		cancel()
		elapsed := time.Since(start)
		result.SetMetric(st.name+"_duration_ms", elapsed.Milliseconds())

		if err != nil {
			result.AddStage(StageResult{
				Name:     st.name,
				Title:    st.title,
				Status:   StageFailed,
				Expected: st.expect,
				Duration: elapsed,
				Error:    err.Error(),
			})
			return fmt.Errorf("stage %s: %w", st.name, err)
		}

		sr.printer.Exchange(resp)

		stage := StageResult{
			Name:       st.name,
			Title:      st.title,
			Status:     StagePassed,
			StatusCode: resp.StatusCode,
			Expected:   st.expect,
			Duration:   elapsed,
		}
		if !slices.Contains(st.expect, resp.StatusCode) {
			stage.Status = StageFailed
			stage.Error = fmt.Sprintf("expected status %s, got %d", formatStatuses(st.expect), resp.StatusCode)
		} else if st.check != nil {
			if err := st.check(resp); err != nil {
				stage.Status = StageFailed
				stage.Error = err.Error()
			}
		}

		sr.printer.Outcome(stage.Success(), outcomeMessage(st, stage))
		result.AddStage(stage)

		if stage.Success() {
			if st.onPass != nil {
				st.onPass(resp, result)
			}
			continue
		}

		result.AddError(fmt.Sprintf("%s: %s", st.name, stage.Error))
		if st.required {
			result.Abort(st.abortMsg)
			sr.printer.Notice("\n❌ " + st.abortMsg)
			return nil
		}
	}
	return nil
}

func outcomeMessage(st exchange, stage StageResult) string {
	if stage.Success() {
		return st.passMsg
	}
	return st.failMsg
}

// finish sets Success from the recorded stages and completes the result.
func finish(result *Result) {
	result.settle()
	result.Complete()
}

func formatStatuses(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, " or ")
}

// uniqueEmail tags the local part of email so repeated runs register fresh
// accounts: qa@example.com becomes qa+1a2b3c4d@example.com.
func uniqueEmail(email string) string {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email + "+" + tag
	}
	return local + "+" + tag + "@" + domain
}
