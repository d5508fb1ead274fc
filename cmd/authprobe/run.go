package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360studio/authprobe/client"
	"github.com/c360studio/authprobe/config"
	"github.com/c360studio/authprobe/metrics"
	"github.com/c360studio/authprobe/publish"
	"github.com/c360studio/authprobe/report"
	"github.com/c360studio/authprobe/scenarios"
)

const bannerTitle = "Authentication API Test"

// scenarioList is the registry of runnable scenarios, in "all" order.
func scenarioList(cfg *config.Config, deps scenarios.Deps) []scenarios.Scenario {
	return []scenarios.Scenario{
		scenarios.NewAuthFlowScenario(cfg, deps),
		scenarios.NewAuthGuardsScenario(cfg, deps),
		scenarios.NewAccountRecoveryScenario(cfg, deps),
	}
}

func run(parent context.Context, scenarioName string, cfg *config.Config, opts options, stdout, stderr io.Writer, logger *slog.Logger) error {
	// Create context with global timeout and signal handling
	ctx, cancel := context.WithTimeout(parent, cfg.GlobalTimeout)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In JSON mode stdout carries only the report; failures still reach stderr.
	console := report.NewConsole(stdout)
	diagnostics := console
	if opts.outputJSON {
		console = report.NewConsole(io.Discard)
		diagnostics = report.NewConsole(stderr)
	}
	collector := metrics.NewCollector()

	deps := scenarios.Deps{Printer: console, Observer: collector, Logger: logger}
	registry := scenarioList(cfg, deps)

	var toRun []scenarios.Scenario
	if scenarioName == "all" {
		toRun = registry
	} else {
		for _, s := range registry {
			if s.Name() == scenarioName {
				toRun = []scenarios.Scenario{s}
				break
			}
		}
		if toRun == nil {
			return fmt.Errorf("unknown scenario: %s", scenarioName)
		}
	}

	console.Header(bannerTitle, time.Now())

	results := make([]*scenarios.Result, 0, len(toRun))
	for _, scenario := range toRun {
		if ctx.Err() != nil {
			console.Notice("\nTest run interrupted!")
			break
		}

		if len(toRun) > 1 {
			console.Notice(fmt.Sprintf("\nRunning: %s - %s", scenario.Name(), scenario.Description()))
		}

		result, err := runScenario(ctx, scenario, cfg, console, diagnostics, logger)
		results = append(results, result)
		collector.RecordResult(result)
		if err != nil {
			// Connection failures and transport errors end the run.
			break
		}
	}

	runReport := report.NewRun(cfg.BaseURL, results)
	if opts.outputJSON {
		if err := runReport.WriteJSON(stdout); err != nil {
			return err
		}
	} else if len(results) > 1 {
		runReport.WriteText(stdout)
	}

	// Exports get their own deadline so an expired run can still report.
	exportCtx, exportCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer exportCancel()
	exportMetrics(exportCtx, cfg, collector, logger)
	publishRun(exportCtx, cfg, runReport, logger)

	if opts.strict && runReport.Failed() {
		return errScenariosFailed
	}
	return nil
}

// runScenario drives one scenario through setup, execute and teardown. A
// non-nil error means the run cannot usefully continue.
// Errors are reported on diag, which differs from console only in JSON mode.
func runScenario(ctx context.Context, scenario scenarios.Scenario, cfg *config.Config, console, diag *report.Console, logger *slog.Logger) (*scenarios.Result, error) {
	logger.Debug("Running scenario", slog.String("scenario", scenario.Name()))

	if err := scenario.Setup(ctx); err != nil {
		reportError(diag, cfg, err)
		return scenarios.Failed(scenario.Name(), fmt.Sprintf("setup failed: %v", err)), err
	}

	result, execErr := scenario.Execute(ctx)
	if execErr != nil {
		reportError(diag, cfg, execErr)
		if result == nil {
			result = scenarios.NewResult(scenario.Name())
			result.Complete()
		}
		result.Fail(fmt.Sprintf("execution error: %v", execErr))
	} else {
		console.Summary(result)
	}

	if err := scenario.Teardown(ctx); err != nil {
		result.AddWarning(fmt.Sprintf("teardown failed: %v", err))
		logger.Warn("Teardown failed", slog.String("scenario", scenario.Name()), slog.String("error", err.Error()))
	}

	logger.Debug("Scenario finished",
		slog.String("scenario", scenario.Name()),
		slog.Bool("success", result.Success),
		slog.Duration("duration", result.Duration))

	return result, execErr
}

func reportError(console *report.Console, cfg *config.Config, err error) {
	if client.IsConnectionError(err) {
		console.ConnectionFailure(cfg.BaseURL)
		return
	}
	console.Failure(err)
}

func exportMetrics(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) {
	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("Failed to write metrics", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	if url := cfg.Metrics.PushgatewayURL; url != "" {
		if err := collector.Push(ctx, url, cfg.Metrics.Job); err != nil {
			logger.Warn("Failed to push metrics", slog.String("url", url), slog.String("error", err.Error()))
		}
	}
}

func publishRun(ctx context.Context, cfg *config.Config, run *report.Run, logger *slog.Logger) {
	publisher, err := publish.New(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		logger.Warn("Failed to connect publisher", slog.String("url", cfg.NATS.URL), slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close publisher", slog.String("error", err.Error()))
		}
	}()

	if err := publisher.Publish(ctx, run); err != nil {
		logger.Warn("Failed to publish run report", slog.String("error", err.Error()))
	}
}
