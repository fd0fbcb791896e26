package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/credentials"
	"github.com/desertthunder/noncmra/internal/formatter"
	"github.com/desertthunder/noncmra/internal/metrics"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/server"
	"github.com/desertthunder/noncmra/internal/services"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/desertthunder/noncmra/internal/tasks"
	"github.com/desertthunder/noncmra/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/noncmra-tui.log"

// Verify runs the whole pipeline: load the catalog, verify every address, rank and write the report.
//
// A run that stops early (quota, error budget or interrupt) still writes its partial report and exits 0.
func (r *Runner) Verify(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	env := config.ApplyEnv(r.lookupEnv)
	if err := applyVerifyFlags(config, cmd); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	creds, err := credentialsFrom(config, env)
	if err != nil {
		return err
	}
	pool := credentials.NewPool(creds)

	validator := r.validator
	if validator == nil {
		validator = services.NewSmartyService(config.Smarty, r.httpClient)
	}

	useTUI := cmd.Bool("tui")
	if useTUI {
		// Redirect logs to file to avoid interfering with TUI rendering
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	source := r.catalogSource(config)
	r.logger.Info("fetching catalog", "source", source.Name())
	mailboxes, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog: %w", err)
	}

	var history *runHistory
	if !cmd.Bool("no-history") {
		if history, err = r.startHistory(config); err != nil {
			return err
		}
		defer history.Close()
	}

	m := metrics.New()
	engine := tasks.NewVerifyEngine(validator, pool, r.logger, m)
	opts := tasks.DispatchOptsFromConfig(config.Dispatch)

	if config.Report.MetricsAddr != "" {
		srv := server.New(config.Report.MetricsAddr, server.NewRunRouter(m, r.logger), r.logger)
		if _, err := srv.Start(); err != nil {
			history.fail(err.Error())
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
	}

	var (
		result *tasks.RunResult
		report *classifier.Report
	)
	if useTUI {
		result, report, err = r.runTUI(ctx, engine, mailboxes, opts, ui.RunInfo{
			Provider:    validator.Name(),
			Source:      source.Name(),
			Credentials: pool.Len(),
			Available:   pool.Available(),
		})
	} else {
		result, err = r.runPlain(ctx, engine, mailboxes, opts)
		if err == nil {
			report = classifier.Rank(result.Outcomes)
		}
	}
	if err != nil {
		history.fail(err.Error())
		return fmt.Errorf("verification run failed: %w", err)
	}
	if result == nil {
		history.fail("aborted")
		r.writePlain("Run aborted, nothing was verified.\n")
		return nil
	}

	reportPath, err := formatter.WriteReport(report, config.Report.Path, config.Report.Format)
	if err != nil {
		history.fail(err.Error())
		return err
	}
	r.logger.Info("report written", "path", reportPath, "entries", len(report.Entries))

	var summaryPath string
	if config.Report.Summary {
		summaryPath = formatter.SummaryPath(reportPath)
		summary := formatter.NewSummary(history.ID(), result, report, reportPath)
		if err := formatter.WriteSummary(summary, summaryPath); err != nil {
			r.logger.Warn("failed to write summary", "error", err)
			summaryPath = ""
		}
	}

	if config.Report.MetricsPath != "" {
		if err := m.WriteTextfile(config.Report.MetricsPath); err != nil {
			r.logger.Warn("failed to write metrics", "error", err)
		}
	}

	if err := history.finish(result, report, reportPath); err != nil {
		r.logger.Warn("failed to record run", "id", history.ID(), "error", err)
	}

	r.printDiagnostics(result, report, reportPath, summaryPath, history.Sequence())
	return nil
}

// applyVerifyFlags overlays command-line flags onto the loaded configuration.
func applyVerifyFlags(config *shared.Config, cmd *cli.Command) error {
	if path := cmd.String("catalog"); path != "" {
		config.Catalog.Source = "file"
		config.Catalog.Path = path
	}
	if cmd.IsSet("format") {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}
		config.Report.Format = format
		if !cmd.IsSet("output") && config.Report.Path != "" {
			config.Report.Path = withFormatExt(config.Report.Path, format)
		}
	}
	if output := cmd.String("output"); output != "" {
		config.Report.Path = output
	}
	if addr := cmd.String("metrics-addr"); addr != "" {
		config.Report.MetricsAddr = addr
	}
	if cmd.IsSet("workers") {
		if cmd.Int("workers") <= 0 {
			return fmt.Errorf("%w: --workers must be positive", shared.ErrInvalidFlag)
		}
		config.Dispatch.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("rate") {
		if cmd.Float("rate") <= 0 {
			return fmt.Errorf("%w: --rate must be positive", shared.ErrInvalidFlag)
		}
		config.Dispatch.RateLimit = cmd.Float("rate")
	}
	return nil
}

// withFormatExt swaps the extension of path for the one matching format.
func withFormatExt(path, format string) string {
	ext := format
	if format == formatter.FormatMarkdown {
		ext = "md"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

// runPlain runs the engine while streaming progress to the output. Interrupts stop dispatch
// and keep the partial result.
func (r *Runner) runPlain(ctx context.Context, engine tasks.Engine, mailboxes []models.Mailbox, opts tasks.DispatchOpts) (*tasks.RunResult, error) {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.writePlain("Verifying %d mailboxes...\n", len(mailboxes))

	progressCh := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Prepare:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.Verify:
				r.logger.Debug(update.Message)
				if update.Total > 0 && (update.Step%progressEvery == 0 || update.Step == update.Total) {
					r.writePlain("   %d/%d verified\n", update.Step, update.Total)
				}
			case tasks.Retry:
				r.logger.Debug(update.Message)
			case tasks.Stopping:
				r.writePlain("\n⚠ %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(runCtx, progressCh, mailboxes, opts)
	close(progressCh)
	<-done

	return result, err
}

const progressEvery = 25

func (r *Runner) printDiagnostics(result *tasks.RunResult, report *classifier.Report, reportPath, summaryPath string, sequence int) {
	d := report.Diagnostics

	r.writePlain("\n")
	if result.Partial {
		r.writePlainHeader(fmt.Sprintf("Run stopped early: %s", result.StopReason))
	} else {
		r.writePlainHeader("Verification Complete!")
	}
	r.writePlain("Catalog:      %d mailboxes (%d duplicates)\n", result.CatalogTotal, result.Duplicates+d.Duplicates)
	r.writePlain("Reported:     %d non-CMRA (%d residential)\n", d.Reported, report.Residential())
	r.writePlain("CMRA:         %d\n", d.CMRA)
	r.writePlain("Rejected:     %d\n", d.Rejected)
	r.writePlain("Failed:       %d (quota %d, protocol %d, network %d)\n", d.Failed(), d.FailedQuota, d.FailedProtocol, d.FailedNetwork)
	r.writePlain("Unprocessed:  %d\n", d.Skipped)
	r.writePlain("Calls:        %d (%d transient errors)\n", result.Calls, result.TransientErrors)
	r.writePlain("Credentials:  %d of %d exhausted\n", result.ExhaustedCredentials, len(result.Credentials))
	r.writePlain("Duration:     %s\n", result.Duration().Round(time.Millisecond))

	r.writePlainln("Report: %s", reportPath)
	if summaryPath != "" {
		r.writePlain("Summary: %s\n", summaryPath)
	}
	if sequence > 0 {
		r.writePlain("Run: #%d (noncmra runs show %d)\n", sequence, sequence)
	}
}
