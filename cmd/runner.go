package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/noncmra/internal/catalog"
	"github.com/desertthunder/noncmra/internal/services"
	"github.com/desertthunder/noncmra/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	lookupEnv  func(string) (string, bool)
	validator  services.Validator
	source     catalog.Source
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Validator and Source replace the Smarty client and the configured catalog when set.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	LookupEnv  func(string) (string, bool)
	Validator  services.Validator
	Source     catalog.Source
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		lookupEnv:  opts.LookupEnv,
		validator:  opts.Validator,
		source:     opts.Source,
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "noncmra",
		Usage:   "Find virtual mailbox addresses that are not registered as CMRAs",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(r.logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, catalogCommand, credentialsCommand, verifyCommand, runsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration for a command.
//
// An explicit --config flag always reads that file. Otherwise the config the runner was created with is used.
// The returned value is a copy, so flag overrides never leak between commands.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if cmd.IsSet("config") {
		path := cmd.String("config")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
		config, err := shared.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		r.config, r.configPath = config, path
	}

	config := *r.config
	return &config, nil
}

// catalogSource picks the mailbox catalog configured in [catalog].
func (r *Runner) catalogSource(config *shared.Config) catalog.Source {
	if r.source != nil {
		return r.source
	}
	if config.Catalog.Source == "file" {
		return catalog.NewFileSource(config.Catalog.Path)
	}
	return catalog.NewATMBSource(config.Catalog, nil, shared.WithLogger(r.logger, "source", "atmb"))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
