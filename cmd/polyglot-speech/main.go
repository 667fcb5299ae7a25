package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/Nephrolytics-ai/polyglot-speech/pkg/config"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/logging"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/metrics"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-speech/pkg/utils"
)

const (
	exitOK                 = 0
	exitFailure            = 1
	exitConfigurationError = 2
)

// app carries what the root command's Before hook resolves for every subcommand.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	runID   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			log := logging.NewLogger(ctx)
			log.Errorf("panic: %v", r)
			utils.PrintStack("panic", log)
			code = exitFailure
		}
	}()

	a := &app{}
	err := a.command().Run(ctx, args)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintln(os.Stderr, "error:", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		return exitConfigurationError
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitFailure
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:  "polyglot-speech",
		Usage: "Transcribe and translate Hindi/Gujarati speech with Gemini and SarvamAI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", Sources: cli.EnvVars(config.EnvConfigFile)},
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file to load (default .env when present)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "output-dir", Usage: "directory for every output file"},
			&cli.StringFlag{Name: "metrics-file", Usage: "write Prometheus metrics in textfile format at exit"},
		},
		Before: a.before,
		After:  a.after,
		// Errors are reported by run so exit codes stay in one place.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			a.geminiCommand(),
			a.sarvamCommand(),
			a.batchCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(config.LoadOptions{
		EnvFile:    cmd.String("env-file"),
		ConfigFile: cmd.String("config"),
	})
	if err != nil {
		return ctx, err
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := cmd.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := cmd.String("output-dir"); v != "" {
		cfg.Output.Dir = v
	}
	if v := cmd.String("metrics-file"); v != "" {
		cfg.Output.MetricsFile = v
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}
	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return ctx, &model.ConfigurationError{Setting: "logging.level", Message: err.Error()}
	}

	a.cfg = cfg
	a.metrics = metrics.New()
	a.runID = uuid.NewString()

	ctx = logging.WithFields(ctx, logging.Fields{"run_id": a.runID})
	logging.NewLogger(ctx).Debugf("main.before command=%s output_dir=%s", strings.Join(cmd.Args().Slice(), " "), cfg.Output.Dir)
	return ctx, nil
}

func (a *app) after(ctx context.Context, _ *cli.Command) error {
	if a.cfg == nil || a.cfg.Output.MetricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Output.MetricsFile); err != nil {
		logging.NewLogger(ctx).Warnf("main.after metrics_file=%s error: %v", a.cfg.Output.MetricsFile, err)
	}
	return nil
}

// displayName names remote jobs after the run so they can be traced back to the logs.
func (a *app) displayName(prefix string) string {
	return prefix + "-" + a.runID
}
