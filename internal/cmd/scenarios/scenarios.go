// Package scenarios implements the snapshot generator command.
package scenarios

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	entrypoint "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/cmd"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/id"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario/catalog"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario/script"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/sqlsnap"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/xmlfile"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage/sqlite"
)

// Config holds scenarios command configuration.
type Config struct {
	Connection string        `env:"APSYS_SCENARIOS_CNN"`
	Output     string        `env:"APSYS_SCENARIOS_OUTPUT"`
	Scripts    string        `env:"APSYS_SCENARIOS_SCRIPTS"`
	Timeout    time.Duration `env:"APSYS_SCENARIOS_TIMEOUT" envDefault:"10m"`
	// Clock fixes the seed timestamps (RFC 3339) so repeated runs produce
	// identical files. Empty uses the wall clock.
	Clock     string `env:"APSYS_SCENARIOS_CLOCK"`
	Verbose   bool   `env:"APSYS_SCENARIOS_VERBOSE"`
	Scenarios []string
	List      bool
}

// ParseConfig loads environment defaults and then parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, apperrors.Wrap(apperrors.CodeConfigurationInvalid, "invalid environment", err)
	}

	var only string
	fs.StringVar(&cfg.Connection, "cnn", cfg.Connection, "SQLite database path")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "snapshot output directory")
	fs.StringVar(&cfg.Scripts, "scripts", cfg.Scripts, "directory of Lua scenario scripts")
	fs.StringVar(&only, "scenario", "", "run only the named scenarios, comma separated")
	fs.StringVar(&cfg.Clock, "clock", cfg.Clock, "fixed seed time in RFC 3339 (default: wall clock)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for the whole run")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	fs.BoolVar(&cfg.List, "list", false, "list the planned scenarios and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, apperrors.Wrap(apperrors.CodeConfigurationInvalid, "invalid arguments", err)
	}
	cfg.Scenarios = splitList(only)
	return cfg, nil
}

// Run executes the scenarios command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	logger := log.New(errOut, "", 0)
	logf := func(format string, args ...any) {
		if cfg.Verbose {
			logger.Printf(format, args...)
		}
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	if cfg.List {
		return printPlan(out, reg, cfg.Scenarios)
	}

	now, err := validate(cfg)
	if err != nil {
		return err
	}
	if err := prepareOutput(cfg.Output); err != nil {
		return err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, err := sqlite.Open(ctx, cfg.Connection,
		sqlite.WithIDGenerator(id.Deterministic{}),
		sqlite.WithClock(now),
	)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeConnectionFailed, "open database",
			map[string]string{"cnn": cfg.Connection}, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("close database: %v", err)
		}
	}()
	logf("database: %s", cfg.Connection)
	logf("output: %s", cfg.Output)

	db := store.DB()
	runner, err := scenario.NewRunner(reg, scenario.Deps{
		Resetter:      sqlsnap.NewResetter(db, sqlsnap.Options{}),
		Replayer:      sqlsnap.NewReplayer(db, sqlsnap.Options{}),
		Capturer:      sqlsnap.NewCapturer(db, sqlsnap.Options{}),
		Snapshots:     xmlfile.Dir(cfg.Output),
		NewUnitOfWork: func() storage.UnitOfWork { return store.NewUnitOfWork() },
	}, scenario.Config{
		Logger:  logger,
		Verbose: cfg.Verbose,
		Only:    cfg.Scenarios,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	for _, result := range report.Completed {
		fmt.Fprintln(out, result.String())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Generated %d snapshot(s) in %s\n", len(report.Completed), cfg.Output)
	return nil
}

func buildRegistry(cfg Config) (*scenario.Registry, error) {
	reg := scenario.NewRegistry()
	if err := catalog.Register(reg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Scripts) != "" {
		if err := script.Register(reg, cfg.Scripts); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func printPlan(out io.Writer, reg *scenario.Registry, only []string) error {
	plan, err := reg.Select(only)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Planned scenarios:")
	for _, def := range plan {
		prerequisite, err := reg.PrerequisiteOf(def)
		if err != nil {
			return err
		}
		if prerequisite == nil {
			fmt.Fprintf(out, "  %s\n", def.Name())
			continue
		}
		fmt.Fprintf(out, "  %s (after %s)\n", def.Name(), prerequisite.Name())
	}
	return nil
}

func validate(cfg Config) (func() time.Time, error) {
	if strings.TrimSpace(cfg.Connection) == "" {
		return nil, apperrors.New(apperrors.CodeConfigurationInvalid, "connection string is required (-cnn)")
	}
	if strings.TrimSpace(cfg.Output) == "" {
		return nil, apperrors.New(apperrors.CodeConfigurationInvalid, "output folder is required (-output)")
	}
	if cfg.Timeout < 0 {
		return nil, apperrors.New(apperrors.CodeConfigurationInvalid, "timeout must not be negative")
	}
	if strings.TrimSpace(cfg.Clock) == "" {
		return time.Now, nil
	}
	fixed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(cfg.Clock))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigurationInvalid, "clock must be RFC 3339", err)
	}
	fixed = fixed.UTC()
	return func() time.Time { return fixed }, nil
}

// prepareOutput creates the output folder and checks that it accepts files.
func prepareOutput(dir string) error {
	fail := func(message string, err error) error {
		return apperrors.WrapWithMetadata(apperrors.CodeOutputFolder, message,
			map[string]string{"output": dir}, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("create output folder", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fail("inspect output folder", err)
	}
	if !info.IsDir() {
		return fail("output path is not a directory", nil)
	}
	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fail("output folder is not writable", err)
	}
	closeErr := check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return fail("remove write check", err)
	}
	if closeErr != nil {
		return fail("output folder is not writable", closeErr)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
