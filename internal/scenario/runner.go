package scenario

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/snapshot/dataset"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/storage"
)

const tracerName = "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/scenario"

// Resetter empties every seedable table.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Replayer inserts a dataset verbatim.
type Replayer interface {
	Replay(ctx context.Context, ds dataset.Dataset) error
}

// Capturer reads the seedable tables into a dataset.
type Capturer interface {
	Capture(ctx context.Context, name string) (dataset.Dataset, error)
}

// SnapshotStore loads and saves scenario snapshots. Load reports a missing
// snapshot with fs.ErrNotExist in the error chain.
type SnapshotStore interface {
	Path(name string) string
	Load(name string) (dataset.Dataset, error)
	Save(name string, ds dataset.Dataset) error
}

// Deps bundles the collaborators of a Runner.
type Deps struct {
	Resetter      Resetter
	Replayer      Replayer
	Capturer      Capturer
	Snapshots     SnapshotStore
	NewUnitOfWork func() storage.UnitOfWork
}

// Transition reports a scenario moving between stages.
type Transition struct {
	Scenario string
	From     Stage
	To       Stage
	Err      error
}

// Config controls scenario execution.
type Config struct {
	Logger  *log.Logger
	Verbose bool
	// Only restricts the run to the named scenarios. Their prerequisites must
	// already have snapshots.
	Only []string
	// OnTransition observes every stage change.
	OnTransition func(Transition)
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// Now defaults to time.Now and is used for report durations.
	Now func() time.Time
}

// Result describes one completed scenario.
type Result struct {
	Scenario string
	Path     string
	Tables   int
	Rows     int
	Duration time.Duration
}

// Report summarizes a batch run.
type Report struct {
	Completed []Result
	// Failed is set when the batch stopped on a scenario failure.
	Failed *Error
}

// Runner executes scenarios one at a time in prerequisite order.
type Runner struct {
	registry *Registry
	deps     Deps
	logger   *log.Logger
	verbose  bool
	only     []string
	observe  func(Transition)
	tracer   trace.Tracer
	now      func() time.Time
}

// NewRunner validates dependencies and prepares a runner.
func NewRunner(registry *Registry, deps Deps, cfg Config) (*Runner, error) {
	if registry == nil {
		return nil, errors.New("scenario registry is required")
	}
	switch {
	case deps.Resetter == nil:
		return nil, errors.New("resetter is required")
	case deps.Replayer == nil:
		return nil, errors.New("replayer is required")
	case deps.Capturer == nil:
		return nil, errors.New("capturer is required")
	case deps.Snapshots == nil:
		return nil, errors.New("snapshot store is required")
	case deps.NewUnitOfWork == nil:
		return nil, errors.New("unit of work factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		registry: registry,
		deps:     deps,
		logger:   logger,
		verbose:  cfg.Verbose,
		only:     cfg.Only,
		observe:  cfg.OnTransition,
		tracer:   provider.Tracer(tracerName),
		now:      now,
	}, nil
}

// Plan returns the scenarios Run would execute, in order.
func (r *Runner) Plan() ([]Definition, error) {
	return r.registry.Select(r.only)
}

// Run executes the planned scenarios and stops at the first failure. The
// report lists every completed scenario and the failed one, if any.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report
	plan, err := r.Plan()
	if err != nil {
		return report, err
	}

	ctx, span := r.tracer.Start(ctx, "scenario.batch",
		trace.WithAttributes(attribute.Int("scenario.count", len(plan))))
	defer span.End()

	for _, def := range plan {
		if err := ctx.Err(); err != nil {
			failure := &Error{Scenario: def.Name(), Stage: StageResetting, Err: err}
			report.Failed = failure
			recordError(span, failure)
			return report, failure
		}
		result, err := r.runScenario(ctx, def)
		if err != nil {
			var failure *Error
			if !errors.As(err, &failure) {
				failure = &Error{Scenario: def.Name(), Stage: StageFailed, Err: err}
			}
			report.Failed = failure
			recordError(span, failure)
			return report, failure
		}
		report.Completed = append(report.Completed, result)
	}
	return report, nil
}

func (r *Runner) runScenario(ctx context.Context, def Definition) (Result, error) {
	started := r.now()
	name := def.Name()
	ctx, span := r.tracer.Start(ctx, "scenario.run",
		trace.WithAttributes(attribute.String("scenario.name", name)))
	defer span.End()

	prerequisite, err := r.registry.PrerequisiteOf(def)
	if err != nil {
		return Result{}, r.fail(span, name, StageResetting, err)
	}

	stages := []Stage{StageResetting, StagePreloading, StageSeeding, StageCapturing, StageSerializing}
	if prerequisite == nil {
		stages = slices.DeleteFunc(stages, func(s Stage) bool { return s == StagePreloading })
	}

	var (
		captured dataset.Dataset
		from     = StagePending
	)
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return Result{}, r.fail(span, name, stage, err)
		}
		r.transition(Transition{Scenario: name, From: from, To: stage})
		from = stage

		stageCtx, stageSpan := r.tracer.Start(ctx, "scenario."+stage.String(),
			trace.WithAttributes(attribute.String("scenario.name", name)))
		var stageErr error
		switch stage {
		case StageResetting:
			stageErr = r.deps.Resetter.Reset(stageCtx)
		case StagePreloading:
			stageErr = r.preload(stageCtx, prerequisite)
		case StageSeeding:
			stageErr = r.seed(stageCtx, def)
		case StageCapturing:
			captured, stageErr = r.deps.Capturer.Capture(stageCtx, name)
		case StageSerializing:
			stageErr = r.deps.Snapshots.Save(name, captured)
		}
		if stageErr != nil {
			recordError(stageSpan, stageErr)
			stageSpan.End()
			return Result{}, r.fail(span, name, stage, stageErr)
		}
		stageSpan.End()
	}

	r.transition(Transition{Scenario: name, From: from, To: StageDone})
	result := Result{
		Scenario: name,
		Path:     r.deps.Snapshots.Path(name),
		Tables:   len(captured.Tables),
		Rows:     captured.RowCount(),
		Duration: r.now().Sub(started),
	}
	span.SetAttributes(attribute.Int("scenario.rows", result.Rows))
	return result, nil
}

func (r *Runner) preload(ctx context.Context, prerequisite Definition) error {
	ds, err := r.deps.Snapshots.Load(prerequisite.Name())
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.WrapWithMetadata(apperrors.CodePrerequisiteMissing,
			"prerequisite snapshot is missing", map[string]string{
				"prerequisite": prerequisite.Name(),
				"path":         r.deps.Snapshots.Path(prerequisite.Name()),
			}, err)
	}
	if err != nil {
		return err
	}
	return r.deps.Replayer.Replay(ctx, ds)
}

// seed runs the definition on a fresh unit of work. Any transaction the seed
// leaves open is rolled back so capture only sees committed data.
func (r *Runner) seed(ctx context.Context, def Definition) (err error) {
	uow := r.deps.NewUnitOfWork()
	if uow == nil {
		return apperrors.New(apperrors.CodeSeedFailed, "unit of work factory returned nil")
	}
	defer func() {
		if rbErr := uow.Rollback(); rbErr != nil && err == nil {
			err = apperrors.Wrap(apperrors.CodeSeedFailed, "release unit of work", rbErr)
		}
	}()
	if err := def.Seed(ctx, uow); err != nil {
		if apperrors.GetCode(err) == apperrors.CodeUnknown && !isContextError(err) {
			return apperrors.Wrap(apperrors.CodeSeedFailed, "seed scenario", err)
		}
		return err
	}
	return nil
}

func (r *Runner) fail(span trace.Span, name string, stage Stage, err error) error {
	failure := &Error{Scenario: name, Stage: stage, Err: err}
	recordError(span, failure)
	r.transition(Transition{Scenario: name, From: stage, To: StageFailed, Err: err})
	return failure
}

func (r *Runner) transition(t Transition) {
	if r.verbose {
		if t.Err != nil {
			r.logger.Printf("scenario %s: %s -> %s: %v", t.Scenario, t.From, t.To, t.Err)
		} else {
			r.logger.Printf("scenario %s: %s -> %s", t.Scenario, t.From, t.To)
		}
	}
	if r.observe != nil {
		r.observe(t)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// String renders a one-line summary of a completed scenario.
func (r Result) String() string {
	return fmt.Sprintf("%s: %d rows in %d tables -> %s", r.Scenario, r.Rows, r.Tables, r.Path)
}
