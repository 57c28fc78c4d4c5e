// Package pipeline runs the processing stages over a working copy of the
// canonical graph. The graph is saved after every stage and each finished
// stage leaves a marker in the ledger so an interrupted run resumes where it
// stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/resolve"
	"github.com/ocd-calaccess/internal/store"
	"github.com/ocd-calaccess/internal/store/memory"
)

var tracer = otel.Tracer("github.com/ocd-calaccess/internal/pipeline")

// Stage names, in run order.
const (
	StageParties     = "parties"
	StageElections   = "elections"
	StageMeasures    = "measures"
	StageCandidacies = "candidacies"
	StageForm501     = "form501"
	StageIncumbents  = "incumbents"
	StageMerges      = "merges"
	StageIncumbency  = "incumbency"
)

// Stages lists every stage in run order.
var Stages = []string{
	StageParties,
	StageElections,
	StageMeasures,
	StageCandidacies,
	StageForm501,
	StageIncumbents,
	StageMerges,
	StageIncumbency,
}

// Options controls a run.
type Options struct {
	// RawVersion identifies the raw snapshot being processed.
	RawVersion time.Time
	// Force reruns stages that already finished for RawVersion.
	Force bool
	// Only restricts the run to the named stages when non-empty.
	Only []string
}

// StageReport counts what one stage did.
type StageReport struct {
	Stage    string
	Created  int
	Matched  int
	Skipped  int
	Warnings int
	// Resumed is set when the stage was skipped because it had finished.
	Resumed bool
	Took    time.Duration
}

// Records is the count stored on the stage's ledger marker.
func (r StageReport) Records() int {
	return r.Created + r.Matched
}

// Report summarises a run.
type Report struct {
	VersionID int64
	Stages    []StageReport
}

// Pipeline wires the resolvers to the persisted graph, the raw inputs and
// the ledger.
type Pipeline struct {
	graph  store.GraphStore
	inputs store.Inputs
	ledger store.Ledger
	ref    *reference.Data
	log    *logger.Logger
	now    func() time.Time
}

// New creates a pipeline.
func New(graph store.GraphStore, inputs store.Inputs, ledger store.Ledger, ref *reference.Data, log *logger.Logger, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{graph: graph, inputs: inputs, ledger: ledger, ref: ref, log: log, now: now}
}

// Run processes opts.RawVersion. A stage that fails leaves its marker
// unfinished and stops the run; the graph saved by earlier stages is kept.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Report, error) {
	defer p.log.Timing("pipeline run")()

	version, err := p.ledger.OpenVersion(ctx, opts.RawVersion, p.now())
	if err != nil {
		return Report{}, fmt.Errorf("failed to open processed version: %w", err)
	}
	report := Report{VersionID: version.ID}

	files, err := p.ledger.Files(ctx, version.ID)
	if err != nil {
		return report, fmt.Errorf("failed to list stage markers: %w", err)
	}
	finished := make(map[string]bool)
	for _, f := range files {
		if f.Kind == ocd.FileStage && f.Finished() {
			finished[f.FileName] = true
		}
	}

	graph, err := p.graph.LoadGraph(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load graph: %w", err)
	}
	w := p.newWork(memory.FromGraph(graph))

	for _, name := range Stages {
		if len(opts.Only) > 0 && !slices.Contains(opts.Only, name) {
			continue
		}
		if finished[name] && !opts.Force {
			p.log.Info("stage already finished", "stage", name, "version", version.ID)
			report.Stages = append(report.Stages, StageReport{Stage: name, Resumed: true})
			continue
		}
		sr, err := p.runStage(ctx, version.ID, name, w)
		report.Stages = append(report.Stages, sr)
		if err != nil {
			return report, err
		}
	}

	if len(opts.Only) == 0 {
		if err := p.ledger.FinishVersion(ctx, version.ID, p.now()); err != nil {
			return report, fmt.Errorf("failed to finish processed version %d: %w", version.ID, err)
		}
	}
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, versionID int64, name string, w *work) (StageReport, error) {
	ctx, span := tracer.Start(ctx, "stage "+name)
	defer span.End()

	start := time.Now()
	if err := p.ledger.StartFile(ctx, versionID, name, ocd.FileStage, p.now()); err != nil {
		return StageReport{Stage: name}, fmt.Errorf("failed to mark stage %s started: %w", name, err)
	}

	sr := StageReport{Stage: name}
	err := w.run(ctx, name, &sr)
	sr.Took = time.Since(start)
	span.SetAttributes(
		attribute.Int("created", sr.Created),
		attribute.Int("matched", sr.Matched),
		attribute.Int("skipped", sr.Skipped),
		attribute.Int("warnings", sr.Warnings),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sr, fmt.Errorf("stage %s: %w", name, err)
	}

	if err := p.graph.SaveGraph(ctx, w.store.Graph()); err != nil {
		return sr, fmt.Errorf("failed to save graph after stage %s: %w", name, err)
	}
	if err := p.ledger.FinishFile(ctx, versionID, name, ocd.FileStage, p.now(), sr.Records()); err != nil {
		return sr, fmt.Errorf("failed to mark stage %s finished: %w", name, err)
	}
	p.log.Info("stage finished", "stage", name, "created", sr.Created, "matched", sr.Matched,
		"skipped", sr.Skipped, "warnings", sr.Warnings, "took", sr.Took)
	return sr, nil
}

// recordError reports whether err concerns a single input record rather than
// the store. Such errors are logged and counted; the stage continues.
func recordError(err error) bool {
	for _, target := range []error{
		resolve.ErrUnresolvableDate,
		resolve.ErrDivisionNotFound,
		resolve.ErrNoContest,
		resolve.ErrBlacklisted,
		resolve.ErrInvalidRecord,
		store.ErrAmbiguous,
		ocd.ErrOddYear,
		ocd.ErrUnsupportedElectionType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
