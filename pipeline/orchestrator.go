// Package pipeline sequences the four conversion stages of a project:
// parsing, scripting, voice synthesis and rendering.
//
// Each stage first consults the state store; a completed result is returned
// as-is without repeating any work. Otherwise the stage runs, reports
// progress, and records either its payload or its failure.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"slidecast/pptx"
	"slidecast/project"
	"slidecast/render"
	"slidecast/script"
	"slidecast/storage"
	"slidecast/task"
)

// StateStore is the subset of the project store the orchestrator drives.
type StateStore interface {
	UpdateProgress(id string, stage project.Stage, current, total int, details string)
	SetStatus(id string, status project.Status)
	SaveStageResult(id string, stage project.Stage, status project.ResultStatus, data project.Payload, errMsg string)
	GetStageResult(id string, stage project.Stage) (project.StageResult, bool)
	GetProjectStatus(id string) project.Project
	DeleteProject(id string)
	Exclusive(id string) func()
}

type Parser interface {
	Parse(data []byte) (*pptx.Presentation, error)
}

type ScriptGenerator interface {
	GenerateSlide(ctx context.Context, slide project.Slide, opts script.Options) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, speed float64) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) storage.Result
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Output, error)
}

// Runner executes work off the calling goroutine and waits for it.
type Runner interface {
	Run(ctx context.Context, projectID string, fn task.Func) error
}

// VoiceResolver maps a requested voice to a provider voice id.
type VoiceResolver interface {
	Resolve(voiceID, voiceName string) string
}

type Deps struct {
	Store    StateStore
	Parser   Parser
	Scripts  ScriptGenerator
	Speech   Synthesizer
	Voices   VoiceResolver
	Uploader Uploader
	Renderer Renderer
	Runner   Runner
}

type Options struct {
	// MediaDir receives published artifacts when the object store cannot take them.
	MediaDir string
	// BaseURL prefixes /media links; empty yields host-relative links.
	BaseURL string
	Logger  *slog.Logger
}

type Orchestrator struct {
	store    StateStore
	parser   Parser
	scripts  ScriptGenerator
	speech   Synthesizer
	voices   VoiceResolver
	uploader Uploader
	renderer Renderer
	runner   Runner
	media    mediaDir
	logger   *slog.Logger
}

func New(deps Deps, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    deps.Store,
		parser:   deps.Parser,
		scripts:  deps.Scripts,
		speech:   deps.Speech,
		voices:   deps.Voices,
		uploader: deps.Uploader,
		renderer: deps.Renderer,
		runner:   deps.Runner,
		media:    newMediaDir(opts.MediaDir, opts.BaseURL),
		logger:   logger,
	}
}

// Status returns the project snapshot, or the unknown sentinel.
func (o *Orchestrator) Status(id string) project.Project {
	return o.store.GetProjectStatus(id)
}

// Delete forgets a project and its checkpoint. Work already in flight is not
// interrupted; a late result write recreates the record.
func (o *Orchestrator) Delete(id string) {
	o.store.DeleteProject(id)
}

// progressFunc reports (current, detail) for the running stage.
type progressFunc func(current int, detail string)

// runStage applies the cache-check, execute, persist sequence to one stage.
// The whole sequence holds the project's stage gate.
func runStage[T project.Payload](
	o *Orchestrator,
	id string,
	stage project.Stage,
	total int,
	work func(progress progressFunc) (T, error),
) (T, bool, error) {
	release := o.store.Exclusive(id)
	defer release()

	logger := o.logger.With("project_id", id, "stage", stage)
	if res, ok := o.store.GetStageResult(id, stage); ok && res.Completed() {
		if cached, ok := project.PayloadAs[T](res); ok {
			logger.Info("stage cache hit")
			return cached, true, nil
		}
		logger.Warn("completed stage result has an unexpected payload; recomputing")
	}

	before := o.store.GetProjectStatus(id)
	o.store.UpdateProgress(id, stage, 0, total, string(stage)+" starting")
	o.store.SetStatus(id, project.StatusInProgress)
	logger.Info("stage started", "total", total)

	payload, err := work(func(current int, detail string) {
		o.store.UpdateProgress(id, stage, current, total, detail)
	})
	if err != nil && busy(err) {
		o.restore(before)
		logger.Warn("stage not started; workers busy", "error", err)
		var zero T
		return zero, false, err
	}
	if err != nil {
		o.store.SaveStageResult(id, stage, project.ResultFailed, nil, err.Error())
		logger.Error("stage failed", "error", err)
		var zero T
		return zero, false, &StageError{Stage: stage, Err: err}
	}

	o.store.UpdateProgress(id, stage, total, total, string(stage)+" complete")
	o.store.SaveStageResult(id, stage, project.ResultCompleted, payload, "")
	logger.Info("stage completed")
	return payload, false, nil
}

// busy reports errors that mean the work never ran and may be retried as-is.
func busy(err error) bool {
	return errors.Is(err, task.ErrQueueFull) || errors.Is(err, task.ErrStopped)
}

// restore puts a project back to its snapshot from before a stage that never ran.
func (o *Orchestrator) restore(before project.Project) {
	if !before.Known() {
		o.store.DeleteProject(before.ProjectID)
		return
	}
	o.store.UpdateProgress(before.ProjectID, before.Stage, before.Current, before.Total, before.Details)
	o.store.SetStatus(before.ProjectID, before.Status)
}
