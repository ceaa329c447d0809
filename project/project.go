package project

import (
	"maps"
	"time"
)

// CurrentSchemaVersion is written into every checkpoint.
const CurrentSchemaVersion = 1

// Stage is one discrete phase of the pipeline.
type Stage string

const (
	StageParsing   Stage = "parsing"
	StageScripting Stage = "scripting"
	StageSynthesis Stage = "voice-synthesis"
	StageRendering Stage = "rendering"
	StageUnknown   Stage = "unknown"
)

// Stages lists the pipeline phases in execution order.
var Stages = []Stage{StageParsing, StageScripting, StageSynthesis, StageRendering}

// Status is the overall project status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// ResultStatus is the outcome of a single stage.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPartial   ResultStatus = "partial"
)

// Project is the checkpointed state of one slide-to-video conversion.
type Project struct {
	SchemaVersion int                   `json:"schemaVersion"`
	ProjectID     string                `json:"projectId"`
	Stage         Stage                 `json:"stage"`
	Status        Status                `json:"status"`
	Current       int                   `json:"current"`
	Total         int                   `json:"total"`
	Details       string                `json:"details"`
	Timestamp     time.Time             `json:"timestamp"`
	Results       map[Stage]StageResult `json:"results"`
}

// Known reports whether p came from a real record rather than the unknown sentinel.
func (p Project) Known() bool {
	return p.Stage != StageUnknown
}

func (p Project) clone() Project {
	out := p
	out.Results = maps.Clone(p.Results)
	if out.Results == nil {
		out.Results = map[Stage]StageResult{}
	}
	return out
}

// Unknown is the sentinel returned for project ids with no checkpoint.
func Unknown(id string) Project {
	return Project{
		SchemaVersion: CurrentSchemaVersion,
		ProjectID:     id,
		Stage:         StageUnknown,
		Status:        StatusUnknown,
		Details:       "no status information",
		Results:       map[Stage]StageResult{},
	}
}

func newProject(id string, stage Stage) *Project {
	return &Project{
		SchemaVersion: CurrentSchemaVersion,
		ProjectID:     id,
		Stage:         stage,
		Status:        StatusPending,
		Results:       map[Stage]StageResult{},
	}
}
