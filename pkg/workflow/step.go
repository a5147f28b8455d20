// Package workflow models runs of ordered portal steps and executes them:
// readiness checks route unrunnable steps to skipped, ready steps run in
// declared order under a shared error policy, and every state change is
// published to the progress bus.
package workflow

import (
	"fmt"
)

// ActionType identifies what a step does on the portals.
type ActionType string

const (
	ActionUploadAsset  ActionType = "upload_asset"  // ActionUploadAsset stages a local file into a vault folder.
	ActionShareAsset   ActionType = "share_asset"   // ActionShareAsset shares selected vault files with recipients.
	ActionComment      ActionType = "comment"       // ActionComment posts a comment, with mentions, on a vault file.
	ActionUpdateStatus ActionType = "update_status" // ActionUpdateStatus sets the tracker project status.
	ActionLogHours     ActionType = "log_hours"     // ActionLogHours records a tracker time entry.
)

// Known reports whether the action type is one the engine can execute.
func (a ActionType) Known() bool {
	switch a {
	case ActionUploadAsset, ActionShareAsset, ActionComment, ActionUpdateStatus, ActionLogHours:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StepPending StepStatus = "pending" // StepPending means the step has not been evaluated yet.
	StepRunning StepStatus = "running" // StepRunning means the step's primitives are executing.
	StepSuccess StepStatus = "success" // StepSuccess means the step completed and verified.
	StepError   StepStatus = "error"   // StepError means the step failed after retries.
	StepSkipped StepStatus = "skipped" // StepSkipped means prerequisites were missing and nothing ran.
)

// Terminal reports whether the status is final.
func (s StepStatus) Terminal() bool {
	return s == StepSuccess || s == StepError || s == StepSkipped
}

// legalStepTransitions encodes the step lifecycle: a pending step either
// starts or is skipped, a running step resolves exactly once.
var legalStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {StepRunning: true, StepSkipped: true},
	StepRunning: {StepSuccess: true, StepError: true},
}

func canTransition(from, to StepStatus) bool {
	return legalStepTransitions[from][to]
}

// Selection names files within one vault folder. FileName matches by
// case-insensitive containment, or as a glob pattern when it contains
// glob metacharacters.
type Selection struct {
	Folder   string `json:"folder" yaml:"folder"`
	FileName string `json:"fileName" yaml:"fileName"`
}

// StepParams carries the action-specific parameters. One flat struct rather
// than per-action types because later steps read values earlier steps staged
// (an upload's file name feeds the share selection).
type StepParams struct {
	// Vault placement and file identity.
	Folder       string      `json:"folder,omitempty" yaml:"folder,omitempty"`
	AssetZipPath string      `json:"assetZipPath,omitempty" yaml:"assetZipPath,omitempty"`
	Selections   []Selection `json:"selections,omitempty" yaml:"selections,omitempty"`
	FileName     string      `json:"fileName,omitempty" yaml:"fileName,omitempty"`

	// Sharing and commenting.
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
	Teams      []string `json:"teams,omitempty" yaml:"teams,omitempty"`
	Permission string   `json:"permission,omitempty" yaml:"permission,omitempty"`
	Text       string   `json:"text,omitempty" yaml:"text,omitempty"`
	Mentions   []string `json:"mentions,omitempty" yaml:"mentions,omitempty"`

	// Tracker updates.
	Project string  `json:"project,omitempty" yaml:"project,omitempty"`
	Status  string  `json:"status,omitempty" yaml:"status,omitempty"`
	Hours   float64 `json:"hours,omitempty" yaml:"hours,omitempty"`
	Note    string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// Step is one unit of action within a run.
type Step struct {
	Action  ActionType `json:"action" yaml:"action"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
	Params  StepParams `json:"params" yaml:"params"`
	Status  StepStatus `json:"status,omitempty" yaml:"-"`
	Message string     `json:"message,omitempty" yaml:"-"`
}

// Name returns the step's display name.
func (s *Step) Name() string {
	return string(s.Action)
}

// Validate rejects steps the engine cannot execute at all. Missing
// parameters are not validation errors; they route the step to skipped at
// run time.
func (s *Step) Validate() error {
	if !s.Action.Known() {
		return fmt.Errorf("unknown action type %q", s.Action)
	}
	return nil
}

// MissingPrereq returns why the step cannot run, or "" when its required
// parameters are present. A step failing this check never runs with empty
// parameters; it is skipped before any primitive is invoked.
func (s *Step) MissingPrereq() string {
	switch s.Action {
	case ActionUploadAsset:
		if s.Params.AssetZipPath == "" {
			return "no staged asset file"
		}
	case ActionShareAsset:
		if len(s.Params.Selections) == 0 {
			return "no file selections"
		}
		if len(s.Params.Recipients) == 0 && len(s.Params.Teams) == 0 {
			return "no recipients"
		}
	case ActionComment:
		if s.Params.FileName == "" {
			return "no target file"
		}
		if s.Params.Text == "" && len(s.Params.Mentions) == 0 && len(s.Params.Teams) == 0 {
			return "no comment content"
		}
	case ActionUpdateStatus:
		if s.Params.Status == "" {
			return "no status value"
		}
	case ActionLogHours:
		if s.Params.Hours <= 0 {
			return "no hours value"
		}
	}
	return ""
}
