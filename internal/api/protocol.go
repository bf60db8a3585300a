package api

import (
	"slices"
	"strconv"
)

// Message names sent to the server.
const (
	MsgListProjects           = "list_projects"
	MsgCreateProject          = "create_project"
	MsgGetInputParams         = "get_input_params"
	MsgLaunchOptimizer        = "launch_optimizer"
	MsgResetOptimizer         = "reset_optimizer"
	MsgPullStatus             = "pull_status"
	MsgGetWorkQueueStatus     = "get_workqueue_status"
	MsgGetOptimizerState      = "get_optimizer_state"
	MsgGetAllTargetsInfo      = "get_all_targets_info"
	MsgGetFinalForceFieldInfo = "get_final_forcefield_info"
	MsgGetTargetObjectiveData = "get_target_objective_data"
)

// Push event names sent by the server.
const (
	EventStatus          = "update_status"            // optimizer status changed
	EventWorkQueueStatus = "update_work_queue_status" // work queue counters changed
	EventOptimizerState  = "update_opt_state"         // a new iteration finished
)

// Status is the optimizer state of a project.
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusError    Status = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusFinished, StatusError:
		return true
	}
	return false
}

// ProjectInfo is one entry of a project listing.
type ProjectInfo struct {
	ProjectName string `json:"projectName" yaml:"project_name"`
	Status      Status `json:"status,omitempty" yaml:"status,omitempty"`
}

// InputParams are the options parsed from a project's input file.
type InputParams struct {
	GenOpt  map[string]any            `json:"gen_opt" yaml:"gen_opt"`
	Priors  map[string]any            `json:"priors" yaml:"priors"`
	TgtOpts map[string]map[string]any `json:"tgt_opts" yaml:"tgt_opts"`
}

// StatusUpdate is the payload of EventStatus.
type StatusUpdate struct {
	ProjectName string `json:"projectName" yaml:"project_name"`
	Status      Status `json:"status" yaml:"status"`
}

// WorkQueueStatus reports worker and job counters of the work queue.
type WorkQueueStatus struct {
	ProjectName   string `json:"projectName,omitempty" yaml:"project_name,omitempty"`
	Code          string `json:"code,omitempty" yaml:"code,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
	WorkerRunning int    `json:"worker_running" yaml:"worker_running"`
	WorkerTotal   int    `json:"worker_total" yaml:"worker_total"`
	JobFinished   int    `json:"job_finished" yaml:"job_finished"`
	JobTotal      int    `json:"job_total" yaml:"job_total"`
}

// ObjectiveTerm is one target's contribution to the objective.
type ObjectiveTerm struct {
	X    float64   `json:"x" yaml:"x"`
	W    float64   `json:"w" yaml:"w"`
	Grad []float64 `json:"grad,omitempty" yaml:"grad,omitempty"`
}

// IterationState is the optimizer output of one iteration.
type IterationState struct {
	ObjDict      map[string]ObjectiveTerm `json:"objdict" yaml:"objdict"`
	ObjTotal     float64                  `json:"objTotal" yaml:"obj_total"`
	ParamUpdates map[string]any           `json:"paramUpdates,omitempty" yaml:"param_updates,omitempty"`
}

// OptimizerState maps iteration numbers (as decimal strings) to results.
type OptimizerState map[string]IterationState

// Iterations returns the iteration numbers in ascending order. Keys that
// are not integers are skipped.
func (s OptimizerState) Iterations() []int {
	iters := make([]int, 0, len(s))
	for k := range s {
		if n, err := strconv.Atoi(k); err == nil {
			iters = append(iters, n)
		}
	}
	slices.Sort(iters)
	return iters
}

// Latest returns the state of the highest iteration.
func (s OptimizerState) Latest() (int, IterationState, bool) {
	iters := s.Iterations()
	if len(iters) == 0 {
		return 0, IterationState{}, false
	}
	n := iters[len(iters)-1]
	return n, s[strconv.Itoa(n)], true
}

// TargetInfo describes one fitting target.
type TargetInfo struct {
	Type string `json:"type" yaml:"type"`
}

// ForceFieldInfo is the final optimized force field.
type ForceFieldInfo struct {
	Filenames     []string  `json:"filenames" yaml:"filenames"`
	ParamNames    []string  `json:"plist" yaml:"param_names"`
	InitialValues []float64 `json:"pvals0" yaml:"initial_values"`
	Values        []float64 `json:"pvals" yaml:"values"`
	Priors        []float64 `json:"priors" yaml:"priors"`
	RawText       string    `json:"raw_text" yaml:"raw_text"`
	PriorRules    any       `json:"prior_rules,omitempty" yaml:"prior_rules,omitempty"`
}

// ObjectiveDataRequest selects the objective data of one target at one
// iteration.
type ObjectiveDataRequest struct {
	ProjectName string `json:"projectName"`
	TargetName  string `json:"targetName"`
	Iteration   int    `json:"iteration"`
}

// ObjectiveData compares QM and MM energies for a target.
type ObjectiveData struct {
	QMEnergies []float64 `json:"qm_energies" yaml:"qm_energies"`
	MMEnergies []float64 `json:"mm_energies" yaml:"mm_energies"`
	Diff       []float64 `json:"diff" yaml:"diff"`
	Weights    []float64 `json:"weights" yaml:"weights"`
}
