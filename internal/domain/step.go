package domain

import "math"

// Step is the pipeline position of a task. It is written by the processor
// together with the display message and is the only input for progress and
// wait estimates.
type Step string

// Pipeline steps in execution order, framed by queued and done.
const (
	StepQueued            Step = "queued"
	StepFetchData         Step = "fetch_data"
	StepContentGeneration Step = "content_generation"
	StepImageGeneration   Step = "image_generation"
	StepDone              Step = "done"
)

// Step states reported to polling clients.
const (
	StepStatePending    = "pending"
	StepStateProcessing = "processing"
	StepStateCompleted  = "completed"
	StepStateFailed     = "failed"
)

// PendingEstimateSeconds is the advisory wait charged for each task queued ahead.
const PendingEstimateSeconds = 5

type stepSpec struct {
	step Step
	// weight is the share of overall progress in percent.
	weight int
	// remainingSeconds is the queue estimate for a processing task sitting in this step.
	remainingSeconds int
	// durationMillis is the typical duration reported in the step list.
	durationMillis int
}

var pipeline = []stepSpec{
	{step: StepFetchData, weight: 20, remainingSeconds: 10, durationMillis: 3000},
	{step: StepContentGeneration, weight: 50, remainingSeconds: 30, durationMillis: 15000},
	{step: StepImageGeneration, weight: 30, remainingSeconds: 10, durationMillis: 2000},
}

// EstimatedTotalMillis is the typical end-to-end pipeline duration.
const EstimatedTotalMillis = 20000

// ParseStep reports whether s names a known step.
func ParseStep(s string) (Step, bool) {
	switch st := Step(s); st {
	case StepQueued, StepFetchData, StepContentGeneration, StepImageGeneration, StepDone:
		return st, true
	default:
		return "", false
	}
}

func stepIndex(step Step) int {
	switch step {
	case StepQueued:
		return -1
	case StepDone:
		return len(pipeline)
	}
	for i, spec := range pipeline {
		if spec.step == step {
			return i
		}
	}
	return -1
}

// RemainingSeconds estimates how long a processing task in step still needs.
// A task that has been claimed but not started is charged the pending estimate.
func RemainingSeconds(step Step) int {
	for _, spec := range pipeline {
		if spec.step == step {
			return spec.remainingSeconds
		}
	}
	if step == StepDone {
		return 0
	}
	return PendingEstimateSeconds
}

// Progress returns overall completion in percent. Completed tasks are 100,
// pending and failed tasks 0. For processing tasks every earlier step counts
// fully and the current step counts half of its weight.
func Progress(status TaskStatus, step Step) int {
	switch status {
	case TaskStatusCompleted:
		return 100
	case TaskStatusProcessing:
	default:
		return 0
	}

	current := stepIndex(step)
	var total float64
	for i, spec := range pipeline {
		switch {
		case i < current:
			total += float64(spec.weight)
		case i == current:
			total += float64(spec.weight) * 0.5
		}
	}
	return int(math.Round(total))
}

// StepState describes one pipeline step for status responses.
type StepState struct {
	Name   Step   `json:"name"`
	Status string `json:"status"`
	Time   int    `json:"time"`
}

// StepStates lists every pipeline step with its state for a task.
func StepStates(status TaskStatus, step Step) []StepState {
	current := stepIndex(step)
	states := make([]StepState, 0, len(pipeline))
	for i, spec := range pipeline {
		state := StepStatePending
		switch {
		case status == TaskStatusCompleted, i < current:
			state = StepStateCompleted
		case i == current && status == TaskStatusFailed:
			state = StepStateFailed
		case i == current && status == TaskStatusProcessing:
			state = StepStateProcessing
		}
		states = append(states, StepState{Name: spec.step, Status: state, Time: spec.durationMillis})
	}
	return states
}
