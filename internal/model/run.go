package model

// RunState is a step of the pipeline state machine.
type RunState string

const (
	StateFetching        RunState = "fetching"
	StateNormalizing     RunState = "normalizing"
	StatePersisting      RunState = "persisting"
	StateLoadingPrevious RunState = "loading_previous"
	StateDiffing         RunState = "diffing"
	StateReporting       RunState = "reporting"
	StatePublishing      RunState = "publishing"
	StateDone            RunState = "done"
	StateFailed          RunState = "failed"
)

// RunStatus is the coarse status recorded in the run log.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether s ends a run.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
