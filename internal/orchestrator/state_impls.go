package orchestrator

// IdleState - constructed, no pass running
type IdleState struct{}

func (s *IdleState) Name() string { return "idle" }
func (s *IdleState) ToLoadCheckpoints() *LoadCheckpointsState {
	return &LoadCheckpointsState{}
}

// LoadCheckpointsState - reading checkpoints and catalog from the manifest
type LoadCheckpointsState struct{}

func (s *LoadCheckpointsState) Name() string { return "load_checkpoints" }
func (s *LoadCheckpointsState) ToFetch() *FetchState {
	return &FetchState{}
}
func (s *LoadCheckpointsState) ToFailed() *FailedState {
	return &FailedState{}
}

// FetchState - bounded fan-out of provider fetches
type FetchState struct{}

func (s *FetchState) Name() string { return "fetch" }
func (s *FetchState) ToNormalize() *NormalizeState {
	return &NormalizeState{}
}
func (s *FetchState) ToFailed() *FailedState {
	return &FailedState{}
}

// NormalizeState - filtering batches and building metric points
type NormalizeState struct{}

func (s *NormalizeState) Name() string { return "normalize" }
func (s *NormalizeState) ToDeliver() *DeliverState {
	return &DeliverState{}
}

// DeliverState - publishing points, one entity×category at a time
type DeliverState struct{}

func (s *DeliverState) Name() string { return "deliver" }
func (s *DeliverState) ToCommitCheckpoints() *CommitCheckpointsState {
	return &CommitCheckpointsState{}
}

// CommitCheckpointsState - committing acknowledged batches and flushing the manifest
type CommitCheckpointsState struct{}

func (s *CommitCheckpointsState) Name() string { return "commit_checkpoints" }
func (s *CommitCheckpointsState) ToDone() *DoneState {
	return &DoneState{}
}
func (s *CommitCheckpointsState) ToFailed() *FailedState {
	return &FailedState{}
}

// Terminal States

// DoneState - pass finished, possibly with entity-scoped failures
type DoneState struct{}

func (s *DoneState) Name() string { return "done" }

// FailedState - pass aborted by a run-scoped error
type FailedState struct{}

func (s *FailedState) Name() string { return "failed" }
