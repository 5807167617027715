package manager

// State represents the lifecycle state of the manager.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateInferring State = "inferring"
	StateError     State = "error"
)

// ModelInfo is the manager's view of the loaded model.
type ModelInfo struct {
	ID                string
	Name              string
	Path              string
	ProjectorPath     string
	GPUOffloadPercent int
	GPULayers         int
	Threads           int
	ContextSize       int
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}

// Completion is the outcome of one Generate call.
type Completion struct {
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	Perf             string
}
