package engine

// Token is a vocabulary id.
type Token int32

// DeviceKind classifies a compute device reported by the runtime.
type DeviceKind string

const (
	DeviceCPU   DeviceKind = "CPU"
	DeviceGPU   DeviceKind = "GPU"
	DeviceIGPU  DeviceKind = "IGPU"
	DeviceAccel DeviceKind = "ACCEL"
)

// Device is one registered compute device.
type Device struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Kind        DeviceKind `json:"kind"`
}

// Accelerated reports whether layers can be offloaded to the device.
func (d Device) Accelerated() bool {
	return d.Kind == DeviceGPU || d.Kind == DeviceIGPU || d.Kind == DeviceAccel
}

// ModelParams configures a full model load.
type ModelParams struct {
	Path string
	// GPULayers is the number of layers to offload; -1 offloads all.
	GPULayers int
}

// ContextParams configures an execution context.
type ContextParams struct {
	Size           int
	Batch          int
	MicroBatch     int
	Threads        int
	BatchThreads   int
	FlashAttention bool
}

// MultimodalParams configures the projector subsystem.
type MultimodalParams struct {
	Path           string
	Threads        int
	UseGPU         bool
	Warmup         bool
	ImageMaxTokens int
}

// Batch is a group of tokens submitted to Context.Decode. Positions and
// Logits are parallel to Tokens.
type Batch struct {
	Tokens    []Token
	Positions []int
	Logits    []bool
}

// PerfData mirrors the runtime's context performance counters.
type PerfData struct {
	PromptEvalMs float64
	EvalMs       float64
	PromptTokens int
	EvalTokens   int
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Runtime is the inference library the engine drives. Implementations may
// raise faults (see package fault) from any Model/Context/Sampler method
// that is called during inference.
type Runtime interface {
	// LoadBackend loads one acceleration plugin and returns its registered name.
	LoadBackend(name string) (string, error)
	// InitBackend initializes shared runtime state. Called once.
	InitBackend()
	Devices() []Device
	SystemInfo() string
	LoadModel(p ModelParams) (Model, error)
	NewContext(m Model, p ContextParams) (Context, error)
	InitMultimodal(m Model, p MultimodalParams) (Multimodal, error)
}

// Model is a loaded set of weights plus vocabulary.
type Model interface {
	// ChatTemplate returns the model's default template, if it has one.
	ChatTemplate() (string, bool)
	// ApplyTemplate renders msgs with tmpl, optionally opening an assistant turn.
	ApplyTemplate(tmpl string, msgs []Message, addAssistant bool) (string, error)
	Tokenize(text string, addSpecial, parseSpecial bool) ([]Token, error)
	IsEOG(t Token) bool
	// Piece decodes a single token to text.
	Piece(t Token) string
	// Meta returns a metadata string value such as general.name.
	Meta(key string) (string, bool)
	Free()
}

// Context is per-session execution state.
type Context interface {
	Size() int
	Decode(b Batch) error
	NewSampler(cfg SamplingConfig) Sampler
	// ClearMemory drops all cached state (the KV cache).
	ClearMemory()
	Perf() PerfData
	Free()
}

// Sampler picks tokens from the context's latest logits.
type Sampler interface {
	Sample() Token
	Accept(t Token)
	Free()
}

// Multimodal is the optional projector bound to a model.
type Multimodal interface {
	Free()
}
