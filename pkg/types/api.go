package types

// ChatMessage is one conversation turn.
type ChatMessage struct {
	// Speaker role, e.g. system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Message text.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatRequest is the payload of POST /chat. Omitted sampling fields take the
// server defaults (temperature 0.7, top_p 0.95, top_k 40, min_p 0.05,
// repeat_penalty 1.1).
type ChatRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Model string `json:"model,omitempty" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Conversation in order.
	Messages []ChatMessage `json:"messages"`
	// Maximum number of new tokens to generate; 0 means 2048.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Min-P sampling threshold.
	// example: 0.05
	MinP *float64 `json:"min_p,omitempty" example:"0.05"`
	// Penalty applied to recently generated tokens.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Random seed for reproducibility; 0 or omitted lets the server choose.
	// example: 42
	Seed uint32 `json:"seed,omitempty" example:"42"`
	// GPU offload percentage used if the model has to be loaded.
	// example: 80
	GPUOffloadPercent *int `json:"gpu_offload_percent,omitempty" example:"80"`
}

// ProgressLine is one streamed NDJSON progress record.
type ProgressLine struct {
	// prompt_eval, generating, or generating:<tokens/s>.
	// example: generating:12.5
	Phase string `json:"phase" example:"generating:12.5"`
	// Tokens generated so far.
	// example: 3
	Tokens int `json:"tokens" example:"3"`
	// The newly generated text piece, if any.
	// example: Hello
	Text string `json:"text,omitempty" example:"Hello"`
}

// Usage counts tokens for one completion.
type Usage struct {
	// example: 21
	PromptTokens int `json:"prompt_tokens" example:"21"`
	// example: 64
	CompletionTokens int `json:"completion_tokens" example:"64"`
	// example: 85
	TotalTokens int `json:"total_tokens" example:"85"`
}

// ChatDone is the final NDJSON line of a /chat stream.
type ChatDone struct {
	// Always true.
	Done bool `json:"done" example:"true"`
	// Full generated text.
	Content string `json:"content"`
	// stop, length, cancelled (explicit cancel), decode_error (partial output)
	// or error.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	Usage        Usage  `json:"usage"`
	// Cumulative throughput of the loaded context.
	// example: Prompt: 21 tok, 180.2 tok/s | Gen: 64 tok, 14.9 tok/s
	Perf string `json:"perf" example:"Prompt: 21 tok, 180.2 tok/s | Gen: 64 tok, 14.9 tok/s"`
	// Set when generation failed after streaming had started; FinishReason
	// is then "error".
	Error string `json:"error,omitempty"`
}

// LoadRequest is the payload of POST /load.
type LoadRequest struct {
	// Model identifier from GET /models.
	// example: gemma-3-4b-it-Q4_K_M.gguf
	Model string `json:"model" example:"gemma-3-4b-it-Q4_K_M.gguf"`
	// Percentage of layers to offload to the GPU; omitted uses the server default.
	// example: 80
	GPUOffloadPercent *int `json:"gpu_offload_percent,omitempty" example:"80"`
	// Context window in tokens; 0 uses the server default.
	// example: 4096
	ContextSize int `json:"context_size,omitempty" example:"4096"`
	// Worker threads; 0 picks from the online CPUs.
	// example: 4
	Threads int `json:"threads,omitempty" example:"4"`
}

// LoadedModel describes the model the engine currently holds.
type LoadedModel struct {
	// example: gemma-3-4b-it-Q4_K_M.gguf
	ID string `json:"id" example:"gemma-3-4b-it-Q4_K_M.gguf"`
	// general.name metadata.
	// example: Gemma 3 4B IT
	Name string `json:"name,omitempty" example:"Gemma 3 4B IT"`
	// example: /home/user/models/gemma-3-4b-it-Q4_K_M.gguf
	Path          string `json:"path" example:"/home/user/models/gemma-3-4b-it-Q4_K_M.gguf"`
	ProjectorPath string `json:"projector_path,omitempty"`
	// example: 80
	GPUOffloadPercent int `json:"gpu_offload_percent" example:"80"`
	// Layers offloaded; -1 means all.
	// example: 27
	GPULayers int `json:"gpu_layers" example:"27"`
	// example: 6
	Threads int `json:"threads" example:"6"`
	// example: 2048
	ContextSize int `json:"context_size" example:"2048"`
}

// Device is a compute device reported by the runtime.
type Device struct {
	// example: Vulkan0
	Name string `json:"name" example:"Vulkan0"`
	// example: Adreno (TM) 750
	Description string `json:"description" example:"Adreno (TM) 750"`
	// CPU, GPU, IGPU or ACCEL.
	// example: GPU
	Kind string `json:"kind" example:"GPU"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall manager state: unloaded, loading, ready, inferring or error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Engine lifecycle: unloaded, loaded or poisoned.
	// example: loaded
	Lifecycle string `json:"lifecycle" example:"loaded"`
	// Model currently loaded, if any.
	Model *LoadedModel `json:"model,omitempty"`
	// Devices found at backend init.
	Devices []Device `json:"devices,omitempty"`
	// example: GPU (Adreno (TM) 750)
	DeviceInfo string `json:"device_info,omitempty" example:"GPU (Adreno (TM) 750)"`
	// Throughput after the most recent inference.
	Perf string `json:"perf,omitempty"`
	// Requests waiting for the engine.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently generating (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Native faults trapped since start.
	// example: 0
	FaultsTotal uint64 `json:"faults_total" example:"0"`
}

// MessageResponse is a short acknowledgement.
type MessageResponse struct {
	// example: cancel requested
	Status string `json:"status" example:"cancel requested"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
