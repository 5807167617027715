package types

// Model represents a discoverable or loadable LLM model on disk.
type Model struct {
	// Stable identifier for the model: its file name.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Human-friendly name from general.name, or the file stem.
	// example: TinyLlama 1.1B Chat
	Name string `json:"name" example:"TinyLlama 1.1B Chat"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Quantization level parsed from the file name.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Architecture from general.architecture (e.g., llama, gemma3, qwen2).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// Transformer block count, used to plan GPU offload.
	// example: 22
	Layers int `json:"layers,omitempty" example:"22"`
	// Training context length declared by the model.
	// example: 2048
	ContextLength int `json:"context_length,omitempty" example:"2048"`
	// Absolute path of the paired multimodal projector, if any.
	// example: /home/user/models/mmproj-gemma-3-4b-it-f16.gguf
	ProjectorPath string `json:"projector_path,omitempty" example:"/home/user/models/mmproj-gemma-3-4b-it-f16.gguf"`
}
