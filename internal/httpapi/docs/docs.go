// Package docs holds the OpenAPI description served under /swagger. It is
// regenerated with `swag init -g cmd/llmhostd/docs.go -o internal/httpapi/docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "llmhost maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {"get": {"tags": ["probes"], "summary": "Liveness probe", "produces": ["text/plain"], "responses": {"200": {"description": "ok"}}}},
        "/readyz": {"get": {"tags": ["probes"], "summary": "Readiness probe; ready once a model is loaded and usable", "produces": ["text/plain"], "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}}},
        "/models": {"get": {"tags": ["models"], "summary": "List models found in the models directory", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/status": {"get": {"tags": ["status"], "summary": "Engine, model, queue and device status", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}},
        "/load": {"post": {"tags": ["models"], "summary": "Load a model, replacing the current one", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.LoadRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoadedModel"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/unload": {"post": {"tags": ["models"], "summary": "Unload the model; also recovers an engine poisoned by a native fault", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MessageResponse"}}}}},
        "/cancel": {"post": {"tags": ["inference"], "summary": "Cancel the running generation", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MessageResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/chat": {"post": {"tags": ["inference"], "summary": "Chat completion streamed as NDJSON", "description": "Streams one types.ProgressLine per progress event followed by a final types.ChatDone.",
            "consumes": ["application/json"], "produces": ["application/x-ndjson"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatDone"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}},
        "/v1/models": {"get": {"tags": ["openai"], "summary": "List models in the OpenAI format", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/v1/chat/completions": {"post": {"tags": ["openai"], "summary": "OpenAI-compatible chat completion",
            "description": "With stream set, responds with server-sent events carrying chat.completion.chunk objects and a final [DONE].",
            "consumes": ["application/json"], "produces": ["application/json", "text/event-stream"],
            "responses": {"200": {"description": "OK"},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}}}}
    },
    "definitions": {
        "types.ChatMessage": {"type": "object", "properties": {"role": {"type": "string", "example": "user"}, "content": {"type": "string", "example": "Write a haiku about the ocean."}}},
        "types.ChatRequest": {"type": "object", "properties": {
            "model": {"type": "string"}, "messages": {"type": "array", "items": {"$ref": "#/definitions/types.ChatMessage"}},
            "max_tokens": {"type": "integer", "example": 256}, "temperature": {"type": "number", "example": 0.7},
            "top_p": {"type": "number", "example": 0.95}, "top_k": {"type": "integer", "example": 40},
            "min_p": {"type": "number", "example": 0.05}, "repeat_penalty": {"type": "number", "example": 1.1},
            "seed": {"type": "integer", "example": 42}, "gpu_offload_percent": {"type": "integer", "example": 80}}},
        "types.ProgressLine": {"type": "object", "properties": {"phase": {"type": "string", "example": "generating:12.5"}, "tokens": {"type": "integer"}, "text": {"type": "string"}}},
        "types.Usage": {"type": "object", "properties": {"prompt_tokens": {"type": "integer"}, "completion_tokens": {"type": "integer"}, "total_tokens": {"type": "integer"}}},
        "types.ChatDone": {"type": "object", "properties": {"done": {"type": "boolean"}, "content": {"type": "string"}, "finish_reason": {"type": "string", "example": "stop"},
            "usage": {"$ref": "#/definitions/types.Usage"}, "perf": {"type": "string"}, "error": {"type": "string"}}},
        "types.LoadRequest": {"type": "object", "properties": {"model": {"type": "string"}, "gpu_offload_percent": {"type": "integer"}, "context_size": {"type": "integer"}, "threads": {"type": "integer"}}},
        "types.LoadedModel": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "projector_path": {"type": "string"},
            "gpu_offload_percent": {"type": "integer"}, "gpu_layers": {"type": "integer"}, "threads": {"type": "integer"}, "context_size": {"type": "integer"}}},
        "types.Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "quant": {"type": "string"},
            "family": {"type": "string"}, "layers": {"type": "integer"}, "context_length": {"type": "integer"}, "projector_path": {"type": "string"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.Device": {"type": "object", "properties": {"name": {"type": "string"}, "description": {"type": "string"}, "kind": {"type": "string"}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "lifecycle": {"type": "string"}, "model": {"$ref": "#/definitions/types.LoadedModel"},
            "devices": {"type": "array", "items": {"$ref": "#/definitions/types.Device"}}, "device_info": {"type": "string"}, "perf": {"type": "string"},
            "queue_len": {"type": "integer"}, "inflight": {"type": "integer"}, "max_queue_depth": {"type": "integer"}, "last_error": {"type": "string"},
            "uptime_seconds": {"type": "integer"}, "server_time_unix": {"type": "integer"}, "loads_total": {"type": "integer"}, "faults_total": {"type": "integer"}}},
        "types.MessageResponse": {"type": "object", "properties": {"status": {"type": "string"}}},
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "llmhost API",
	Description:      "HTTP API for a single on-device LLM inference engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
