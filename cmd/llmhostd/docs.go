package main

// General API documentation for swaggo. Regenerate internal/httpapi/docs
// with `swag init -g cmd/llmhostd/docs.go -o internal/httpapi/docs`.
//
// @title           llmhost API
// @version         1.0
// @description     HTTP API for a single on-device LLM inference engine.
//
// @contact.name   llmhost maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
