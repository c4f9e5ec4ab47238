// Package model defines the provider-agnostic abstractions for interacting
// with language models inside journalmesh.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests and demos (ScriptedModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement the Model interface from
// this package so agents remain decoupled from vendor SDKs.
package model
