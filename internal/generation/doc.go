// Package generation produces grounded answers from a (system, user) prompt
// pair through a langchaingo llms.Model.
//
// Generation is single-turn and non-streaming. Providers are selected by
// chat.provider: openai (default model gpt-4o-mini) or ollama.
package generation
