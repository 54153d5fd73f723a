// Package embeddings turns text batches into fixed-dimension vectors.
//
// A Gateway wraps one Provider and enforces the batch contract: one provider
// call per invocation, output length and order equal to the input. Providers
// are selected by embedding.provider:
//
//   - openai: langchaingo's OpenAI client (also any OpenAI-compatible server
//     through embedding.base_url)
//   - ollama: langchaingo's Ollama client
//   - tei: HuggingFace Text Embeddings Inference over its /embed route
//   - fastembed: local ONNX models, cgo builds only; the ONNX runtime library
//     must be installed and ONNX_PATH set
//
// Query embeddings can be cached in Redis (embedding.cache_redis_url).
package embeddings
