// Package secrets redacts credentials from extracted document text before it
// is embedded and indexed, using the Gitleaks default rule set.
//
// Detected secrets are replaced with [REDACTED:<rule-id>:<preview>] markers
// so the surrounding text keeps its meaning for retrieval. An optional TOML
// allowlist in Gitleaks format excludes known-safe patterns:
//
//	[allowlist]
//	regexes = ['''DEMO_[A-Z_]+''']
package secrets
