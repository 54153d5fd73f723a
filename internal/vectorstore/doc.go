// Package vectorstore stores chunk embeddings and searches them within a
// tenant scope.
//
// Every read and write is partitioned by Scope (owner, project, document).
// A search never returns points from another scope, and a delete removes
// exactly one scope's points.
//
// Two backends implement Index:
//   - QdrantIndex talks to a Qdrant server over gRPC.
//   - ChromemIndex embeds chromem-go, in memory or persisted to disk.
//
// NewIndex picks one from configuration.
package vectorstore
