// Package reindex re-embeds the chunks of an existing collection into a new
// collection. It is used when the embedding model changes: a collection holds
// vectors of one dimension only, so new embeddings must go to a fresh target.
//
// Chunks are read in batches, embedded with bounded exponential-backoff
// retries, normalized and upserted with their original keys, so a re-run
// overwrites rather than duplicates.
package reindex
