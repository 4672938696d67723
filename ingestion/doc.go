// Package ingestion turns a queued IngestionJob into indexed chunks.
//
// A Worker runs the stages of one job in order:
//   - download the source document to the job's saved path
//   - parse it into ordered pages (PDF, HTML or plain text)
//   - split pages into overlapping fixed-size chunks
//   - embed chunk texts in concurrent batches
//   - upsert the embedded chunks into the job's collection
//
// Chunk keys are derived from the document URL and chunk position, so
// processing the same document twice overwrites rather than duplicates.
package ingestion
