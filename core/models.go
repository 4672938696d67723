package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Hex returns the ID as a fixed-width hexadecimal string.
func (id ID) Hex() string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return hex.EncodeToString(buf[:])
}

// ChunkKey returns the stable identity of the chunk at position index of a document.
// Re-processing the same document with the same splitter settings yields the same keys,
// which is what makes upserts overwrite instead of duplicate.
func ChunkKey(documentID string, index int) ID {
	return IDFromContent(documentID + "#" + strconv.Itoa(index))
}

// CollectionFor returns the index collection that holds the chunks of a document.
func CollectionFor(prefix, documentURL string) string {
	return prefix + "_" + IDFromContent(documentURL).Hex()
}

// JobState is the lifecycle state of an ingestion job.
type JobState string

const (
	// JobStateWaiting means the job is queued and ready to run.
	JobStateWaiting JobState = "waiting"
	// JobStateActive means a worker is executing the job.
	JobStateActive JobState = "active"
	// JobStateCompleted is terminal: the job succeeded and carries a result.
	JobStateCompleted JobState = "completed"
	// JobStateFailed is terminal: the attempt cap was reached or the error was permanent.
	JobStateFailed JobState = "failed"
	// JobStateDelayed means a retry is pending until NextRunAt.
	JobStateDelayed JobState = "delayed"
)

// Terminal reports whether no further transitions can happen from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// IngestionJob is a unit of work on the durable queue.
type IngestionJob struct {
	Id          string
	SourceURL   string
	SavedPath   string
	Collection  string
	Questions   []string  // Present for async submissions; answered once ingestion completes
	EnqueuedAt  time.Time // When the job was accepted by the queue
	UpdatedAt   time.Time // Last state transition
	State       JobState
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time // When a waiting or delayed job becomes eligible to run
	LastError   string
	Result      *JobResult // Only set in the completed state
}

// JobResult is the success payload of a completed job.
type JobResult struct {
	Success     bool
	Chunks      int
	Answers     []string
	CompletedAt time.Time
}

// DocumentChunk is a bounded, overlapping slice of a parsed document page.
type DocumentChunk struct {
	Key        ID
	DocumentID string // Source URL of the originating document
	Index      int    // Position of the chunk within the whole document
	Text       string
	Overlap    int // Runes shared with the preceding chunk of the same page
	Page       int // 1-based page or section number
	Offset     int // Rune offset of Text within its page
}

// EmbeddedChunk pairs a chunk with the embedding of its text.
type EmbeddedChunk struct {
	Chunk  DocumentChunk
	Vector []float32
}

// ScoredChunk is a similarity search hit.
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float32
}

// Page is one unit of parsed document text.
type Page struct {
	Number int
	Text   string
}

// QueryRequest asks a set of questions against one document.
// Order is significant: answers align positionally with questions.
type QueryRequest struct {
	DocumentURL string
	Questions   []string
}

// QueryResult holds one answer per question, in question order.
type QueryResult struct {
	Answers []string
}
