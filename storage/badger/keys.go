package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/docrag/core"
)

// Key prefixes for different data types
const (
	jobPrefix       = "job"
	jobReadyPrefix  = "jobrdy"
	jobActivePrefix = "jobact"
	collPrefix      = "coll"
	chunkPrefix     = "chunk"
)

// makeJobKey generates a key for a job record by Id.
func makeJobKey(id string) []byte {
	return []byte(jobPrefix + ":" + id)
}

// makeJobReadyKey generates a composite key for the ready index.
// Format: prefix:runAt:id
func makeJobReadyKey(runAt time.Time, id string) []byte {
	prefix := []byte(jobReadyPrefix + ":")
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(runAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// parseJobReadyKey extracts the run time and job Id from a ready index key.
func parseJobReadyKey(key []byte) (time.Time, string, bool) {
	prefixLen := len(jobReadyPrefix) + 1
	if len(key) < prefixLen+8 {
		return time.Time{}, "", false
	}
	micro := binary.BigEndian.Uint64(key[prefixLen : prefixLen+8])
	return time.UnixMicro(int64(micro)), string(key[prefixLen+8:]), true
}

// makeJobActiveKey generates a key for the active job index.
func makeJobActiveKey(id string) []byte {
	return []byte(jobActivePrefix + ":" + id)
}

// makeCollectionKey generates a key for collection metadata.
func makeCollectionKey(collection string) []byte {
	return []byte(collPrefix + ":" + collection)
}

// makeChunkPrefix generates the key prefix shared by all chunks of a collection.
func makeChunkPrefix(collection string) []byte {
	return []byte(chunkPrefix + ":" + collection + ":")
}

// makeChunkKey generates a key for a chunk within a collection.
// Format: prefix:collection:key
func makeChunkKey(collection string, key core.ID) []byte {
	prefix := makeChunkPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(key))
	return buf
}
