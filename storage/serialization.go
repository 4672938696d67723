// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"time"

	com "github.com/mus-format/common-go"
	"github.com/mus-format/mus-go"
	slops "github.com/mus-format/mus-go/options/slice"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docrag/core"
)

// MarshalJob serializes an IngestionJob to bytes.
func MarshalJob(job *core.IngestionJob) []byte {
	buf := make([]byte, JobMUS.Size(*job))
	JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes an IngestionJob from bytes.
func UnmarshalJob(data []byte) (*core.IngestionJob, error) {
	job, _, err := JobMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: job: %w", ErrSerializationFailed, err)
	}
	return &job, nil
}

// MarshalEmbeddedChunk serializes an EmbeddedChunk to bytes.
func MarshalEmbeddedChunk(chunk *core.EmbeddedChunk) []byte {
	buf := make([]byte, EmbeddedChunkMUS.Size(*chunk))
	EmbeddedChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalEmbeddedChunk deserializes an EmbeddedChunk from bytes.
func UnmarshalEmbeddedChunk(data []byte) (*core.EmbeddedChunk, error) {
	chunk, _, err := EmbeddedChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalStrings serializes a string slice, such as a list of answers.
func MarshalStrings(v []string) []byte {
	buf := make([]byte, stringsMUS.Size(v))
	stringsMUS.Marshal(v, buf)
	return buf
}

// UnmarshalStrings deserializes a string slice written by MarshalStrings.
func UnmarshalStrings(data []byte) ([]string, error) {
	v, _, err := stringsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: strings: %w", ErrSerializationFailed, err)
	}
	return v, nil
}

const (
	// maxStrings bounds decoded question and answer lists.
	maxStrings = 4096
	// maxVectorDim bounds decoded embedding vectors.
	maxVectorDim = 1 << 16
)

var (
	// JobMUS is the mus serializer for core.IngestionJob.
	JobMUS = jobMUS{}
	// JobResultMUS is the mus serializer for core.JobResult.
	JobResultMUS = jobResultMUS{}
	// EmbeddedChunkMUS is the mus serializer for core.EmbeddedChunk.
	EmbeddedChunkMUS = embeddedChunkMUS{}

	timeMUS    = timeMicroMUS{}
	stringsMUS = ord.NewValidSliceSer(ord.String,
		slops.WithLenValidator[string](maxLen(maxStrings)))
	vectorMUS = ord.NewValidSliceSer(raw.Float32,
		slops.WithLenValidator[float32](maxLen(maxVectorDim)))
	resultPtrMUS = ord.NewPtrSer[core.JobResult](JobResultMUS)
)

var (
	_ mus.Serializer[core.IngestionJob]  = JobMUS
	_ mus.Serializer[core.JobResult]     = JobResultMUS
	_ mus.Serializer[core.EmbeddedChunk] = EmbeddedChunkMUS
)

func maxLen(limit int) com.ValidatorFn[int] {
	return func(length int) error {
		if length > limit {
			return fmt.Errorf("%w: %d exceeds %d", com.ErrTooLargeLength, length, limit)
		}
		return nil
	}
}

// timeMicroMUS encodes times as Unix microseconds. The zero time encodes as 0.
type timeMicroMUS struct{}

func (timeMicroMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(toMicro(t), bs)
}

func (timeMicroMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	micro, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micro == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micro).UTC(), n, nil
}

func (timeMicroMUS) Size(t time.Time) int {
	return varint.Int64.Size(toMicro(t))
}

func (timeMicroMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

func toMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type jobResultMUS struct{}

func (jobResultMUS) Marshal(v core.JobResult, bs []byte) (n int) {
	n = ord.Bool.Marshal(v.Success, bs)
	n += varint.Int.Marshal(v.Chunks, bs[n:])
	n += stringsMUS.Marshal(v.Answers, bs[n:])
	n += timeMUS.Marshal(v.CompletedAt, bs[n:])
	return n
}

func (jobResultMUS) Unmarshal(bs []byte) (v core.JobResult, n int, err error) {
	v.Success, n, err = ord.Bool.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Chunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Answers, n1, err = stringsMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CompletedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (jobResultMUS) Size(v core.JobResult) (size int) {
	size = ord.Bool.Size(v.Success)
	size += varint.Int.Size(v.Chunks)
	size += stringsMUS.Size(v.Answers)
	return size + timeMUS.Size(v.CompletedAt)
}

func (jobResultMUS) Skip(bs []byte) (n int, err error) {
	return skipAll(bs, ord.Bool.Skip, varint.Int.Skip, stringsMUS.Skip, timeMUS.Skip)
}

type jobMUS struct{}

func (jobMUS) Marshal(v core.IngestionJob, bs []byte) (n int) {
	n = ord.String.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.SourceURL, bs[n:])
	n += ord.String.Marshal(v.SavedPath, bs[n:])
	n += ord.String.Marshal(v.Collection, bs[n:])
	n += stringsMUS.Marshal(v.Questions, bs[n:])
	n += timeMUS.Marshal(v.EnqueuedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	n += ord.String.Marshal(string(v.State), bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	n += varint.Int.Marshal(v.MaxAttempts, bs[n:])
	n += timeMUS.Marshal(v.NextRunAt, bs[n:])
	n += ord.String.Marshal(v.LastError, bs[n:])
	n += resultPtrMUS.Marshal(v.Result, bs[n:])
	return n
}

func (jobMUS) Unmarshal(bs []byte) (v core.IngestionJob, n int, err error) {
	v.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.SourceURL, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SavedPath, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Collection, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Questions, n1, err = stringsMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.EnqueuedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var state string
	state, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.State = core.JobState(state)
	v.Attempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MaxAttempts, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.NextRunAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastError, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Result, n1, err = resultPtrMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (jobMUS) Size(v core.IngestionJob) (size int) {
	size = ord.String.Size(v.Id)
	size += ord.String.Size(v.SourceURL)
	size += ord.String.Size(v.SavedPath)
	size += ord.String.Size(v.Collection)
	size += stringsMUS.Size(v.Questions)
	size += timeMUS.Size(v.EnqueuedAt)
	size += timeMUS.Size(v.UpdatedAt)
	size += ord.String.Size(string(v.State))
	size += varint.Int.Size(v.Attempts)
	size += varint.Int.Size(v.MaxAttempts)
	size += timeMUS.Size(v.NextRunAt)
	size += ord.String.Size(v.LastError)
	return size + resultPtrMUS.Size(v.Result)
}

func (jobMUS) Skip(bs []byte) (n int, err error) {
	return skipAll(bs,
		ord.String.Skip, ord.String.Skip, ord.String.Skip, ord.String.Skip,
		stringsMUS.Skip, timeMUS.Skip, timeMUS.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip, timeMUS.Skip, ord.String.Skip,
		resultPtrMUS.Skip)
}

type embeddedChunkMUS struct{}

func (embeddedChunkMUS) Marshal(v core.EmbeddedChunk, bs []byte) (n int) {
	c := v.Chunk
	n = varint.Uint64.Marshal(uint64(c.Key), bs)
	n += ord.String.Marshal(c.DocumentID, bs[n:])
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += varint.Int.Marshal(c.Overlap, bs[n:])
	n += varint.Int.Marshal(c.Page, bs[n:])
	n += varint.Int.Marshal(c.Offset, bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	return n
}

func (embeddedChunkMUS) Unmarshal(bs []byte) (v core.EmbeddedChunk, n int, err error) {
	var key uint64
	key, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Chunk.Key = core.ID(key)
	var n1 int
	v.Chunk.DocumentID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunk.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunk.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunk.Overlap, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunk.Page, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Chunk.Offset, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (embeddedChunkMUS) Size(v core.EmbeddedChunk) (size int) {
	c := v.Chunk
	size = varint.Uint64.Size(uint64(c.Key))
	size += ord.String.Size(c.DocumentID)
	size += varint.Int.Size(c.Index)
	size += ord.String.Size(c.Text)
	size += varint.Int.Size(c.Overlap)
	size += varint.Int.Size(c.Page)
	size += varint.Int.Size(c.Offset)
	return size + vectorMUS.Size(v.Vector)
}

func (embeddedChunkMUS) Skip(bs []byte) (n int, err error) {
	return skipAll(bs,
		varint.Uint64.Skip, ord.String.Skip, varint.Int.Skip, ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip, varint.Int.Skip, vectorMUS.Skip)
}

// skipAll applies each field skipper in encoding order.
func skipAll(bs []byte, fields ...func([]byte) (int, error)) (n int, err error) {
	for _, skip := range fields {
		var n1 int
		n1, err = skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}
