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

// Package storage provides the storage abstraction layer for docrag.
//
// This package defines the repository interfaces that decouple the job queue and
// the vector index from their backends:
//
//   - JobRepository: durable job records with an atomic claim of the next ready job
//   - VectorStore: embedded chunks grouped in collections with similarity search
//   - ChunkScanner: batch iteration over a collection, used for re-indexing
//
// Two backends are provided. storage/badger is embedded and serves both the job
// repository and the vector store. storage/qdrant is a remote vector store.
//
// # Serialization
//
// Records are stored as mus-go binary encodings. The serializers in this
// package follow the Size/Marshal/Unmarshal shape of mus-go's own serializers:
//
//	bs := storage.MarshalJob(job)
//	job, err := storage.UnmarshalJob(bs)
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
