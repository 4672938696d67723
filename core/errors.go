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

package core

import "errors"

// Request and payload errors
var (
	// ErrValidation indicates missing or malformed request fields.
	ErrValidation = errors.New("validation error")

	// ErrEmptyDocumentURL indicates the document URL field is empty.
	ErrEmptyDocumentURL = errors.New("document URL cannot be empty")

	// ErrInvalidDocumentURL indicates the document URL is not an absolute http(s) URL.
	ErrInvalidDocumentURL = errors.New("document URL must be an absolute http or https URL")

	// ErrNoQuestions indicates the question list is empty.
	ErrNoQuestions = errors.New("questions cannot be empty")

	// ErrBlankQuestion indicates one of the questions is blank.
	ErrBlankQuestion = errors.New("question cannot be blank")

	// ErrNotFound indicates an unknown job identifier.
	ErrNotFound = errors.New("not found")
)

// External dependency errors. These are transient and retried per the queue policy.
var (
	// ErrQueueUnavailable indicates the job queue store cannot be reached.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrIndexUnavailable indicates the vector store cannot be reached in time.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrModelService indicates the embedding or generation service failed.
	ErrModelService = errors.New("model service error")
)

// Pipeline data-integrity errors
var (
	// ErrSourceMissing indicates the downloaded document is not at its recorded path.
	ErrSourceMissing = errors.New("source document missing")

	// ErrMalformedJob indicates a job payload lacks required fields. It is never retried.
	ErrMalformedJob = errors.New("malformed job")

	// ErrCollectionNotFound indicates a search against a collection that holds no data yet.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates vectors of different sizes in one collection.
	// This is a configuration error and is never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedJob) || errors.Is(err, ErrDimensionMismatch)
}
