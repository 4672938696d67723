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

package search

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrSynthesizerRequired is returned when a synthesizer is not provided.
	ErrSynthesizerRequired = errors.New("synthesizer required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrNoQuestions is returned when AnswerAll receives an empty batch.
	ErrNoQuestions = errors.New("no questions to answer")
)

// QuestionError reports the question that failed a batch.
type QuestionError struct {
	Index    int
	Question string
	Err      error
}

func (e *QuestionError) Error() string {
	return fmt.Sprintf("question %d: %v", e.Index, e.Err)
}

func (e *QuestionError) Unwrap() error {
	return e.Err
}
