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

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateQueryRequest validates a QueryRequest according to domain rules.
//
// Validation rules:
//   - DocumentURL must be an absolute http or https URL
//   - Questions must contain at least one entry
//   - No question may be blank
func ValidateQueryRequest(req *QueryRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrValidation)
	}

	if err := ValidateDocumentURL(req.DocumentURL); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if len(req.Questions) == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNoQuestions)
	}

	for i, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: %w: index %d", ErrValidation, ErrBlankQuestion, i)
		}
	}

	return nil
}

// ValidateDocumentURL checks that raw is an absolute http or https URL.
func ValidateDocumentURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyDocumentURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocumentURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidDocumentURL
	}
	return nil
}

// ValidateJob validates the payload of an IngestionJob before a worker runs it.
//
// Validation rules:
//   - Id, SourceURL, SavedPath and Collection must be present
//
// NOT validated:
//   - Questions (ingestion-only jobs carry none)
//   - Result (populated on completion)
func ValidateJob(job *IngestionJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrMalformedJob)
	}

	missing := make([]string, 0, 4)
	if job.Id == "" {
		missing = append(missing, "id")
	}
	if job.SourceURL == "" {
		missing = append(missing, "sourceURL")
	}
	if job.SavedPath == "" {
		missing = append(missing, "savedPath")
	}
	if job.Collection == "" {
		missing = append(missing, "collection")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedJob, strings.Join(missing, ", "))
	}

	return nil
}
