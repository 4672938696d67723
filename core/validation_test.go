package core

import (
	"errors"
	"testing"
)

func TestValidateQueryRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *QueryRequest
		wantErr error
	}{
		{
			name: "valid request",
			req: &QueryRequest{
				DocumentURL: "https://example.com/policy.pdf",
				Questions:   []string{"What is the grace period?"},
			},
			wantErr: nil,
		},
		{
			name:    "nil request",
			req:     nil,
			wantErr: ErrValidation,
		},
		{
			name: "empty url",
			req: &QueryRequest{
				Questions: []string{"q"},
			},
			wantErr: ErrEmptyDocumentURL,
		},
		{
			name: "relative url",
			req: &QueryRequest{
				DocumentURL: "/files/policy.pdf",
				Questions:   []string{"q"},
			},
			wantErr: ErrInvalidDocumentURL,
		},
		{
			name: "unsupported scheme",
			req: &QueryRequest{
				DocumentURL: "ftp://example.com/policy.pdf",
				Questions:   []string{"q"},
			},
			wantErr: ErrInvalidDocumentURL,
		},
		{
			name: "no questions",
			req: &QueryRequest{
				DocumentURL: "https://example.com/policy.pdf",
			},
			wantErr: ErrNoQuestions,
		},
		{
			name: "blank question",
			req: &QueryRequest{
				DocumentURL: "https://example.com/policy.pdf",
				Questions:   []string{"ok", "   "},
			},
			wantErr: ErrBlankQuestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryRequest(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateQueryRequest() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateQueryRequest() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateQueryRequest() error = %v, should wrap ErrValidation", err)
			}
		})
	}
}

func TestValidateJob(t *testing.T) {
	valid := IngestionJob{
		Id:         "job-1",
		SourceURL:  "https://example.com/a.pdf",
		SavedPath:  "/tmp/a.pdf",
		Collection: "docs_0011223344556677",
	}

	if err := ValidateJob(&valid); err != nil {
		t.Fatalf("ValidateJob() unexpected error = %v", err)
	}

	if err := ValidateJob(nil); !errors.Is(err, ErrMalformedJob) {
		t.Errorf("ValidateJob(nil) error = %v, want ErrMalformedJob", err)
	}

	noPath := valid
	noPath.SavedPath = ""
	if err := ValidateJob(&noPath); !errors.Is(err, ErrMalformedJob) {
		t.Errorf("ValidateJob() error = %v, want ErrMalformedJob", err)
	}

	noCollection := valid
	noCollection.Collection = ""
	if err := ValidateJob(&noCollection); !errors.Is(err, ErrMalformedJob) {
		t.Errorf("ValidateJob() error = %v, want ErrMalformedJob", err)
	}
}
