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

package ingestion

import (
	"context"

	"github.com/poiesic/docrag/core"
)

// Fetcher retrieves a remote document into a local file.
type Fetcher interface {
	// Fetch downloads url to dest. dest is either fully written or left untouched.
	Fetch(ctx context.Context, url, dest string) error
}

// DocumentParser extracts ordered pages of text from a local file.
type DocumentParser interface {
	// Parse reads the file at path. sourceURL is a format hint.
	Parse(ctx context.Context, path, sourceURL string) ([]core.Page, error)
}

// Indexer stores embedded chunks under a collection.
// index.Adapter satisfies it.
type Indexer interface {
	Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error
}
