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

// Package search answers questions against an indexed document.
//
// The Orchestrator runs one similarity search per question against the
// document's collection and hands the retrieved chunks to a Synthesizer.
// LLMSynthesizer builds a bounded prompt from those chunks and asks the
// generative model for a single answer.
//
// Answers are returned in question order. If any question fails the whole
// batch fails with a *QuestionError naming the position that failed.
package search
