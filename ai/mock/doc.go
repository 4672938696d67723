// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
// Call counters are atomic, so the mocks are safe to share across goroutines.
//
// # Usage in Tests
//
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	gen := mock.NewMockGenerator()
//	gen.GenerateFunc = func(ctx context.Context, system, prompt string) (string, error) {
//	    return "", errors.New("model offline")
//	}
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns normalized bag-of-words vectors, so texts sharing words are similar
//   - MockGenerator: Returns "answer: " followed by the prompt
//   - MockProvider: Aggregates mock embedder and generator
package mock
