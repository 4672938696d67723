package main

import (
	"bytes"
	"testing"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/reindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLI(&out)
	err := app.Run(append([]string{"docrag", "--env-file", ""}, args...))
	return out.String(), err
}

func findCommand(t *testing.T, name string) *cli.Command {
	t.Helper()
	for _, cmd := range newCLI(&bytes.Buffer{}).Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %s not found", name)
	return nil
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestAskCommand_RequiredFlags(t *testing.T) {
	_, err := run(t, "ask", "--url", "https://example.com/a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question")

	_, err = run(t, "ask", "-q", "What is covered?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestAskCommand_RejectsInvalidURL(t *testing.T) {
	_, err := run(t, "ask", "--url", "not a url", "-q", "What is covered?")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestReindexCommand_FlagDefaults(t *testing.T) {
	cmd := findCommand(t, "reindex")

	defaults := map[string]int{}
	required := map[string]bool{}
	for _, flag := range cmd.Flags {
		switch f := flag.(type) {
		case *cli.IntFlag:
			defaults[f.Name] = f.Value
		case *cli.StringFlag:
			required[f.Name] = f.Required
		}
	}
	assert.Equal(t, 64, defaults["batch-size"])
	assert.Equal(t, 256, defaults["report-interval"])
	assert.Equal(t, 3, defaults["max-retries"])
	assert.True(t, required["collection"])
	assert.True(t, required["target"])
}

func TestReindexCommand_RequiresBadger(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "qdrant")
	_, err := run(t, "reindex", "--collection", "docs_a", "--target", "docs_b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badger")
}

func TestReindexCommand_InvalidBatchSize(t *testing.T) {
	t.Setenv("INDEX_DIR", t.TempDir())
	_, err := run(t, "reindex", "--collection", "docs_a", "--target", "docs_b", "--batch-size", "0")
	assert.ErrorContains(t, err, "batch-size")
}

func TestReindexCommand_SameCollection(t *testing.T) {
	t.Setenv("INDEX_DIR", t.TempDir())
	_, err := run(t, "reindex", "--collection", "docs_a", "--target", "docs_a")
	assert.ErrorIs(t, err, reindex.ErrSameCollection)
}

func TestReindexCommand_EmptyCollection(t *testing.T) {
	t.Setenv("INDEX_DIR", t.TempDir())
	_, err := run(t, "reindex", "--collection", "docs_a", "--target", "docs_b")
	assert.NoError(t, err)
}

func TestPrintAnswers(t *testing.T) {
	var buf bytes.Buffer
	printAnswers(&buf, []string{"First?", "Second?"}, []string{" one \n", "two"})

	assert.Equal(t, "Q1: First?\nA1: one\n\nQ2: Second?\nA2: two\n\n", buf.String())
}
