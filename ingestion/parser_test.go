package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParser_Text(t *testing.T) {
	path := writeFile(t, "doc", "The grace period is thirty days.")

	pages, err := NewParser().Parse(context.Background(), path, "https://example.com/policy.txt")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "thirty days")
}

func TestParser_HTMLBySniffing(t *testing.T) {
	path := writeFile(t, "doc", "<!DOCTYPE html><html><body><p>Hello world</p></body></html>")

	pages, err := NewParser().Parse(context.Background(), path, "https://example.com/download?id=7")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "Hello world")
	assert.NotContains(t, pages[0].Text, "<p>")
}

func TestParser_Unsupported(t *testing.T) {
	path := writeFile(t, "doc", "\x00\x01\x02\x03binary")

	_, err := NewParser().Parse(context.Background(), path, "https://example.com/blob")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParser_MissingFile(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), filepath.Join(t.TempDir(), "nope"), "https://example.com/a.txt")
	assert.ErrorIs(t, err, core.ErrSourceMissing)
}

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, formatPDF, formatFromURL("https://example.com/files/Policy.PDF?sig=abc"))
	assert.Equal(t, formatHTML, formatFromURL("https://example.com/index.htm"))
	assert.Equal(t, formatText, formatFromURL("https://example.com/notes.md"))
	assert.Equal(t, formatUnknown, formatFromURL("https://example.com/download"))

	assert.Equal(t, formatPDF, sniffFormat([]byte("%PDF-1.7\n...")))
	assert.Equal(t, formatText, sniffFormat([]byte("plain words")))
}
