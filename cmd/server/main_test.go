package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"story-engine/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportLoadError(t *testing.T) {
	t.Run("validation errors are numbered", func(t *testing.T) {
		_, err := engine.FromProgram(`=HOME "no start" "Go" -> NOWHERE`)
		require.Error(t, err)

		var out strings.Builder
		reportLoadError(&out, "story.txt", err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "The story in story.txt has 2 error(s):", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "1. Your program is missing a 'START' node"), lines[1])
		assert.True(t, strings.HasPrefix(lines[2], "2. The node with id 'HOME'"), lines[2])
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := engine.FromProgram(`=START "unterminated`)
		require.Error(t, err)

		var out strings.Builder
		reportLoadError(&out, "story.txt", err)
		assert.Contains(t, out.String(), "could not be parsed")
	})

	t.Run("other errors", func(t *testing.T) {
		var out strings.Builder
		reportLoadError(&out, "story.txt", errors.New("permission denied"))
		assert.Equal(t, "Failed to load story story.txt: permission denied\n", out.String())
	})
}

func TestLoadStory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.txt")
	require.NoError(t, os.WriteFile(path, []byte(`=START "Hello" "Bye" -> END
=END "Bye"`), 0o644))

	eng, err := loadStory(path)
	require.NoError(t, err)
	assert.Equal(t, 2, eng.NodeCount())

	_, err = loadStory(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
