package publish_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adecal/internal/publish"
)

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.ics")
	doc := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	require.NoError(t, publish.WriteFile(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteFile_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.ics")

	require.NoError(t, publish.WriteFile(path, "first"))
	require.NoError(t, publish.WriteFile(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deep", "timetable.ics")

	require.NoError(t, publish.WriteFile(path, "doc"))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteFile_EmptyPath(t *testing.T) {
	assert.Error(t, publish.WriteFile("", "doc"))
}

func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, publish.WriteFile(filepath.Join(dir, "timetable.ics"), "doc"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "timetable.ics", entries[0].Name())
}

func TestDeploy_EmptyTargetIsNoop(t *testing.T) {
	assert.NoError(t, publish.Deploy(context.Background(), "whatever.ics", ""))
}

func TestDeploy_RejectsBareTarget(t *testing.T) {
	err := publish.Deploy(context.Background(), "whatever.ics", "not-a-target")
	assert.Error(t, err)
}
