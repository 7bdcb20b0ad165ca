package processedlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmpty(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "missing.log"))
	require.NoError(t, err)
	assert.Empty(t, l.Entries)
	assert.False(t, l.Contains("anything"))
}

func TestAppendThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global.processed.log")

	e1 := Entry{SessionPath: "/sessions/a.json", ProcessedAt: time.Now().UTC().Truncate(time.Second), DeltasProposed: 3, DeltasApplied: 2}
	e2 := Entry{ID: "abc123", SessionPath: "/sessions/b.json", ProcessedAt: time.Now().UTC().Truncate(time.Second), DeltasProposed: 0, DeltasApplied: 0}

	require.NoError(t, Append(context.Background(), path, e1))
	require.NoError(t, Append(context.Background(), path, e2))

	l, err := Load(path)
	require.NoError(t, err)
	require.Len(t, l.Entries, 2)
	assert.True(t, l.Contains("/sessions/a.json"))
	assert.True(t, l.Contains("/sessions/b.json"))
	assert.False(t, l.Contains("/sessions/c.json"))
	assert.Equal(t, "abc123", l.Entries[1].ID)
	assert.Equal(t, 3, l.Entries[0].DeltasProposed)
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.tsv")
	content := header + "\n" +
		"-\t/sessions/a.json\t" + time.Now().UTC().Format(time.RFC3339) + "\t1\t1\n" +
		"this line is garbage\n" +
		"-\t/sessions/b.json\tnot-a-timestamp\t1\t1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	l, err := Load(path)
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.True(t, l.Contains("/sessions/a.json"))
	assert.False(t, l.Contains("/sessions/b.json"))
}

func TestSave_RewritesWholeLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.tsv")
	l := &Log{Entries: []Entry{{SessionPath: "/s.json", ProcessedAt: time.Now().UTC().Truncate(time.Second)}}}

	require.NoError(t, Save(path, l))
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
}
