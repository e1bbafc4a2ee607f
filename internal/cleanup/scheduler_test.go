package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweepDeletesOnlyStaleExports(t *testing.T) {
	dir := t.TempDir()
	dayDir := filepath.Join(dir, "2024", "01", "15")
	require.NoError(t, os.MkdirAll(dayDir, 0755))

	stale := filepath.Join(dayDir, "old.md")
	fresh := filepath.Join(dayDir, "new.md")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	past := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	s := NewScheduler(dir, 60, 30)
	s.sweep()

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestSweepPrunesEmptyDateDirs(t *testing.T) {
	dir := t.TempDir()
	dayDir := filepath.Join(dir, "2023", "06", "01")
	require.NoError(t, os.MkdirAll(dayDir, 0755))

	stale := filepath.Join(dayDir, "old.md")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	past := time.Now().Add(-400 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	s := NewScheduler(dir, 60, 30)
	s.sweep()

	_, err := os.Stat(filepath.Join(dir, "2023"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(dir)
	require.NoError(t, err)
}
