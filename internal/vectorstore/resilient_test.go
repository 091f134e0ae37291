package vectorstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeCollection(t *testing.T, root, name string, withMeta bool) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if withMeta {
		require.NoError(t, os.WriteFile(filepath.Join(dir, chromemMetaFile), []byte("metadata"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abcd1234.gob"), []byte("document"), 0o644))
	return dir
}

func TestOpenPersistentChromem_EmptyDir(t *testing.T) {
	db, err := openPersistentChromem(t.TempDir(), false, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, db)
}

func TestOrphanedCollections(t *testing.T) {
	root := t.TempDir()
	writeCollection(t, root, "a1b2c3d4", true)
	writeCollection(t, root, "deadbeef", false)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0e0e0e0e"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, quarantineDir, "feedface"), 0o755))

	found, err := orphanedCollections(root, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"deadbeef"}, found)
}

func TestQuarantine(t *testing.T) {
	root := t.TempDir()
	writeCollection(t, root, "deadbeef", false)
	writeCollection(t, root, "NotAHash", false)

	moved, err := quarantine(root, []string{"deadbeef", "NotAHash"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	_, err = os.Stat(filepath.Join(root, quarantineDir, "deadbeef", "abcd1234.gob"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "deadbeef"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "NotAHash"))
	assert.NoError(t, err, "unexpected names stay in place")
}
