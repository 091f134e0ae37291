package sanitize

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	root := t.TempDir()

	got, err := ValidatePath(filepath.Join(root, "a", "b.txt"), root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), got)

	_, err = ValidatePath("", root)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = ValidatePath(filepath.Join(root, "..", "x"), root)
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = ValidatePath(filepath.Join(t.TempDir(), "x"), root)
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = ValidatePath("notes..txt", "")
	assert.NoError(t, err, "dots inside a name are not traversal")
}

func TestValidateObjectKey(t *testing.T) {
	assert.NoError(t, ValidateObjectKey("1700000000000-handbook.pdf"))
	assert.NoError(t, ValidateObjectKey("2024/01/file.txt"))

	assert.ErrorIs(t, ValidateObjectKey(""), ErrEmptyPath)
	assert.ErrorIs(t, ValidateObjectKey("/etc/passwd"), ErrAbsolutePath)
	assert.ErrorIs(t, ValidateObjectKey("../secret"), ErrPathTraversal)
	assert.ErrorIs(t, ValidateObjectKey("a/../../b"), ErrPathTraversal)
	assert.ErrorIs(t, ValidateObjectKey(`a\b`), ErrPathTraversal)
}
