package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cache.bin"), []byte("x"), 0o644))

	got, err := Resolve(root, "cache.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cache.bin"), got)
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveRejectsAbsoluteEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "/etc/passwd")
	assert.Error(t, err)
}

func TestResolveAllowsNonexistentFileInRoot(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, "new-file.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "new-file.bin"), got)
}
