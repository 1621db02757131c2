package pathval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
)

func TestResolveDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o700))

	v, err := New([]string{root})
	require.NoError(t, err)

	got, err := v.ResolveDir(sub)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = v.ResolveDir(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = v.ResolveDir(filepath.Join(root, "missing"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestResolveDirRejectsOutsideRoots(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	v, err := New([]string{root})
	require.NoError(t, err)

	_, err = v.ResolveDir(outside)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// Traversal that climbs out of the root is refused even though the
	// prefix looks right before cleaning.
	_, err = v.ResolveDir(filepath.Join(root, "..", filepath.Base(outside)))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = v.ResolveDir("")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestResolveFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "data.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	v, err := New([]string{root})
	require.NoError(t, err)

	got, err := v.ResolveFile(file)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	_, err = v.ResolveFile(root)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "directories are not files")

	_, err = v.ResolveFile(filepath.Join(root, "missing.txt"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	v, err := New([]string{rootA, rootB})
	require.NoError(t, err)

	_, err = v.ResolveDir(rootA)
	assert.NoError(t, err)
	_, err = v.ResolveDir(rootB)
	assert.NoError(t, err)
}
