package upload

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveMaterial_NamesByMD5(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	saved, err := d.SaveMaterial(strings.NewReader("abc"), "clip.MP4")
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", saved.MD5)
	assert.Equal(t, "material/900150983cd24fb0d6963f7d28e17f72.MP4", saved.Name)

	data, err := os.ReadFile(filepath.Join(d.Path(MaterialDir), "900150983cd24fb0d6963f7d28e17f72.MP4"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	saved, err = d.SaveMaterial(strings.NewReader("abc"), "noext")
	require.NoError(t, err)
	assert.Equal(t, "material/900150983cd24fb0d6963f7d28e17f72", saved.Name)

	assertNoTemps(t, d.Path(MaterialDir))
}

func TestSaveMaterial_ReportsCreatedAndRemove(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := d.SaveMaterial(strings.NewReader("abc"), "a.mp4")
	require.NoError(t, err)
	assert.True(t, first.Created)

	again, err := d.SaveMaterial(strings.NewReader("abc"), "b.mp4")
	require.NoError(t, err)
	assert.False(t, again.Created)

	require.NoError(t, d.Remove(first.Name))
	_, err = os.Stat(filepath.Join(d.Path(MaterialDir), "900150983cd24fb0d6963f7d28e17f72.mp4"))
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, d.Remove(first.Name), "removing a missing file is not an error")
	assert.ErrorIs(t, d.Remove(""), ErrBadName)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestSaveMaterial_ReadErrorLeavesNothing(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = d.SaveMaterial(failingReader{}, "a.mp4")
	require.Error(t, err)

	entries, err := os.ReadDir(d.Path(MaterialDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveAPK_UsesBaseName(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	name, err := d.SaveAPK(strings.NewReader("apk"), "../../etc/app.apk")
	require.NoError(t, err)
	assert.Equal(t, "app.apk", name)

	_, err = os.Stat(filepath.Join(d.Path(APKDir), "app.apk"))
	require.NoError(t, err)
	assertNoTemps(t, d.Path(APKDir))

	_, err = d.SaveAPK(strings.NewReader("apk"), "")
	assert.ErrorIs(t, err, ErrBadName)
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".upload-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
