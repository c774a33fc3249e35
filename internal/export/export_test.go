package export

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwlabs/pwrunner/internal/artifacts"
)

func setupRunDir(t *testing.T) (artifacts.Root, string) {
	t.Helper()
	root := artifacts.NewRoot(filepath.Join(t.TempDir(), "runs"))
	runID := "run-20250301-120000-a1b2c3d4"

	testDir, err := root.EnsureTestDirs(runID, "tests/test_a.py::test_one")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(root.SummaryPath(runID), []byte(`{"run_id":"x"}`), 0644))
	require.NoError(t, os.WriteFile(root.EventsPath(runID), []byte(`{"type":"session_start"}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "trace.zip"), []byte("PK"), 0644))

	return root, runID
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	entries := map[string][]byte{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			entries[hdr.Name] = nil
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}
	return entries
}

func TestArchive(t *testing.T) {
	root, runID := setupRunDir(t)
	dest := filepath.Join(t.TempDir(), "out.tar.zst")

	got, err := Archive(root, runID, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	entries := readArchive(t, dest)
	assert.Contains(t, entries, runID+"/")
	assert.Equal(t, []byte(`{"run_id":"x"}`), entries[runID+"/run-summary.json"])
	assert.Contains(t, entries, runID+"/events.ndjson")
	assert.Equal(t, []byte("PK"), entries[runID+"/tests/tests_test_a_py__test_one/trace.zip"])
}

func TestArchive_DefaultDest(t *testing.T) {
	root, runID := setupRunDir(t)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	got, err := Archive(root, runID, "")
	require.NoError(t, err)
	assert.Equal(t, runID+".tar.zst", got)
	assert.FileExists(t, got)
}

func TestArchive_UnknownRun(t *testing.T) {
	root := artifacts.NewRoot(filepath.Join(t.TempDir(), "runs"))

	_, err := Archive(root, "run-20250301-120000-deadbeef", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact directory")
}
