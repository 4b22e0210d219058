package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"qc-inspector/core/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return reg
}

func writeCheckpoint(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"grid":1}`), 0o644))
}

func TestCurrentVersionEmpty(t *testing.T) {
	reg := newTestRegistry(t)
	require.Equal(t, 0, reg.CurrentVersion(models.ModelPatchcore))
	require.Equal(t, 1, reg.NextVersion(models.ModelPatchcore))
}

func TestCurrentVersionIgnoresMalformedEntries(t *testing.T) {
	reg := newTestRegistry(t)
	base := filepath.Join(reg.Root(), "Patchcore", "cable")
	for _, name := range []string{"v1", "v3", "latest", "v03", "vx", "notes", "v"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, name), 0o755))
	}

	require.Equal(t, 3, reg.CurrentVersion(models.ModelPatchcore))
	require.Equal(t, 4, reg.NextVersion(models.ModelPatchcore))
}

func TestListVersionsAscendingWithCheckpointFlag(t *testing.T) {
	reg := newTestRegistry(t)
	writeCheckpoint(t, filepath.Join(reg.VersionDir(models.ModelPadim, 2), "model.ckpt"))
	// v1 exists but holds no checkpoint (interrupted run).
	require.NoError(t, os.MkdirAll(reg.VersionDir(models.ModelPadim, 1), 0o755))

	infos := reg.ListVersions(models.ModelPadim)
	require.Len(t, infos, 2)
	require.Equal(t, "v1", infos[0].Version)
	require.False(t, infos[0].HasCheckpoint)
	require.Equal(t, "v2", infos[1].Version)
	require.True(t, infos[1].HasCheckpoint)
}

func TestCommitIsAppendOnly(t *testing.T) {
	reg := newTestRegistry(t)
	src := filepath.Join(t.TempDir(), "model.ckpt")
	writeCheckpoint(t, src)

	dir, err := reg.Commit(models.ModelPatchcore, 1, src)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "model.ckpt"))
	require.Equal(t, 1, reg.CurrentVersion(models.ModelPatchcore))

	_, err = reg.Commit(models.ModelPatchcore, 1, src)
	require.Error(t, err)
}

func TestRollbackUnknownVersion(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Rollback(models.ModelPatchcore, 7)
	require.ErrorIs(t, err, models.ErrVersionNotFound)
	require.NoDirExists(t, reg.AliasDir(models.ModelPatchcore))
}

func TestRollbackVersionWithoutCheckpoint(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, os.MkdirAll(reg.VersionDir(models.ModelPatchcore, 1), 0o755))

	err := reg.Rollback(models.ModelPatchcore, 1)
	require.ErrorIs(t, err, models.ErrVersionNotFound)
	require.NoDirExists(t, reg.AliasDir(models.ModelPatchcore))
}

func TestRollbackKeepsSourceAndIsRepeatable(t *testing.T) {
	reg := newTestRegistry(t)
	src := filepath.Join(t.TempDir(), "model.ckpt")
	writeCheckpoint(t, src)
	_, err := reg.Commit(models.ModelPatchcore, 1, src)
	require.NoError(t, err)

	require.NoError(t, reg.Rollback(models.ModelPatchcore, 1))
	require.FileExists(t, filepath.Join(reg.VersionDir(models.ModelPatchcore, 1), "model.ckpt"))

	// Repeatable: the source entry is untouched by the first rollback.
	require.NoError(t, reg.Rollback(models.ModelPatchcore, 1))
}

func TestRollbackRemovesOptimizedBundle(t *testing.T) {
	reg := newTestRegistry(t)
	src := filepath.Join(t.TempDir(), "model.ckpt")
	writeCheckpoint(t, src)
	_, err := reg.Commit(models.ModelPatchcore, 1, src)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(reg.OptimizedDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "model.xml"), []byte("<net/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "metadata.json"), []byte("{}"), 0o644))

	require.NoError(t, reg.Rollback(models.ModelPatchcore, 1))
	_, _, ok := reg.OptimizedBundle()
	require.False(t, ok)
}

func TestLatestCheckpointPrefersRollbackTarget(t *testing.T) {
	reg := newTestRegistry(t)
	tmp := t.TempDir()

	srcA := filepath.Join(tmp, "a.ckpt")
	writeCheckpoint(t, srcA)
	_, err := reg.Commit(models.ModelPatchcore, 1, srcA)
	require.NoError(t, err)

	srcB := filepath.Join(tmp, "b.ckpt")
	writeCheckpoint(t, srcB)
	_, err = reg.Commit(models.ModelPatchcore, 2, srcB)
	require.NoError(t, err)

	// Make the mtime ordering unambiguous.
	oldest := time.Now().Add(-2 * time.Hour)
	older := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(reg.VersionDir(models.ModelPatchcore, 1), "model.ckpt"), oldest, oldest))
	require.NoError(t, os.Chtimes(filepath.Join(reg.VersionDir(models.ModelPatchcore, 2), "model.ckpt"), older, older))

	ckpt, ok := reg.LatestCheckpoint(models.ModelPatchcore)
	require.True(t, ok)
	require.Contains(t, ckpt, "v2")

	require.NoError(t, reg.Rollback(models.ModelPatchcore, 1))
	ckpt, ok = reg.LatestCheckpoint(models.ModelPatchcore)
	require.True(t, ok)
	require.NotContains(t, ckpt, "v2")
}

func TestOptimizedBundleRequiresBothFiles(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, os.MkdirAll(reg.OptimizedDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "model.xml"), []byte("<net/>"), 0o644))

	_, _, ok := reg.OptimizedBundle()
	require.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "metadata.json"), []byte("{}"), 0o644))
	_, _, ok = reg.OptimizedBundle()
	require.True(t, ok)
}

func TestParseVersionName(t *testing.T) {
	cases := map[string]struct {
		n  int
		ok bool
	}{
		"v0":     {0, true},
		"v1":     {1, true},
		"v12":    {12, true},
		"v01":    {0, false},
		"v":      {0, false},
		"latest": {0, false},
		"v1a":    {0, false},
		"x3":     {0, false},
	}
	for name, want := range cases {
		n, ok := parseVersionName(name)
		require.Equal(t, want.ok, ok, name)
		if want.ok {
			require.Equal(t, want.n, n, name)
		}
	}
}
