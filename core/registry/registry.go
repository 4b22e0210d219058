package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"qc-inspector/core/models"

	"go.uber.org/zap"
)

const (
	// datasetName is the sub-namespace every version lives under, fixed by
	// the on-disk layout of existing installations.
	datasetName = "cable"
	aliasName   = "latest"

	checkpointExt = ".ckpt"

	optimizedDirName  = "openvino"
	optimizedModel    = "model.xml"
	optimizedMetadata = "metadata.json"
)

// Registry is the durable mapping of (model type, version) to artifact
// bundles under the models root. Version directories are append-only; the
// single destructive operation is replacing the "latest" alias on rollback.
type Registry struct {
	root  string
	alias AliasStrategy
	log   *zap.SugaredLogger
}

// New creates a registry rooted at dir and probes the alias strategy once
func New(dir string, log *zap.SugaredLogger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models root: %w", err)
	}
	strategy := ProbeAliasStrategy(dir)
	log.Infow("version registry ready", "root", dir, "alias_strategy", strategy.Name())
	return &Registry{root: dir, alias: strategy, log: log}, nil
}

// Root returns the models root directory
func (r *Registry) Root() string { return r.root }

// ModelDir returns the namespace directory for a model type
func (r *Registry) ModelDir(mt models.ModelType) string {
	return filepath.Join(r.root, mt.DisplayName())
}

func (r *Registry) versionsDir(mt models.ModelType) string {
	return filepath.Join(r.ModelDir(mt), datasetName)
}

// VersionDir returns the directory of a specific version
func (r *Registry) VersionDir(mt models.ModelType, version int) string {
	return filepath.Join(r.versionsDir(mt), fmt.Sprintf("v%d", version))
}

// AliasDir returns the "latest" alias directory for a model type
func (r *Registry) AliasDir(mt models.ModelType) string {
	return filepath.Join(r.versionsDir(mt), aliasName)
}

// OptimizedDir returns the shared optimized-export directory
func (r *Registry) OptimizedDir() string {
	return filepath.Join(r.root, optimizedDirName)
}

// OptimizedBundle returns the optimized-export pair if it is structurally
// complete (both the model definition and its metadata sidecar exist).
func (r *Registry) OptimizedBundle() (modelPath, metadataPath string, ok bool) {
	modelPath = filepath.Join(r.OptimizedDir(), optimizedModel)
	metadataPath = filepath.Join(r.OptimizedDir(), optimizedMetadata)
	if fileExists(modelPath) && fileExists(metadataPath) {
		return modelPath, metadataPath, true
	}
	return "", "", false
}

// CurrentVersion returns the highest existing version number for a model
// type, or 0 if no versions exist. Malformed directory names are ignored.
func (r *Registry) CurrentVersion(mt models.ModelType) int {
	max := 0
	for _, v := range r.versionNumbers(mt) {
		if v > max {
			max = v
		}
	}
	return max
}

// NextVersion returns the version number the next training run will commit
func (r *Registry) NextVersion(mt models.ModelType) int {
	return r.CurrentVersion(mt) + 1
}

// ListVersions enumerates all version entries in ascending order
func (r *Registry) ListVersions(mt models.ModelType) []models.VersionInfo {
	numbers := r.versionNumbers(mt)
	sort.Ints(numbers)

	infos := make([]models.VersionInfo, 0, len(numbers))
	for _, n := range numbers {
		dir := r.VersionDir(mt, n)
		infos = append(infos, models.VersionInfo{
			Version:       fmt.Sprintf("v%d", n),
			HasCheckpoint: len(findCheckpoints(dir)) > 0,
			Path:          dir,
		})
	}
	return infos
}

// HasCheckpoint reports whether any checkpoint exists for a model type
func (r *Registry) HasCheckpoint(mt models.ModelType) bool {
	_, ok := r.LatestCheckpoint(mt)
	return ok
}

// LatestCheckpoint returns the most recently modified checkpoint for the
// model type. Version entries are ranked by file modification time; the
// "latest" alias is ranked by the time it was last replaced, so the alias
// wins after a rollback and a newer committed version wins after a train.
func (r *Registry) LatestCheckpoint(mt models.ModelType) (string, bool) {
	var newest string
	var newestTime time.Time
	consider := func(path string, t time.Time) {
		if newest == "" || t.After(newestTime) {
			newest = path
			newestTime = t
		}
	}

	for _, n := range r.versionNumbers(mt) {
		for _, ckpt := range findCheckpoints(r.VersionDir(mt, n)) {
			if info, err := os.Stat(ckpt); err == nil {
				consider(ckpt, info.ModTime())
			}
		}
	}

	alias := r.AliasDir(mt)
	if info, err := os.Lstat(alias); err == nil {
		aliasTime := info.ModTime()
		resolved := alias
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err = filepath.EvalSymlinks(alias)
			if err != nil {
				resolved = ""
			}
		}
		for _, ckpt := range findCheckpoints(resolved) {
			t := aliasTime
			if fi, err := os.Stat(ckpt); err == nil && fi.ModTime().After(t) {
				t = fi.ModTime()
			}
			consider(ckpt, t)
		}
	}

	return newest, newest != ""
}

// Commit writes a new version entry containing the checkpoint. Versions are
// append-only: committing to an existing version number is an error.
func (r *Registry) Commit(mt models.ModelType, version int, checkpointPath string) (string, error) {
	dir := r.VersionDir(mt, version)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("version v%d already exists for %s", version, mt)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create version directory: %w", err)
	}
	dst := filepath.Join(dir, "model"+checkpointExt)
	if err := copyFile(checkpointPath, dst); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	r.log.Infow("committed model version", "model_type", mt, "version", version, "path", dir)
	return dir, nil
}

// Rollback points the "latest" alias at an existing version. The target must
// exist and contain a checkpoint; the source version entry is not modified,
// so rollback is repeatable. The shared optimized export derives from the
// last trained checkpoint and would shadow the rollback target on reload,
// so it is removed here.
func (r *Registry) Rollback(mt models.ModelType, version int) error {
	dir := r.VersionDir(mt, version)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: v%d", models.ErrVersionNotFound, version)
	}
	if len(findCheckpoints(dir)) == 0 {
		return fmt.Errorf("%w: no checkpoint in v%d", models.ErrVersionNotFound, version)
	}

	if err := r.alias.Replace(dir, r.AliasDir(mt)); err != nil {
		return fmt.Errorf("failed to update latest alias: %w", err)
	}

	if err := os.RemoveAll(r.OptimizedDir()); err != nil {
		r.log.Warnw("failed to remove stale optimized export", "error", err)
	}

	r.log.Infow("rolled back model", "model_type", mt, "version", version)
	return nil
}

// versionNumbers scans the namespace for directory entries matching the
// version pattern. Non-numeric or malformed names are skipped, not errors.
func (r *Registry) versionNumbers(mt models.ModelType) []int {
	entries, err := os.ReadDir(r.versionsDir(mt))
	if err != nil {
		return nil
	}
	var numbers []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := parseVersionName(e.Name()); ok {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

// parseVersionName parses "v<N>" with N a non-negative decimal with no
// leading zeros.
func parseVersionName(name string) (int, bool) {
	if len(name) < 2 || name[0] != 'v' {
		return 0, false
	}
	digits := name[1:]
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	n := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func findCheckpoints(dir string) []string {
	var ckpts []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(path, checkpointExt) {
			ckpts = append(ckpts, path)
		}
		return nil
	})
	return ckpts
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
