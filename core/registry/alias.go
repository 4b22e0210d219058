package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AliasStrategy replaces the "latest" alias with the contents of a version
// directory. The source directory is never modified.
type AliasStrategy interface {
	// Replace makes alias resolve to the contents of src, removing any
	// previous alias first.
	Replace(src, alias string) error
	Name() string
}

// ProbeAliasStrategy selects a strategy once at startup: a true symlink where
// the platform grants it (a probe link is created and removed under root),
// copy-and-replace otherwise.
func ProbeAliasStrategy(root string) AliasStrategy {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return copyAlias{}
	}
	target := filepath.Join(root, ".alias-probe-target")
	link := filepath.Join(root, ".alias-probe-link")
	defer os.Remove(link)
	defer os.Remove(target)

	if err := os.MkdirAll(target, 0o755); err != nil {
		return copyAlias{}
	}
	if err := os.Symlink(target, link); err != nil {
		return copyAlias{}
	}
	return symlinkAlias{}
}

type symlinkAlias struct{}

func (symlinkAlias) Name() string { return "symlink" }

func (symlinkAlias) Replace(src, alias string) error {
	if err := os.RemoveAll(alias); err != nil {
		return err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	return os.Symlink(abs, alias)
}

type copyAlias struct{}

func (copyAlias) Name() string { return "copy" }

func (copyAlias) Replace(src, alias string) error {
	// Build the replacement next to the alias, then swap, so a crash
	// mid-copy never leaves a truncated alias in place.
	tmp := alias + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := copyTree(src, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.RemoveAll(alias); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return os.Rename(tmp, alias)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
