package workspace

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/matzehuels/stackfix/pkg/lockfile"
	"github.com/matzehuels/stackfix/pkg/manifest"
)

// Finalize copies the manifest, the lockfile and the git history back to
// the source repository, then removes the workspace directory. Each copy is
// attempted independently. Only the first call does work; later calls
// return the first status.
//
// The status is [CopyBackOK] when every copy succeeded, [CopyBackPartial]
// when the manifest was copied but something else failed, and
// [CopyBackFailed] when the manifest could not be copied.
func (w *Workspace) Finalize(_ context.Context) CopyBackStatus {
	w.once.Do(func() {
		w.status = w.copyBack()
		if err := os.RemoveAll(w.dir); err != nil {
			w.logger.Warn("workspace cleanup failed", "dir", w.dir, "error", err)
		}
		w.logger.Debug("workspace finalized", "copy_back", w.status)
	})
	return w.status
}

func (w *Workspace) copyBack() CopyBackStatus {
	manifestErr := copyFile(filepath.Join(w.dir, manifest.Filename), filepath.Join(w.source, manifest.Filename))
	if manifestErr != nil {
		w.logger.Error("manifest copy-back failed", "error", manifestErr)
	}

	var lockErr error
	lockSrc := filepath.Join(w.dir, lockfile.Filename)
	if _, err := os.Stat(lockSrc); err == nil {
		lockErr = copyFile(lockSrc, filepath.Join(w.source, lockfile.Filename))
		if lockErr != nil {
			w.logger.Warn("lockfile copy-back failed", "error", lockErr)
		}
	}

	historyErr := replaceTree(w.repo.GitDir(), filepath.Join(w.source, HistoryDir))
	if historyErr != nil {
		w.logger.Warn("history copy-back failed", "error", historyErr)
	}

	switch {
	case manifestErr != nil:
		return CopyBackFailed
	case lockErr != nil || historyErr != nil:
		return CopyBackPartial
	}
	return CopyBackOK
}

// copyFile writes src to dst through a temporary file in dst's directory,
// so a failed copy never leaves a truncated dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// replaceTree copies the directory src to dst, replacing dst.
func replaceTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(staging, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return os.Rename(staging, dst)
}
