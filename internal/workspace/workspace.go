package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"vidscale/internal/fileutil"
	"vidscale/internal/services"
)

const (
	audioFile    = "output_audio.m4a"
	subtitleFile = "subtitle.srt"
	manifestFile = "target.txt"
)

// ErrBusy is returned by Lock when another run holds the workspace.
var ErrBusy = fmt.Errorf("%w: workspace in use by another run", services.ErrPrecondition)

// Workspace owns the scratch directory for one run at a time.
type Workspace struct {
	dir      string
	lockPath string
	lock     *flock.Flock
}

// New returns a workspace rooted at dir. The lock file lives beside the
// directory so Reset never deletes it.
func New(dir string) (*Workspace, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "init", "workspace directory not set", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "init", dir, err)
	}
	if abs == filepath.Dir(abs) {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "init", "refusing to use filesystem root as workspace", nil)
	}
	lockPath := abs + ".lock"
	return &Workspace{dir: abs, lockPath: lockPath, lock: flock.New(lockPath)}, nil
}

// Dir returns the absolute scratch directory.
func (w *Workspace) Dir() string { return w.dir }

// LockPath returns the lock file location.
func (w *Workspace) LockPath() string { return w.lockPath }

// Lock acquires the workspace lock without blocking.
func (w *Workspace) Lock() error {
	if err := os.MkdirAll(filepath.Dir(w.lockPath), 0o755); err != nil {
		return services.Wrap(services.ErrPrecondition, "workspace", "lock", "create parent directory", err)
	}
	ok, err := w.lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrPrecondition, "workspace", "lock", w.lockPath, err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrBusy, w.lockPath)
	}
	return nil
}

// Unlock releases the workspace lock.
func (w *Workspace) Unlock() error {
	return w.lock.Unlock()
}

// ResetResult reports what Reset removed.
type ResetResult struct {
	RemovedOutput bool
}

// Reset empties the scratch directory and removes a stale output file so
// ffmpeg never has to prompt before overwriting.
func (w *Workspace) Reset(outputPath string) (ResetResult, error) {
	var result ResetResult
	if err := os.RemoveAll(w.dir); err != nil {
		return result, services.Wrap(services.ErrPrecondition, "workspace", "reset", "remove "+w.dir, err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return result, services.Wrap(services.ErrPrecondition, "workspace", "reset", "create "+w.dir, err)
	}
	if strings.TrimSpace(outputPath) == "" {
		return result, nil
	}
	removed, err := fileutil.RemoveIfExists(outputPath)
	if err != nil {
		return result, services.Wrap(services.ErrPrecondition, "workspace", "reset", "remove stale output", err)
	}
	result.RemovedOutput = removed
	return result, nil
}

// SegmentPath is the i-th split segment.
func (w *Workspace) SegmentPath(i int, format string) string {
	return filepath.Join(w.dir, "part"+strconv.Itoa(i)+"."+format)
}

// SegmentPattern is the ffmpeg segment muxer output template.
func (w *Workspace) SegmentPattern(format string) string {
	return filepath.Join(w.dir, "part%d."+format)
}

// ResultPath is the upscaled output of segment i.
func (w *Workspace) ResultPath(i int, format string) string {
	return filepath.Join(w.dir, ResultName(i, format))
}

// ResultName is the manifest-relative name of segment i's output.
func ResultName(i int, format string) string {
	return "part" + strconv.Itoa(i) + "_res." + format
}

// AudioPath is the demuxed audio track.
func (w *Workspace) AudioPath() string { return filepath.Join(w.dir, audioFile) }

// SubtitlePath is the extracted subtitle track.
func (w *Workspace) SubtitlePath() string { return filepath.Join(w.dir, subtitleFile) }

// ManifestPath is the concat demuxer list.
func (w *Workspace) ManifestPath() string { return filepath.Join(w.dir, manifestFile) }

// JobPath is the serialized worker job for segment i.
func (w *Workspace) JobPath(i int) string {
	return filepath.Join(w.dir, "part"+strconv.Itoa(i)+".job.toml")
}

// WorkerLogPath captures stdout and stderr of worker i.
func (w *Workspace) WorkerLogPath(i int) string {
	return filepath.Join(w.dir, "part"+strconv.Itoa(i)+".log")
}
