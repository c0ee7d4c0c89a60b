package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/eleven-am/dictation/internal/protocol"
	"github.com/eleven-am/dictation/internal/shared"
)

const (
	DefaultRequestDirName  = "parakeet_requests"
	DefaultResponseDirName = "parakeet_responses"
)

// DefaultDirs returns the well-known request and response directories under
// the platform temp root.
func DefaultDirs() (string, string) {
	root := os.TempDir()
	return filepath.Join(root, DefaultRequestDirName), filepath.Join(root, DefaultResponseDirName)
}

// Dir is a mailbox backed by one filesystem directory holding <id>.json files.
type Dir struct {
	path string
}

func NewDir(path string) *Dir {
	return &Dir{path: path}
}

func NewDirPair(requestDir, responseDir string) Pair {
	return Pair{Requests: NewDir(requestDir), Responses: NewDir(responseDir)}
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("%w: create mailbox %s: %v", shared.ErrTransport, d.path, err)
	}
	return nil
}

func (d *Dir) file(id string) string {
	return filepath.Join(d.path, protocol.FileName(id))
}

// Publish writes to a hidden temp file in the same directory and renames it
// into place, so List never yields a half-written entry.
func (d *Dir) Publish(ctx context.Context, id string, payload []byte) error {
	tmp, err := os.CreateTemp(d.path, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", shared.ErrTransport, id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", shared.ErrTransport, id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", shared.ErrTransport, id, err)
	}
	if err := os.Rename(tmpName, d.file(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", shared.ErrTransport, id, err)
	}
	return nil
}

func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", shared.ErrTransport, d.path, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := protocol.IDFromFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (d *Dir) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(d.file(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", shared.ErrTransport, id, err)
	}
	return data, nil
}

func (d *Dir) Delete(ctx context.Context, id string) (bool, error) {
	err := os.Remove(d.file(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", shared.ErrTransport, id, err)
	}
	return true, nil
}

func (d *Dir) Probe(ctx context.Context) error {
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", shared.ErrTransport, d.path)
	}

	f, err := os.CreateTemp(d.path, "probe-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: mailbox not writable: %v", shared.ErrTransport, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: remove probe: %v", shared.ErrTransport, err)
	}
	return nil
}

func (d *Dir) Purge(ctx context.Context) error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("%w: purge %s: %v", shared.ErrTransport, d.path, err)
	}
	return nil
}
