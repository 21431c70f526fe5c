// Package storage persists finished captures.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/spf13/afero"

	"firestige.xyz/nfcsniff/internal/core"
	"firestige.xyz/nfcsniff/internal/log"
)

// SequenceVerb in a file pattern is replaced by the file sequence number.
const SequenceVerb = "%N"

// DefaultMaxFiles bounds the sequence number search.
const DefaultMaxFiles = 999

// Storage is the persistence surface used at the end of a session.
type Storage interface {
	Mount() error
	CreateFile(pattern string) (*Handle, error)
	Append(h *Handle, p []byte) error
	Close(h *Handle) error
}

// Handle is an open capture file.
type Handle struct {
	name string
	f    afero.File
}

// Name returns the file path.
func (h *Handle) Name() string {
	return h.name
}

// Dir stores captures as files below a root directory.
type Dir struct {
	fs       afero.Fs
	root     string
	maxFiles int
	now      func() time.Time
	mounted  bool
}

type DirOption func(*Dir)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) DirOption {
	return func(d *Dir) { d.fs = fs }
}

// WithClock sets the time used to expand strftime verbs.
func WithClock(now func() time.Time) DirOption {
	return func(d *Dir) { d.now = now }
}

func NewDir(root string, maxFiles int, opts ...DirOption) *Dir {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	d := &Dir{
		fs:       afero.NewOsFs(),
		root:     root,
		maxFiles: maxFiles,
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Mount makes sure the root directory exists and is writable.
func (d *Dir) Mount() error {
	if d.mounted {
		return nil
	}
	if err := d.fs.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	fi, err := d.fs.Stat(d.root)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", core.ErrStorageUnavailable, d.root)
	}
	d.mounted = true
	log.GetLogger().WithField("dir", d.root).Debug("storage mounted")
	return nil
}

// CreateFile creates the first free file name produced by pattern for
// sequence numbers 0 up to the configured maximum.
func (d *Dir) CreateFile(pattern string) (*Handle, error) {
	if !d.mounted {
		return nil, fmt.Errorf("%w: not mounted", core.ErrStorageUnavailable)
	}
	now := d.now()
	for seq := 0; seq < d.maxFiles; seq++ {
		name, err := Expand(pattern, seq, now)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(d.root, name)
		f, err := d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			if !strings.Contains(pattern, SequenceVerb) {
				break
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		return &Handle{name: path, f: f}, nil
	}
	return nil, fmt.Errorf("%w: pattern %q in %s", core.ErrNoFreeFileName, pattern, d.root)
}

func (d *Dir) Append(h *Handle, p []byte) error {
	if _, err := h.f.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", h.name, err)
	}
	return nil
}

func (d *Dir) Close(h *Handle) error {
	if err := h.f.Sync(); err != nil {
		h.f.Close()
		return fmt.Errorf("sync %s: %w", h.name, err)
	}
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", h.name, err)
	}
	return nil
}

// Expand substitutes the sequence number and then the strftime verbs.
func Expand(pattern string, seq int, t time.Time) (string, error) {
	p := strings.ReplaceAll(pattern, SequenceVerb, strconv.Itoa(seq))
	name, err := strftime.Format(p, t)
	if err != nil {
		return "", fmt.Errorf("%w: file pattern %q: %v", core.ErrConfigInvalid, pattern, err)
	}
	return name, nil
}
