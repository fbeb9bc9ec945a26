// Package streamio is the narrow stream-provider seam the partition
// engine consumes instead of talking to a filesystem directly (spec §1:
// "the core consumes a minimal stream provider"). A Provider is backed
// by afero.Fs, so the same engine code runs against a real directory or
// an in-memory filesystem without change.
package streamio

import (
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

const osAppendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

// Provider is the minimal set of filesystem operations the partition
// engine needs: list a directory's entries, open a file for reading,
// create a new file, append to an existing one, and rename/remove.
type Provider interface {
	// ReadDir lists the entries of dir, sorted by name.
	ReadDir(dir string) ([]fs.FileInfo, error)
	// Open opens name for reading.
	Open(name string) (afero.File, error)
	// Create creates (or truncates) name for writing.
	Create(name string) (afero.File, error)
	// OpenAppend opens name for appending, creating it if absent.
	OpenAppend(name string) (afero.File, error)
	// Rename renames oldname to newname.
	Rename(oldname, newname string) error
	// Remove deletes name.
	Remove(name string) error
	// Stat returns name's FileInfo.
	Stat(name string) (fs.FileInfo, error)
}

// FSProvider adapts an afero.Fs to Provider.
type FSProvider struct {
	fs afero.Fs
}

// NewOSProvider returns a Provider backed by the real filesystem.
func NewOSProvider() *FSProvider {
	return &FSProvider{fs: afero.NewOsFs()}
}

// NewMemProvider returns a Provider backed by an in-memory filesystem,
// for tests and for callers that want a partition with no disk
// footprint at all.
func NewMemProvider() *FSProvider {
	return &FSProvider{fs: afero.NewMemMapFs()}
}

// NewProvider adapts an arbitrary afero.Fs, for callers layering their
// own afero backend (e.g. a read-only overlay).
func NewProvider(fs afero.Fs) *FSProvider {
	return &FSProvider{fs: fs}
}

func (p *FSProvider) ReadDir(dir string) ([]fs.FileInfo, error) {
	return afero.ReadDir(p.fs, dir)
}

func (p *FSProvider) Open(name string) (afero.File, error) {
	return p.fs.Open(name)
}

func (p *FSProvider) Create(name string) (afero.File, error) {
	return p.fs.Create(name)
}

func (p *FSProvider) OpenAppend(name string) (afero.File, error) {
	return p.fs.OpenFile(name, osAppendFlags, 0o644)
}

func (p *FSProvider) Rename(oldname, newname string) error {
	return p.fs.Rename(oldname, newname)
}

func (p *FSProvider) Remove(name string) error {
	return p.fs.Remove(name)
}

func (p *FSProvider) Stat(name string) (fs.FileInfo, error) {
	return p.fs.Stat(name)
}
