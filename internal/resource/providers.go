package resource

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FSProvider serves resources from an fs.FS, such as the launcher's embedded
// bundle or a directory on disk.
type FSProvider struct {
	name string
	fsys fs.FS
}

// NewFSProvider returns a provider reading from fsys.
func NewFSProvider(name string, fsys fs.FS) *FSProvider {
	return &FSProvider{name: name, fsys: fsys}
}

// NewDirProvider returns a provider reading from the directory dir.
func NewDirProvider(name, dir string) *FSProvider {
	return NewFSProvider(name, os.DirFS(dir))
}

func (p *FSProvider) Name() string { return p.name }

// Open rejects names fs.FS cannot express, such as those with a leading "/",
// as missing so the locator can retry a normalized form.
func (p *FSProvider) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f, err := p.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}

// ArchiveProvider serves resources from a zip archive, such as a topology
// jar produced by the packager. The archive is opened lazily on first use
// and kept open until Close.
type ArchiveProvider struct {
	path string

	once   sync.Once
	reader *zip.ReadCloser
	err    error
}

// NewArchiveProvider returns a provider for the archive at path.
func NewArchiveProvider(path string) *ArchiveProvider {
	return &ArchiveProvider{path: path}
}

func (p *ArchiveProvider) Name() string { return "archive:" + filepath.Base(p.path) }

func (p *ArchiveProvider) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p.once.Do(func() {
		p.reader, p.err = zip.OpenReader(p.path)
	})
	if p.err != nil {
		return nil, fmt.Errorf("open archive %s: %w", p.path, p.err)
	}
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return p.reader.Open(name)
}

// Close releases the archive.
func (p *ArchiveProvider) Close() error {
	if p.reader == nil {
		return nil
	}
	return p.reader.Close()
}
