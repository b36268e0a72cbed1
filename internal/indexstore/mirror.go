package indexstore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// DiskMirror keeps a local copy of each tenant's index and metadata blobs.
type DiskMirror struct {
	Dir string
}

// NewDiskMirror creates the mirror directory if needed.
func NewDiskMirror(dir string) (*DiskMirror, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	return &DiskMirror{Dir: dir}, nil
}

func (m *DiskMirror) paths(clientID string) (indexPath, metaPath string) {
	name := url.PathEscape(clientID)
	return filepath.Join(m.Dir, name+".index"), filepath.Join(m.Dir, name+"_meta.json")
}

// Read returns both blobs. It returns an error satisfying errors.Is(err, os.ErrNotExist)
// unless both files are present.
func (m *DiskMirror) Read(clientID string) (indexData, metaData []byte, err error) {
	indexPath, metaPath := m.paths(clientID)
	indexData, err = os.ReadFile(indexPath)
	if err != nil {
		return nil, nil, err
	}
	metaData, err = os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, err
	}
	return indexData, metaData, nil
}

// Write replaces both blobs. Each file is written to a temp file and renamed into place.
func (m *DiskMirror) Write(clientID string, indexData, metaData []byte) error {
	indexPath, metaPath := m.paths(clientID)
	if err := writeFileAtomic(indexPath, indexData); err != nil {
		return err
	}
	return writeFileAtomic(metaPath, metaData)
}

// Exists reports whether both blobs are present for clientID.
func (m *DiskMirror) Exists(clientID string) bool {
	indexPath, metaPath := m.paths(clientID)
	_, errIndex := os.Stat(indexPath)
	_, errMeta := os.Stat(metaPath)
	return errIndex == nil && errMeta == nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
