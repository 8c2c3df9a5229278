package upload

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	APKDir      = "apk"
	MaterialDir = "material"
)

var ErrBadName = errors.New("invalid file name")

// Dir is the root under which uploaded files are kept, one subdirectory per
// kind.
type Dir struct {
	root string
}

func New(root string) (*Dir, error) {
	for _, sub := range []string{APKDir, MaterialDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("upload: mkdir %s: %w", sub, err)
		}
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Path(sub string) string {
	return filepath.Join(d.root, sub)
}

type Saved struct {
	// Name is the path relative to the upload root, e.g. material/<md5>.mp4.
	Name string
	MD5  string
	// Created is false when identical content was already stored.
	Created bool
}

// SaveMaterial stores r under material/<md5>.<ext>, where ext comes from the
// client's filename. Identical content lands on the same file.
func (d *Dir) SaveMaterial(r io.Reader, filename string) (Saved, error) {
	h := md5.New()
	tmp, err := d.writeTemp(MaterialDir, io.TeeReader(r, h))
	if err != nil {
		return Saved{}, err
	}
	defer func() { _ = os.Remove(tmp) }()

	sum := hex.EncodeToString(h.Sum(nil))
	name := sum
	if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext != "" {
		name += "." + ext
	}
	dst := filepath.Join(d.root, MaterialDir, name)
	_, statErr := os.Stat(dst)
	if err := os.Rename(tmp, dst); err != nil {
		return Saved{}, fmt.Errorf("upload: rename: %w", err)
	}
	return Saved{Name: MaterialDir + "/" + name, MD5: sum, Created: os.IsNotExist(statErr)}, nil
}

// Remove deletes a stored file by the name SaveMaterial returned.
func (d *Dir) Remove(name string) error {
	clean := filepath.Clean("/" + name)
	if clean == "/" {
		return ErrBadName
	}
	if err := os.Remove(filepath.Join(d.root, clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("upload: remove: %w", err)
	}
	return nil
}

// SaveAPK stores r under apk/<filename> and returns the stored file name.
// Only the base name of filename is used.
func (d *Dir) SaveAPK(r io.Reader, filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", ErrBadName
	}
	tmp, err := d.writeTemp(APKDir, r)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Rename(tmp, filepath.Join(d.root, APKDir, name)); err != nil {
		return "", fmt.Errorf("upload: rename: %w", err)
	}
	return name, nil
}

func (d *Dir) writeTemp(sub string, r io.Reader) (string, error) {
	path := filepath.Join(d.root, sub, ".upload-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("upload: create temp: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("upload: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("upload: close: %w", err)
	}
	return path, nil
}
