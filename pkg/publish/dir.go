package publish

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ Publisher = &Dir{}

// Dir publishes each key as a file named after it in a directory.
type Dir struct {
	path string
}

// NewDir returns a Dir publishing into path. The directory is created on
// the first Publish.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the directory values are published into.
func (d *Dir) Path() string {
	return d.path
}

// Publish writes value to a hidden temporary file, syncs it and renames it
// over the key, so readers see either the old or the new value.
func (d *Dir) Publish(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.MkdirAll(d.path, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", d.path)
	}

	dst := filepath.Join(d.path, key)
	tmp := filepath.Join(d.path, "."+key)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open %s", tmp)
	}

	_, err = f.WriteString(value)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return pkgerrors.Wrapf(err, "failed to write %s", tmp)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return pkgerrors.Wrapf(err, "failed to rename %s to %s", tmp, dst)
	}

	logrus.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Trace("published")

	return nil
}

// Read returns the published value of key, and false if it has never been
// published.
func (d *Dir) Read(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	b, err := os.ReadFile(filepath.Join(d.path, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrapf(err, "failed to read %s", key)
	}

	return string(b), true, nil
}
