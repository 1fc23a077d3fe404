// Package archive stores gob values in snappy-compressed files.
//
// Writes go to a temporary file in the destination directory and are renamed
// into place, so readers never observe a partially written archive and a
// crashed writer leaves the previous version intact.
package archive

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"hcnn/internal/faults"
)

const magic = "HCNNARC1"

var (
	// ErrNotFound reports a missing archive.
	ErrNotFound = errors.New("archive not found")
	// ErrCorrupt reports an archive that cannot be decoded.
	ErrCorrupt = fmt.Errorf("%w: archive corrupt", faults.ErrIO)
)

// Write encodes v to path atomically.
func Write(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return faults.Wrap(faults.ErrIO, "archive", "mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return faults.Wrap(faults.ErrIO, "archive", "create", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := Encode(tmp, v); err != nil {
		cleanup()
		return faults.Wrap(faults.ErrIO, "archive", "encode", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return faults.Wrap(faults.ErrIO, "archive", "sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return faults.Wrap(faults.ErrIO, "archive", "close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return faults.Wrap(faults.ErrIO, "archive", "rename", path, err)
	}
	return nil
}

// Read decodes the archive at path into v.
func Read(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return faults.Wrap(faults.ErrIO, "archive", "open", path, err)
	}
	defer f.Close()
	if err := Decode(f, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Encode writes the archive framing and v to w.
func Encode(w io.Writer, v any) error {
	sw := snappy.NewBufferedWriter(w)
	if _, err := io.WriteString(sw, magic); err != nil {
		return err
	}
	if err := gob.NewEncoder(sw).Encode(v); err != nil {
		return err
	}
	return sw.Close()
}

// Decode reads an archive written by Encode.
func Decode(r io.Reader, v any) error {
	br := bufio.NewReader(snappy.NewReader(r))
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if string(header) != magic {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, header)
	}
	if err := gob.NewDecoder(br).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return nil
}

// Exists reports whether an archive file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Copy duplicates an archive atomically.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return faults.Wrap(faults.ErrIO, "archive", "open", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return faults.Wrap(faults.ErrIO, "archive", "create", dst, err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return faults.Wrap(faults.ErrIO, "archive", "copy", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return faults.Wrap(faults.ErrIO, "archive", "close", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return faults.Wrap(faults.ErrIO, "archive", "rename", dst, err)
	}
	return nil
}
