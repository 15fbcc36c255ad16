package csvdoc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Store is the working-file directory. Callers address files by name only.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore opens dir on fs, creating it when missing.
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Path maps a file name into the store. Directory components in name are
// discarded.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(strings.TrimSpace(name)))
}

// Exists reports whether name is present.
func (s *Store) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, s.Path(name))
	return err == nil && ok
}

// Load reads and parses name.
func (s *Store) Load(name string) (*Document, error) {
	data, err := s.ReadFile(name)
	if err != nil {
		return nil, err
	}
	doc, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return doc, nil
}

// Save writes doc as name, replacing any previous file in one rename.
func (s *Store) Save(name string, doc *Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	return s.WriteAtomic(name, data)
}

// WriteAtomic writes data to a temporary file next to name and renames it
// into place, so readers never observe a partial file.
func (s *Store) WriteAtomic(name string, data []byte) error {
	target := s.Path(name)
	tmp, err := afero.TempFile(s.fs, s.dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// Remove deletes name. A missing file is not an error.
func (s *Store) Remove(name string) error {
	err := s.fs.Remove(s.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ReadFile returns the raw bytes of name.
func (s *Store) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, s.Path(name))
}

// Newest returns the most recently modified file with extension ext whose
// name does not start with one of skipPrefixes.
func (s *Store) Newest(ext string, skipPrefixes ...string) (string, bool, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return "", false, err
	}
	var files []os.FileInfo
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") || hasAnyPrefix(fi.Name(), skipPrefixes) {
			continue
		}
		if strings.EqualFold(filepath.Ext(fi.Name()), ext) {
			files = append(files, fi)
		}
	}
	if len(files) == 0 {
		return "", false, nil
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime().Equal(files[j].ModTime()) {
			return files[i].Name() < files[j].Name()
		}
		return files[i].ModTime().Before(files[j].ModTime())
	})
	return files[len(files)-1].Name(), true, nil
}

// FileInfo describes one working file.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List returns the visible files of the store, newest first.
func (s *Store) List() ([]FileInfo, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		out = append(out, FileInfo{Name: fi.Name(), Size: fi.Size(), Modified: fi.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Modified.Equal(out[j].Modified) {
			return out[i].Name < out[j].Name
		}
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
