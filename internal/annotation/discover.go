package annotation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Static serves declarations held in memory. Suite is applied to every test;
// Tests holds the per-test declarations keyed by test name.
type Static struct {
	Suite Set
	Tests map[string]Set
}

// Discover returns the suite declarations followed by those of method.
func (s Static) Discover(_ Class, method string) (Declarations, error) {
	return Aggregate(s.Suite, s.Tests[method]), nil
}

// File is the content of a declaration file.
type File struct {
	Set   `yaml:",inline"`
	Tests map[string]Set `yaml:"tests,omitempty"`
}

// FileDiscoverer reads declarations from <Dir>/<Name>.dsunit.yaml files.
// Files are parsed once per suite and cached; a suite without a file has no
// declarations.
type FileDiscoverer struct {
	fs afero.Fs

	mu    sync.Mutex
	cache map[Class]*File
}

// NewFileDiscoverer creates a discoverer reading from fs, or from the OS
// filesystem when fs is nil.
func NewFileDiscoverer(fs afero.Fs) *FileDiscoverer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileDiscoverer{fs: fs, cache: make(map[Class]*File)}
}

// Path returns the declaration file path for class.
func Path(class Class) string {
	return filepath.Join(class.Dir, class.Name+".dsunit.yaml")
}

// Discover returns the declarations of class followed by those of method.
func (d *FileDiscoverer) Discover(class Class, method string) (Declarations, error) {
	f, err := d.file(class)
	if err != nil {
		return Declarations{}, err
	}
	return Aggregate(f.Set, f.Tests[method]), nil
}

func (d *FileDiscoverer) file(class Class) (*File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.cache[class]; ok {
		return f, nil
	}

	f, err := ReadFile(d.fs, Path(class))
	if err != nil {
		return nil, err
	}
	d.cache[class] = f
	return f, nil
}

// ReadFile parses a declaration file. A missing file yields an empty File.
// Unknown fields are rejected so that typos do not silently disable a
// declaration.
func ReadFile(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration file: %w", err)
	}

	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := validate(&f); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &f, nil
}

func validate(f *File) error {
	if err := validateSet("", f.Set); err != nil {
		return err
	}
	for name, s := range f.Tests {
		if err := validateSet("tests."+name+".", s); err != nil {
			return err
		}
	}
	return nil
}

func validateSet(prefix string, s Set) error {
	for i, a := range s.Setup {
		if len(a.Locations) == 0 {
			return fmt.Errorf("%ssetup[%d]: locations is required", prefix, i)
		}
	}
	for i, a := range s.Teardown {
		if len(a.Locations) == 0 {
			return fmt.Errorf("%steardown[%d]: locations is required", prefix, i)
		}
	}
	return nil
}
