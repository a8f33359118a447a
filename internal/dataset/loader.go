package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Loader loads a dataset from a location relative to a suite directory.
// Load returns nil, nil only when location is empty.
type Loader interface {
	Load(dir, location string) (*Dataset, error)
}

// Decoder parses one encoding of the flat format.
type Decoder interface {
	Decode(name string, data []byte) (*Dataset, error)
}

// FlatLoader reads flat datasets from a filesystem, choosing the decoder by
// file extension.
type FlatLoader struct {
	fs       afero.Fs
	decoders map[string]Decoder
}

// NewFlatLoader creates a loader reading from fs, or from the OS filesystem
// when fs is nil. YAML, XML and CUE are registered by default.
func NewFlatLoader(fs afero.Fs) *FlatLoader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FlatLoader{
		fs: fs,
		decoders: map[string]Decoder{
			".yaml": YAMLDecoder{},
			".yml":  YAMLDecoder{},
			".xml":  XMLDecoder{},
			".cue":  CUEDecoder{},
		},
	}
}

// Register associates a decoder with a file extension such as ".json".
func (l *FlatLoader) Register(ext string, d Decoder) {
	l.decoders[strings.ToLower(ext)] = d
}

// Load implements Loader.
func (l *FlatLoader) Load(dir, location string) (*Dataset, error) {
	if location == "" {
		return nil, nil
	}

	path := Resolve(dir, location)
	dec, ok := l.decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, &LoadError{
			Location: location,
			Path:     path,
			Err:      fmt.Errorf("no decoder registered for extension %q", filepath.Ext(path)),
		}
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, &LoadError{Location: location, Path: path, Err: err}
	}

	ds, err := dec.Decode(path, data)
	if err != nil {
		return nil, &LoadError{Location: location, Path: path, Err: err}
	}
	return ds, nil
}

// Resolve returns location unchanged when it is absolute and joined to dir
// otherwise.
func Resolve(dir, location string) string {
	if filepath.IsAbs(location) || dir == "" {
		return filepath.Clean(location)
	}
	return filepath.Join(dir, location)
}
