package resolve

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"gorm.io/gorm"

	"github.com/roach88/dsunit/internal/database"
	"github.com/roach88/dsunit/internal/dataset"
	"github.com/roach88/dsunit/internal/operation"
)

// TagName is the struct tag naming a connection field. `dsunit:"-"` hides a
// field from scanning.
const TagName = "dsunit"

type fieldKind int

const (
	kindConnection fieldKind = iota
	kindDataSource
	kindGorm
	kindLoader
	kindLookup
)

var (
	connectionType = reflect.TypeOf((*database.Connection)(nil)).Elem()
	loaderType     = reflect.TypeOf((*dataset.Loader)(nil)).Elem()
	lookupType     = reflect.TypeOf((*operation.Lookup)(nil)).Elem()
	sqlDBType      = reflect.TypeOf((*sql.DB)(nil))
	gormDBType     = reflect.TypeOf((*gorm.DB)(nil))
)

type field struct {
	index []int
	name  string
	kind  fieldKind
}

// Fields are the values found on one test instance.
type Fields struct {
	Connections map[string]database.Connection
	DataSources map[string]*sql.DB
	Gorm        map[string]*gorm.DB

	// Loader and Lookup hold the first non-nil field of their type, in
	// declaration order.
	Loader dataset.Loader
	Lookup operation.Lookup
}

// FieldCache remembers which fields of a struct type hold connections,
// data sources, loaders and lookups. Safe for concurrent use.
type FieldCache struct {
	mu    sync.Mutex
	types map[reflect.Type][]field
}

// NewFieldCache returns an empty cache.
func NewFieldCache() *FieldCache {
	return &FieldCache{types: make(map[reflect.Type][]field)}
}

// Len returns the number of struct types scanned so far.
func (c *FieldCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.types)
}

// Scan reads the relevant fields of instance, which must be a struct or a
// pointer to one. Unexported fields are read too. Nil fields are ignored.
func (c *FieldCache) Scan(instance any) (Fields, error) {
	out := Fields{
		Connections: make(map[string]database.Connection),
		DataSources: make(map[string]*sql.DB),
		Gorm:        make(map[string]*gorm.DB),
	}
	if instance == nil {
		return out, nil
	}

	v := reflect.ValueOf(instance)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return out, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return out, fmt.Errorf("test instance must be a struct or pointer to struct, got %T", instance)
	}
	if !v.CanAddr() {
		addressable := reflect.New(v.Type()).Elem()
		addressable.Set(v)
		v = addressable
	}

	for _, f := range c.fields(v.Type()) {
		fv := v.FieldByIndex(f.index)
		if fv.IsZero() {
			continue
		}
		val := reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem().Interface()

		switch f.kind {
		case kindDataSource:
			out.DataSources[f.name] = val.(*sql.DB)
		case kindGorm:
			out.Gorm[f.name] = val.(*gorm.DB)
		case kindConnection:
			out.Connections[f.name] = val.(database.Connection)
		case kindLoader:
			if out.Loader == nil {
				out.Loader = val.(dataset.Loader)
			}
		case kindLookup:
			if out.Lookup == nil {
				out.Lookup = val.(operation.Lookup)
			}
		}
	}
	return out, nil
}

func (c *FieldCache) fields(t reflect.Type) []field {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fs, ok := c.types[t]; ok {
		return fs
	}
	fs := collect(t, nil)
	c.types[t] = fs
	return fs
}

// collect walks t and its embedded structs.
func collect(t reflect.Type, prefix []int) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}

		index := append(append([]int(nil), prefix...), i)
		name := tag
		if name == "" {
			name = sf.Name
		}

		switch {
		case sf.Type == sqlDBType:
			out = append(out, field{index: index, name: name, kind: kindDataSource})
		case sf.Type == gormDBType:
			out = append(out, field{index: index, name: name, kind: kindGorm})
		case sf.Type.Implements(connectionType):
			out = append(out, field{index: index, name: name, kind: kindConnection})
		case sf.Type.Implements(loaderType):
			out = append(out, field{index: index, name: name, kind: kindLoader})
		case sf.Type.Implements(lookupType):
			out = append(out, field{index: index, name: name, kind: kindLookup})
		case sf.Anonymous && sf.Type.Kind() == reflect.Struct:
			out = append(out, collect(sf.Type, index)...)
		}
	}
	return out
}
