package runner

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/dsunit/internal/database"
)

// ConnectionSet holds the named connections of one invocation.
type ConnectionSet struct {
	names []string
	conns map[string]database.Connection

	mu     sync.Mutex
	closed map[string]bool
}

// NewConnectionSet creates a set from a name to connection map. The map is
// copied.
func NewConnectionSet(conns map[string]database.Connection) *ConnectionSet {
	s := &ConnectionSet{
		conns:  make(map[string]database.Connection, len(conns)),
		closed: make(map[string]bool, len(conns)),
	}
	for name, c := range conns {
		if c == nil {
			continue
		}
		s.conns[name] = c
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Len returns the number of connections.
func (s *ConnectionSet) Len() int {
	return len(s.names)
}

// Names returns the connection names in lexicographic order.
func (s *ConnectionSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Get returns the named connection.
func (s *ConnectionSet) Get(name string) (database.Connection, bool) {
	c, ok := s.conns[name]
	return c, ok
}

// First returns the connection whose name sorts first, which is the
// connection used when a declaration names none.
func (s *ConnectionSet) First() (string, database.Connection, bool) {
	if len(s.names) == 0 {
		return "", nil, false
	}
	name := s.names[0]
	return name, s.conns[name], true
}

// Close closes every connection that has not been closed yet, in name order.
// A failing close does not stop the others; all failures are returned
// together.
func (s *ConnectionSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *multierror.Error
	for _, name := range s.names {
		if s.closed[name] {
			continue
		}
		s.closed[name] = true
		if err := s.conns[name].Close(); err != nil {
			result = multierror.Append(result, &CloseError{Connection: name, Err: err})
		}
	}
	return result.ErrorOrNil()
}

// CloseError wraps the failure to close one connection.
type CloseError struct {
	Connection string
	Err        error
}

func (e *CloseError) Error() string {
	return "close connection " + e.Connection + ": " + e.Err.Error()
}

func (e *CloseError) Unwrap() error {
	return e.Err
}
