// Package router maps request paths to registered handlers by exact match.
package router

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/net/http/httpguts"
)

// DefaultContentType is used for routes registered without one.
const DefaultContentType = "text/html; charset=utf-8"

var (
	ErrDuplicateRoute     = errors.New("router: duplicate route")
	ErrInvalidPath        = errors.New("router: invalid path")
	ErrInvalidContentType = errors.New("router: invalid content type")
)

// Route is one registered path.
type Route[H any] struct {
	Path        string
	ContentType string
	Handler     H
}

// Builder collects routes before they are frozen into a Table.
type Builder[H any] struct {
	routes map[string]Route[H]
}

// NewBuilder returns an empty builder.
func NewBuilder[H any]() *Builder[H] {
	return &Builder[H]{routes: make(map[string]Route[H])}
}

// Add registers h for path. An empty contentType means DefaultContentType.
//
// The root path is always served from the static root, and a path holding
// a space can never appear in a request line, so both are rejected.
func (b *Builder[H]) Add(path, contentType string, h H) error {
	switch {
	case path == "" || path[0] != '/':
		return errors.Wrapf(ErrInvalidPath, "%q must start with /", path)
	case path == "/":
		return errors.Wrap(ErrInvalidPath, "/ is reserved for the static index")
	case strings.ContainsAny(path, " \r\n"):
		return errors.Wrapf(ErrInvalidPath, "%q contains whitespace", path)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !httpguts.ValidHeaderFieldValue(contentType) {
		return errors.Wrapf(ErrInvalidContentType, "%q", contentType)
	}
	if _, ok := b.routes[path]; ok {
		return errors.Wrapf(ErrDuplicateRoute, "%s", path)
	}
	b.routes[path] = Route[H]{Path: path, ContentType: contentType, Handler: h}
	return nil
}

// Build freezes the routes added so far. Later Adds do not affect the
// returned table.
func (b *Builder[H]) Build() *Table[H] {
	routes := make(map[string]Route[H], len(b.routes))
	for k, v := range b.routes {
		routes[k] = v
	}
	return &Table[H]{routes: routes}
}

// Table is an immutable route table, safe for concurrent lookups.
type Table[H any] struct {
	routes map[string]Route[H]
}

// Lookup finds the route registered for exactly path.
func (t *Table[H]) Lookup(path string) (Route[H], bool) {
	r, ok := t.routes[path]
	return r, ok
}

// Len returns the number of routes.
func (t *Table[H]) Len() int { return len(t.routes) }

// Paths returns all registered paths, sorted.
func (t *Table[H]) Paths() []string {
	paths := lo.Keys(t.routes)
	slices.Sort(paths)
	return paths
}

// Wrap returns a table with every handler replaced by fn(route). Paths and
// content types are unchanged.
func (t *Table[H]) Wrap(fn func(r Route[H]) H) *Table[H] {
	routes := lo.MapValues(t.routes, func(r Route[H], _ string) Route[H] {
		r.Handler = fn(r)
		return r
	})
	return &Table[H]{routes: routes}
}
