// Package static reads pages from a static root directory.
package static

import (
	"os"
)

// NotFoundText is the body served when the root has no 404.html.
const NotFoundText = "404 NOT FOUND"

// Root is a directory of static pages.
//
// Sub-paths are joined to the directory by plain concatenation, exactly as
// they arrive in the request line; ".." segments are not resolved or
// rejected, so the root must not be treated as a confinement boundary.
type Root struct {
	dir string
}

// NewRoot returns a Root over dir.
func NewRoot(dir string) Root {
	return Root{dir: dir}
}

// Dir returns the root directory.
func (r Root) Dir() string { return r.dir }

// Index reads index.html.
func (r Root) Index() ([]byte, error) {
	return os.ReadFile(r.dir + "/index.html")
}

// Page reads the file at sub-path p, which begins with '/'.
func (r Root) Page(p string) ([]byte, error) {
	return os.ReadFile(r.dir + p)
}

// NotFound returns the body of the 404 page, or NotFoundText if the root
// has no 404.html.
func (r Root) NotFound() []byte {
	body, err := os.ReadFile(r.dir + "/404.html")
	if err != nil {
		return []byte(NotFoundText)
	}
	return body
}
