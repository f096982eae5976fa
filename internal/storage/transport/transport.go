// Package transport carries HTTP status information on storage read
// errors, so the retrieval path can tell a backend 404 apart from other
// transport failures regardless of which adapter produced the error.
package transport

import (
	"fmt"
	"io/fs"
	"net/http"
)

// StatusError is a non-success HTTP status answered by a storage backend.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Status)
}

// Is makes a backend 404 satisfy errors.Is(err, fs.ErrNotExist), the same
// signal a missing local file produces.
func (e *StatusError) Is(target error) bool {
	return target == fs.ErrNotExist && e.Status == http.StatusNotFound
}
