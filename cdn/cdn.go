// Package cdn builds public URLs for stored media.
package cdn

import "strings"

// Server serves stored files below a base URL or path.
type Server struct {
	Path string
}

// New returns a Server rooted at path.
func New(path string) *Server {
	return &Server{Path: path}
}

// GetPath joins relative onto the server path with exactly one slash between
// them.
func (s *Server) GetPath(relative string) string {
	return strings.TrimRight(s.Path, "/") + "/" + strings.TrimLeft(relative, "/")
}
