/*
Package httpserver implements the HTTP API of the media store.

Uploads go through a media.Manager, which assigns each asset a storage
directory from the configured path generator and writes the file through the
storage backend (usually a replicated primary/secondary pair). Stored files can
then be fetched, checked and deleted by their storage key.

# API Endpoints

	POST   /api/media/{context}?id=<id>&reference=<name>
	GET    /api/files/{key...}
	HEAD   /api/files/{key...}
	DELETE /api/files/{key...}
	GET    /api/keys

An upload answers 201 with:

	{"key":"user/1234/56/photo.jpg","path":"user/1234/56","url":"https://cdn.example.com/user/1234/56/photo.jpg","size":10}

GET on a file sets Last-Modified when the backend tracks modification times.

# Error Mapping

  - interfaces.ErrKeyNotFound: 404 Not Found
  - media.ErrInvalidAsset and interfaces.ErrInvalidKey: 400 Bad Request
  - anything else: 500 Internal Server Error

# Health and Diagnostics

  - /livez: liveness check
  - /readyz: readiness check, 503 while draining
  - /drain and /undrain: toggle readiness for load balancer rotation
  - /debug/pprof: profiling, when enabled

Prometheus metrics are served by a separate listener on MetricsAddr.
*/
package httpserver
