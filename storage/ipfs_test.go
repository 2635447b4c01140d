package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sonata-project/mediastore/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMFS serves the /api/v0/files endpoints used by IPFSBackend over an
// in-memory tree.
type fakeMFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	// writeOpts records the options of the last files/write call.
	writeOpts map[string]string
}

func newFakeMFS() *fakeMFS {
	return &fakeMFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func (f *fakeMFS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	query := r.URL.Query()
	args := query["arg"]
	arg := func(i int) string {
		if i >= len(args) {
			return ""
		}
		return path.Clean(args[i])
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/v0/") {
	case "version":
		writeIPFSJSON(w, map[string]string{"Version": "0.20.0"})

	case "files/write":
		p := arg(0)
		if f.dirs[p] {
			writeIPFSError(w, p+" is a directory")
			return
		}
		if query.Get("parents") == "true" {
			f.mkdirAll(path.Dir(p))
		} else if !f.dirs[path.Dir(p)] {
			writeIPFSError(w, "file does not exist")
			return
		}
		content, err := readMultipartFile(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.writeOpts = map[string]string{
			"create":   query.Get("create"),
			"parents":  query.Get("parents"),
			"truncate": query.Get("truncate"),
		}
		f.files[p] = content

	case "files/read":
		content, ok := f.files[arg(0)]
		if !ok {
			writeIPFSError(w, "file does not exist")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)

	case "files/rm":
		p := arg(0)
		if f.dirs[p] {
			writeIPFSError(w, p+" is a directory, use -r to remove directories")
			return
		}
		if _, ok := f.files[p]; !ok {
			writeIPFSError(w, "file does not exist")
			return
		}
		delete(f.files, p)

	case "files/mkdir":
		p := arg(0)
		if query.Get("parents") != "true" && !f.dirs[path.Dir(p)] {
			writeIPFSError(w, "file does not exist")
			return
		}
		f.mkdirAll(p)

	case "files/mv":
		src, dst := arg(0), arg(1)
		content, ok := f.files[src]
		if !ok {
			writeIPFSError(w, "file does not exist")
			return
		}
		if !f.dirs[path.Dir(dst)] {
			writeIPFSError(w, "no link named \""+path.Base(path.Dir(dst))+"\"")
			return
		}
		delete(f.files, src)
		f.files[dst] = content

	case "files/stat":
		p := arg(0)
		content, isFile := f.files[p]
		switch {
		case f.dirs[p]:
			writeIPFSJSON(w, map[string]interface{}{"Type": "directory"})
		case isFile:
			writeIPFSJSON(w, map[string]interface{}{"Type": "file", "Size": len(content)})
		default:
			writeIPFSError(w, "file does not exist")
		}

	case "files/ls":
		dir := arg(0)
		if !f.dirs[dir] {
			writeIPFSError(w, "file does not exist")
			return
		}
		writeIPFSJSON(w, map[string]interface{}{"Entries": f.children(dir)})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeMFS) mkdirAll(dir string) {
	for ; dir != "/" && dir != "."; dir = path.Dir(dir) {
		f.dirs[dir] = true
	}
}

// children lists the direct entries of dir with the numeric types of a long
// listing: 0 for files, 1 for directories.
func (f *fakeMFS) children(dir string) []map[string]interface{} {
	entries := make(map[string]int)
	for d := range f.dirs {
		if d != dir && path.Dir(d) == dir {
			entries[path.Base(d)] = 1
		}
	}
	for p := range f.files {
		if path.Dir(p) == dir {
			entries[path.Base(p)] = 0
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]interface{}{"Name": name, "Type": entries[name]})
	}
	return out
}

func (f *fakeMFS) lastWriteOpts() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeOpts
}

func (f *fakeMFS) stored(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[p]
	return content, ok
}

func readMultipartFile(r *http.Request) ([]byte, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.Header.Get("Content-Type") == "application/x-directory" {
			continue
		}
		return io.ReadAll(part)
	}
}

func writeIPFSJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeIPFSError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"Message": message, "Code": 0, "Type": "error"})
}

func newFakeIPFSBackend(t *testing.T, root string) (*IPFSBackend, *fakeMFS) {
	fake := newFakeMFS()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	b, err := NewIPFSBackend(host, port, root, 5*time.Second, discardLogger())
	require.NoError(t, err)
	return b, fake
}

func TestIPFSBackend(t *testing.T) {
	runBackendSuiteWith(t, backendSuite{tracksMtime: false}, func(t *testing.T) interfaces.StorageBackend {
		b, _ := newFakeIPFSBackend(t, "media")
		return b
	})
}

func TestIPFSBackend_RootDirectory(t *testing.T) {
	runBackendSuiteWith(t, backendSuite{tracksMtime: false}, func(t *testing.T) interfaces.StorageBackend {
		b, _ := newFakeIPFSBackend(t, "")
		return b
	})
}

func TestIPFSBackend_WriteCreatesParentsAndTruncates(t *testing.T) {
	b, fake := newFakeIPFSBackend(t, "media")
	ctx := context.Background()

	_, err := b.Write(ctx, "user/1234/12/a.jpg", []byte("a longer first version"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"create": "true", "parents": "true", "truncate": "true"}, fake.lastWriteOpts())

	_, err = b.Write(ctx, "user/1234/12/a.jpg", []byte("short"))
	require.NoError(t, err)

	content, ok := fake.stored("/media/user/1234/12/a.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("short"), content)
}

func TestIPFSBackend_KeysIncludeDirectories(t *testing.T) {
	b, _ := newFakeIPFSBackend(t, "media")
	ctx := context.Background()

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = b.Write(ctx, "user/1234/12/a", []byte("x"))
	require.NoError(t, err)

	keys, err = b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "user/1234", "user/1234/12", "user/1234/12/a"}, keys)
}

func TestIPFSBackend_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	srv.Close()

	b, err := NewIPFSBackend(host, port, "", time.Second, discardLogger())
	require.NoError(t, err)
	assert.False(t, b.Available(context.Background()))

	_, err = b.Read(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestIPFSBackend_Paths(t *testing.T) {
	b, err := NewIPFSBackend("127.0.0.1", "5001", "media/", time.Second, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "/media", b.root)
	assert.Equal(t, "/media/user/1234/12/a.jpg", b.getMFSPath("user/1234/12/a.jpg"))
	assert.Equal(t, "/media/user/10", b.getMFSPath("/user/10/"))
	assert.Equal(t, "ipfs://127.0.0.1:5001/media", b.LocationURI())
	assert.Equal(t, "ipfs-127.0.0.1-5001", b.Name())
}

func TestIPFSBackend_MtimeUnsupported(t *testing.T) {
	b, err := NewIPFSBackend("127.0.0.1", "5001", "", 0, discardLogger())
	require.NoError(t, err)

	_, err = b.Mtime(context.Background(), "k")
	assert.ErrorIs(t, err, interfaces.ErrUnsupported)

	_, err = b.Write(context.Background(), "/", []byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidKey)
}

func TestIsIPFSNotFound(t *testing.T) {
	assert.True(t, isIPFSNotFound(errors.New("files/stat: file does not exist")))
	assert.True(t, isIPFSNotFound(errors.New("no link named \"x\" under Qm")))
	assert.False(t, isIPFSNotFound(errors.New("connection refused")))
}
