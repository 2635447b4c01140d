package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorageBackend implements interfaces.StorageBackend for testing
type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Read(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Write(ctx context.Context, key string, content []byte) (int, error) {
	args := m.Called(ctx, key, content)
	return args.Int(0), args.Error(1)
}

func (m *MockStorageBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorageBackend) Rename(ctx context.Context, sourceKey, targetKey string) error {
	args := m.Called(ctx, sourceKey, targetKey)
	return args.Error(0)
}

func (m *MockStorageBackend) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorageBackend) Mtime(ctx context.Context, key string) (time.Time, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockStorageBackend) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorageBackend) IsDirectory(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.name
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock://" + m.name
}

func newMockPair() (*MockStorageBackend, *MockStorageBackend) {
	return &MockStorageBackend{name: "primary"}, &MockStorageBackend{name: "secondary"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBackend = errors.New("backend failure")

func TestReplicatedBackend_Write(t *testing.T) {
	key := "user/1234/12/photo.jpg"
	content := []byte("binary")

	tests := []struct {
		name            string
		primaryErr      error
		secondaryErr    error
		secondaryCalls  int
		expectedErr     error
		expectedWritten int
	}{
		{
			name:            "both succeed",
			secondaryCalls:  1,
			expectedWritten: len(content),
		},
		{
			name:           "primary fails, secondary never attempted",
			primaryErr:     errBackend,
			secondaryCalls: 0,
			expectedErr:    errBackend,
		},
		{
			name:            "secondary failure is dropped",
			secondaryErr:    errBackend,
			secondaryCalls:  1,
			expectedWritten: len(content),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, secondary := newMockPair()
			if tt.primaryErr != nil {
				primary.On("Write", mock.Anything, key, content).Return(0, tt.primaryErr).Once()
			} else {
				primary.On("Write", mock.Anything, key, content).Return(len(content), nil).Once()
			}
			if tt.secondaryCalls > 0 {
				secondary.On("Write", mock.Anything, key, content).Return(0, tt.secondaryErr).Once()
			}

			r := NewReplicatedBackend(primary, secondary, discardLogger())
			n, err := r.Write(context.Background(), key, content)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedWritten, n)

			primary.AssertNumberOfCalls(t, "Write", 1)
			secondary.AssertNumberOfCalls(t, "Write", tt.secondaryCalls)
			primary.AssertExpectations(t)
			secondary.AssertExpectations(t)
		})
	}
}

func TestReplicatedBackend_Delete(t *testing.T) {
	key := "user/10/"

	tests := []struct {
		name         string
		secondaryErr error
		primaryErr   error
		primaryCalls int
		expectedErr  error
	}{
		{
			name:         "both succeed",
			primaryCalls: 1,
		},
		{
			name:         "secondary fails, primary never attempted",
			secondaryErr: interfaces.ErrKeyNotFound,
			primaryCalls: 0,
			expectedErr:  interfaces.ErrKeyNotFound,
		},
		{
			name:         "primary failure is returned",
			primaryErr:   errBackend,
			primaryCalls: 1,
			expectedErr:  errBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, secondary := newMockPair()
			secondary.On("Delete", mock.Anything, key).Return(tt.secondaryErr).Once()
			if tt.primaryCalls > 0 {
				primary.On("Delete", mock.Anything, key).Return(tt.primaryErr).Once()
			}

			r := NewReplicatedBackend(primary, secondary, discardLogger())
			err := r.Delete(context.Background(), key)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}

			secondary.AssertNumberOfCalls(t, "Delete", 1)
			primary.AssertNumberOfCalls(t, "Delete", tt.primaryCalls)
		})
	}
}

func TestReplicatedBackend_DeleteOrder(t *testing.T) {
	primary, secondary := newMockPair()
	var order []string
	secondary.On("Delete", mock.Anything, "k").Return(nil).Run(func(mock.Arguments) { order = append(order, "secondary") })
	primary.On("Delete", mock.Anything, "k").Return(nil).Run(func(mock.Arguments) { order = append(order, "primary") })

	r := NewReplicatedBackend(primary, secondary, discardLogger())
	require.NoError(t, r.Delete(context.Background(), "k"))
	assert.Equal(t, []string{"secondary", "primary"}, order)
}

func TestReplicatedBackend_Rename(t *testing.T) {
	tests := []struct {
		name         string
		primaryErr   error
		secondaryErr error
		expectedErr  error
	}{
		{name: "both succeed"},
		{name: "primary fails", primaryErr: errBackend, expectedErr: errBackend},
		{name: "secondary fails", secondaryErr: errBackend},
		{name: "both fail", primaryErr: errBackend, secondaryErr: errors.New("other"), expectedErr: errBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, secondary := newMockPair()
			var order []string
			primary.On("Rename", mock.Anything, "a", "b").Return(tt.primaryErr).Once().
				Run(func(mock.Arguments) { order = append(order, "primary") })
			secondary.On("Rename", mock.Anything, "a", "b").Return(tt.secondaryErr).Once().
				Run(func(mock.Arguments) { order = append(order, "secondary") })

			r := NewReplicatedBackend(primary, secondary, discardLogger())
			err := r.Rename(context.Background(), "a", "b")

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{"primary", "secondary"}, order)
			primary.AssertNumberOfCalls(t, "Rename", 1)
			secondary.AssertNumberOfCalls(t, "Rename", 1)
		})
	}
}

func TestReplicatedBackend_ReadsServedByPrimaryOnly(t *testing.T) {
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		method string
		setup  func(m *MockStorageBackend, err error)
		call   func(r *ReplicatedBackend) error
	}{
		{
			name:   "read",
			method: "Read",
			setup: func(m *MockStorageBackend, err error) {
				if err != nil {
					m.On("Read", mock.Anything, "k").Return(nil, err)
					return
				}
				m.On("Read", mock.Anything, "k").Return([]byte("data"), nil)
			},
			call: func(r *ReplicatedBackend) error {
				_, err := r.Read(context.Background(), "k")
				return err
			},
		},
		{
			name:   "exists",
			method: "Exists",
			setup: func(m *MockStorageBackend, err error) {
				m.On("Exists", mock.Anything, "k").Return(err == nil, err)
			},
			call: func(r *ReplicatedBackend) error {
				_, err := r.Exists(context.Background(), "k")
				return err
			},
		},
		{
			name:   "mtime",
			method: "Mtime",
			setup: func(m *MockStorageBackend, err error) {
				m.On("Mtime", mock.Anything, "k").Return(mtime, err)
			},
			call: func(r *ReplicatedBackend) error {
				_, err := r.Mtime(context.Background(), "k")
				return err
			},
		},
		{
			name:   "keys",
			method: "Keys",
			setup: func(m *MockStorageBackend, err error) {
				if err != nil {
					m.On("Keys", mock.Anything).Return(nil, err)
					return
				}
				m.On("Keys", mock.Anything).Return([]string{"k"}, nil)
			},
			call: func(r *ReplicatedBackend) error {
				_, err := r.Keys(context.Background())
				return err
			},
		},
		{
			name:   "is directory",
			method: "IsDirectory",
			setup: func(m *MockStorageBackend, err error) {
				m.On("IsDirectory", mock.Anything, "k").Return(false, err)
			},
			call: func(r *ReplicatedBackend) error {
				_, err := r.IsDirectory(context.Background(), "k")
				return err
			},
		},
	}

	for _, tt := range tests {
		for _, failing := range []bool{false, true} {
			name := tt.name + "/success"
			var backendErr error
			if failing {
				name = tt.name + "/failure"
				backendErr = errBackend
			}

			t.Run(name, func(t *testing.T) {
				primary, secondary := newMockPair()
				tt.setup(primary, backendErr)

				r := NewReplicatedBackend(primary, secondary, discardLogger())
				err := tt.call(r)

				if failing {
					assert.ErrorIs(t, err, errBackend)
				} else {
					assert.NoError(t, err)
				}
				primary.AssertNumberOfCalls(t, tt.method, 1)
				assert.Empty(t, secondary.Calls)
			})
		}
	}
}

func TestReplicatedBackend_ReadReturnsPrimaryContent(t *testing.T) {
	primary, secondary := newMockPair()
	primary.On("Read", mock.Anything, "k").Return([]byte("from primary"), nil)

	r := NewReplicatedBackend(primary, secondary, discardLogger())
	data, err := r.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("from primary"), data)
	primary.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestReplicatedBackend_Identity(t *testing.T) {
	primary, secondary := newMockPair()
	primary.On("Available", mock.Anything).Return(false)

	r := NewReplicatedBackend(primary, secondary, nil)
	assert.Equal(t, "replicate", r.Name())
	assert.Equal(t, "replicate:[mock://primary,mock://secondary]", r.LocationURI())
	assert.False(t, r.Available(context.Background()))
	secondary.AssertNotCalled(t, "Available", mock.Anything)
}

func TestReplicatedBackend_DroppedFailureIsLoggedAndCounted(t *testing.T) {
	primary, secondary := newMockPair()
	primary.On("Write", mock.Anything, "k", []byte("x")).Return(1, nil)
	secondary.On("Write", mock.Anything, "k", []byte("x")).Return(0, errBackend)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewStorageMetrics("test", reg)

	r := NewReplicatedBackend(primary, secondary, logger).WithMetrics(m)
	n, err := r.Write(context.Background(), "k", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := buf.String()
	assert.True(t, strings.Contains(out, "Replication leg failed"), out)
	assert.True(t, strings.Contains(out, "leg=secondary"), out)

	expected := `
# HELP test_storage_replication_leg_failures_total Non-gating replication legs that failed and were dropped.
# TYPE test_storage_replication_leg_failures_total counter
test_storage_replication_leg_failures_total{leg="secondary",op="write"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_storage_replication_leg_failures_total"))
}

func TestReplicatedBackend_WithMemoryBackends(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend("primary", discardLogger())
	secondary := NewMemoryBackend("secondary", discardLogger())
	r := NewReplicatedBackend(primary, secondary, discardLogger())

	_, err := r.Write(ctx, "user/1234/12/a.txt", []byte("hello"))
	require.NoError(t, err)

	data, err := secondary.Read(ctx, "user/1234/12/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, r.Rename(ctx, "user/1234/12/a.txt", "user/1234/12/b.txt"))
	ok, err := secondary.Exists(ctx, "user/1234/12/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	// Missing in the secondary blocks the primary delete.
	require.NoError(t, secondary.Delete(ctx, "user/1234/12/b.txt"))
	err = r.Delete(ctx, "user/1234/12/b.txt")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	ok, err = primary.Exists(ctx, "user/1234/12/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplicatedBackend_CloseReleasesLegs(t *testing.T) {
	dir := t.TempDir()
	primary, err := NewPebbleBackend(dir+"/primary", false, discardLogger())
	require.NoError(t, err)
	secondary := NewMemoryBackend("secondary", discardLogger())

	r := NewReplicatedBackend(primary, secondary, discardLogger())
	require.NoError(t, r.Close())

	// A closed pebble store can be reopened.
	reopened, err := NewPebbleBackend(dir+"/primary", false, discardLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Close())
}

func TestCreateReplicatedBackend_ReleasesPrimaryOnSecondaryFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "primary")
	factory := NewStorageBackendFactory(discardLogger())

	primary, err := interfaces.NewStorageBackendLocation("pebble://" + dir)
	require.NoError(t, err)
	secondary, err := interfaces.NewStorageBackendLocation("s3:///nobucket")
	require.NoError(t, err)

	_, err = factory.CreateReplicatedBackend(primary, secondary)
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	reopened, err := NewPebbleBackend(dir, false, discardLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Close())
}
