package testutil

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.uber.org/zap"
)

// Env is a fully wired in-memory set of services for tests.
type Env struct {
	Storage *FailingStore
	Memory  *storage.Memory
	Groups  *groupstore.Store
	Hub     *broadcast.Hub
	Members *membership.Controller
	Uploads *reassembly.Reassembler
}

// NewEnv wires the services over an in-memory file store.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	logger := zap.NewNop()
	mem := storage.NewMemory(storage.MemoryConfig{})
	fs := &FailingStore{Store: filestore.New(mem, logger)}
	groups := groupstore.New(fs, logger)
	hub := broadcast.NewHub(logger)
	members := membership.New(groups, hub, logger)
	return &Env{
		Storage: fs,
		Memory:  mem,
		Groups:  groups,
		Hub:     hub,
		Members: members,
		Uploads: reassembly.New(fs, members, reassembly.Limits{MinChunkSize: 1}, logger),
	}
}

// CreateGroup creates a group or fails the test.
func (e *Env) CreateGroup(t *testing.T, code, name string, maxMembers int) {
	t.Helper()
	if _, err := e.Groups.Create(context.Background(), code, name, maxMembers); err != nil {
		t.Fatalf("create group %s: %v", code, err)
	}
}

// Stored returns the bytes of a committed file.
func (e *Env) Stored(code, storedName string) ([]byte, bool) {
	b, err := e.Memory.GetBytes(context.Background(), filestore.Key(code, storedName))
	if err != nil {
		return nil, false
	}
	return b, true
}

// StoredNames lists the stored names in a group's namespace, sorted.
func (e *Env) StoredNames(code string) []string {
	res, err := e.Memory.List(context.Background(), code+"/", nil)
	if err != nil {
		return nil
	}
	var names []string
	for _, obj := range res.Objects {
		if name, ok := strings.CutPrefix(obj.Path, code+"/"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Join joins name to code over a new recording connection with id connID.
func (e *Env) Join(t *testing.T, code, name, connID string) *RecordingConn {
	t.Helper()
	conn := NewRecordingConn(connID)
	if _, err := e.Members.Join(code, name, conn); err != nil {
		t.Fatalf("join %s as %s: %v", code, name, err)
	}
	return conn
}

// FailingStore wraps a filestore.Store and can be told to fail writes,
// reads or namespace deletes.
type FailingStore struct {
	filestore.Store

	mu        sync.Mutex
	writeErr  error
	openErr   error
	deleteErr error
	pingErr   error
	gate      chan struct{}
	entered   chan struct{}
	writes    int
}

// FailWrites makes WriteFile return err. A nil err restores normal writes.
func (s *FailingStore) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// FailOpens makes Open return err.
func (s *FailingStore) FailOpens(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// FailDeletes makes DeleteNamespace return err.
func (s *FailingStore) FailDeletes(err error) {
	s.mu.Lock()
	s.deleteErr = err
	s.mu.Unlock()
}

// HoldDeletes makes the next DeleteNamespace calls wait until release is
// called. entered receives once per call that reaches the gate.
func (s *FailingStore) HoldDeletes() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	s.entered = make(chan struct{}, 16)
	var once sync.Once
	return s.entered, func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailPings makes Ping return err.
func (s *FailingStore) FailPings(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

// Writes returns the number of successful WriteFile calls.
func (s *FailingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *FailingStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	err := s.pingErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Ping(ctx)
}

func (s *FailingStore) WriteFile(ctx context.Context, code, storedName string, r io.Reader, size int64) (string, error) {
	s.mu.Lock()
	err := s.writeErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	loc, err := s.Store.WriteFile(ctx, code, storedName, r, size)
	if err == nil {
		s.mu.Lock()
		s.writes++
		s.mu.Unlock()
	}
	return loc, err
}

func (s *FailingStore) Open(ctx context.Context, code, storedName string) (io.ReadCloser, error) {
	s.mu.Lock()
	err := s.openErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Open(ctx, code, storedName)
}

func (s *FailingStore) DeleteNamespace(ctx context.Context, code string) error {
	s.mu.Lock()
	err, gate, entered := s.deleteErr, s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return s.Store.DeleteNamespace(ctx, code)
}
