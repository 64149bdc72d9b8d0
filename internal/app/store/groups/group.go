// internal/app/store/groups/group.go
package groupstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/groupdrop/internal/domain/models"
)

// Group is one live group. All reads and writes go through its mutex;
// Mutate is the only way to change it.
type Group struct {
	mu         sync.Mutex
	code       string
	name       string
	maxMembers int
	createdAt  time.Time
	now        func() time.Time

	members []models.Member
	files   []models.FileRecord
	logs    []models.LogEntry
	closed  bool
}

// Code returns the group's immutable code.
func (g *Group) Code() string { return g.code }

// Name returns the group's display name.
func (g *Group) Name() string { return g.name }

// MaxMembers returns the capacity fixed at creation.
func (g *Group) MaxMembers() int { return g.maxMembers }

// Mutate runs fn with exclusive access to the group. It returns ErrNotFound
// without calling fn once the group has been torn down.
func (g *Group) Mutate(fn func(m *Mutation) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrNotFound
	}
	return fn(&Mutation{g: g})
}

// Info returns a summary of the group.
func (g *Group) Info() models.GroupInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.infoLocked()
}

// Snapshot returns copies of the log, file list and member names.
func (g *Group) Snapshot() models.GroupSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// CheckJoin reports whether name could join right now without joining.
func (g *Group) CheckJoin(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrNotFound
	}
	return g.checkJoinLocked(name)
}

// FindFile looks up a committed file by stored name.
func (g *Group) FindFile(storedName string) (models.FileRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.files {
		if f.StoredName == storedName {
			return f, true
		}
	}
	return models.FileRecord{}, false
}

// HasMember reports whether name is currently joined.
func (g *Group) HasMember(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.indexOfLocked(name) >= 0
}

func (g *Group) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Group) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Group) infoLocked() models.GroupInfo {
	return models.GroupInfo{
		Code:        g.code,
		Name:        g.name,
		MaxMembers:  g.maxMembers,
		MemberCount: len(g.members),
		CreatedAt:   g.createdAt,
	}
}

func (g *Group) snapshotLocked() models.GroupSnapshot {
	snap := models.GroupSnapshot{
		Logs:    make([]models.LogEntry, len(g.logs)),
		Files:   make([]models.FileRecord, len(g.files)),
		Members: make([]string, len(g.members)),
	}
	copy(snap.Logs, g.logs)
	copy(snap.Files, g.files)
	for i, m := range g.members {
		snap.Members[i] = m.Name
	}
	return snap
}

func (g *Group) checkJoinLocked(name string) error {
	if name == "" {
		return fmt.Errorf("%w: member name is required", ErrInvalidArgument)
	}
	if len(g.members) >= g.maxMembers {
		return ErrGroupFull
	}
	if g.indexOfLocked(name) >= 0 {
		return ErrNameTaken
	}
	return nil
}

func (g *Group) indexOfLocked(name string) int {
	for i, m := range g.members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Mutation is the write view handed to Mutate callbacks. It must not be
// retained after the callback returns.
type Mutation struct {
	g *Group
}

// Code returns the group's code.
func (m *Mutation) Code() string { return m.g.code }

// Info returns a summary of the group as it stands.
func (m *Mutation) Info() models.GroupInfo { return m.g.infoLocked() }

// AddMember appends a member. Capacity is checked before name uniqueness.
func (m *Mutation) AddMember(name, connID string) error {
	if err := m.g.checkJoinLocked(name); err != nil {
		return err
	}
	m.g.members = append(m.g.members, models.Member{
		Name:     name,
		ConnID:   connID,
		JoinedAt: m.g.now().UTC(),
	})
	return nil
}

// RemoveMember removes the member called name, if present.
func (m *Mutation) RemoveMember(name string) (models.Member, bool) {
	i := m.g.indexOfLocked(name)
	if i < 0 {
		return models.Member{}, false
	}
	return m.removeAt(i), true
}

// RemoveConn removes the member bound to connID, if any.
func (m *Mutation) RemoveConn(connID string) (models.Member, bool) {
	for i, mem := range m.g.members {
		if mem.ConnID == connID {
			return m.removeAt(i), true
		}
	}
	return models.Member{}, false
}

func (m *Mutation) removeAt(i int) models.Member {
	mem := m.g.members[i]
	m.g.members = append(m.g.members[:i], m.g.members[i+1:]...)
	return mem
}

// MemberCount returns the current number of members.
func (m *Mutation) MemberCount() int { return len(m.g.members) }

// AppendFile records a committed file.
func (m *Mutation) AppendFile(rec models.FileRecord) {
	m.g.files = append(m.g.files, rec)
}

// Log appends an activity entry stamped with the current time.
func (m *Mutation) Log(msg string) {
	m.g.logs = append(m.g.logs, models.LogEntry{Time: m.g.now().UTC(), Message: msg})
}

// Snapshot returns the state as it stands inside the critical section.
func (m *Mutation) Snapshot() models.GroupSnapshot { return m.g.snapshotLocked() }

// Close marks the group torn down. Later Mutate calls fail with
// ErrNotFound; the caller is expected to Delete it from the registry.
func (m *Mutation) Close() { m.g.closed = true }
