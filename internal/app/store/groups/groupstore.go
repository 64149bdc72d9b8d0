// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/groupdrop/internal/app/system/inputval"
	"github.com/dalemusser/groupdrop/internal/app/system/normalize"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("group not found")
	ErrDuplicateCode   = errors.New("a group with this code already exists")
	ErrNameTaken       = errors.New("member name is already taken in this group")
	ErrGroupFull       = errors.New("group is full")
)

// NamespaceRemover releases a group's storage area.
type NamespaceRemover interface {
	DeleteNamespace(ctx context.Context, code string) error
}

// Store is the registry of live groups keyed by code. Groups exist only in
// memory and live until their last member leaves or Delete is called.
//
// Lock order: the registry lock and a group's lock are never held
// together.
type Store struct {
	mu     sync.RWMutex
	groups map[string]*Group
	// draining holds codes whose storage is being deleted. Their entries
	// stay in groups so the code cannot be reused until the delete ends.
	draining map[string]struct{}
	ns       NamespaceRemover
	log      *zap.Logger
	now      func() time.Time
}

// New returns an empty registry. ns may be nil when no storage is attached.
func New(ns NamespaceRemover, logger *zap.Logger) *Store {
	return &Store{
		groups:   make(map[string]*Group),
		draining: make(map[string]struct{}),
		ns:       ns,
		log:      logger,
		now:      time.Now,
	}
}

// Create registers an empty group. The code is used verbatim
// (case-sensitive); the display name is normalized.
func (s *Store) Create(ctx context.Context, code, name string, maxMembers int) (models.GroupInfo, error) {
	name = normalize.Name(name)
	switch {
	case !inputval.IsValidGroupCode(code):
		return models.GroupInfo{}, fmt.Errorf("%w: group code %q", ErrInvalidArgument, code)
	case name == "":
		return models.GroupInfo{}, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	case normalize.NameTooLong(name):
		return models.GroupInfo{}, fmt.Errorf("%w: group name is longer than %d characters", ErrInvalidArgument, normalize.MaxNameRunes)
	case maxMembers <= 0:
		return models.GroupInfo{}, fmt.Errorf("%w: maxMembers must be positive", ErrInvalidArgument)
	}

	g := &Group{
		code:       code,
		name:       name,
		maxMembers: maxMembers,
		createdAt:  s.now().UTC(),
		now:        s.now,
	}

	s.mu.Lock()
	if _, exists := s.groups[code]; exists {
		s.mu.Unlock()
		return models.GroupInfo{}, ErrDuplicateCode
	}
	s.groups[code] = g
	s.mu.Unlock()

	s.log.Info("group created",
		zap.String("group_code", code),
		zap.String("group_name", name),
		zap.Int("max_members", maxMembers))
	return g.Info(), nil
}

// Get returns the live group for code.
func (s *Store) Get(code string) (*Group, error) {
	s.mu.RLock()
	g, ok := s.groups[code]
	s.mu.RUnlock()
	if !ok || g.isClosed() {
		return nil, ErrNotFound
	}
	return g, nil
}

// Delete closes the group and releases its storage namespace. The code
// stays reserved, so Create reports ErrDuplicateCode, until the namespace
// delete returns. Deleting an absent or draining group is a no-op. A
// storage failure is logged and returned but the group is gone from the
// registry regardless.
func (s *Store) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	g, ok := s.groups[code]
	if _, busy := s.draining[code]; !ok || busy {
		s.mu.Unlock()
		return nil
	}
	s.draining[code] = struct{}{}
	s.mu.Unlock()
	g.close()

	var err error
	if s.ns != nil {
		err = s.ns.DeleteNamespace(ctx, code)
	}

	s.mu.Lock()
	delete(s.groups, code)
	delete(s.draining, code)
	s.mu.Unlock()

	if err != nil {
		s.log.Error("failed to delete group storage",
			zap.String("group_code", code), zap.Error(err))
		return fmt.Errorf("delete storage for %s: %w", code, err)
	}
	s.log.Info("group deleted", zap.String("group_code", code))
	return nil
}

// Groups returns the live groups ordered by code.
func (s *Store) Groups() []*Group {
	s.mu.RLock()
	out := make([]*Group, 0, len(s.groups))
	for code, g := range s.groups {
		if _, busy := s.draining[code]; !busy {
			out = append(out, g)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

// List returns summaries of every live group ordered by code.
func (s *Store) List() []models.GroupInfo {
	groups := s.Groups()
	out := make([]models.GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Info())
	}
	return out
}

// Count returns the number of live groups.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups) - len(s.draining)
}
