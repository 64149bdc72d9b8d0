// internal/app/system/reassembly/reassembly.go
// Package reassembly rebuilds files sent as indexed fragments over the
// realtime channel.
//
// Fragments for one upload may arrive in any order and from concurrent
// goroutines. Each fragment claims its index under the session lock,
// copies its bytes outside the lock (indices map to disjoint ranges), then
// reports the write under the lock again. Whoever reports the last write
// owns completion: it flushes the buffer to storage and commits the file
// record. Exactly one caller ever sees Complete.
package reassembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/limits"
	"github.com/dalemusser/groupdrop/internal/app/system/normalize"
	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateChunk means the index was already received. The fragment
	// is ignored and the session is unaffected.
	ErrDuplicateChunk = errors.New("duplicate chunk")
	// ErrIndexOutOfRange rejects one fragment; the session continues.
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	// ErrInvalidFragment rejects a malformed fragment.
	ErrInvalidFragment = errors.New("invalid fragment")
	// ErrSessionClosed is returned for fragments that race with a discard.
	ErrSessionClosed = errors.New("upload session closed")
	// ErrStorage wraps a failed flush. No file record is created.
	ErrStorage = errors.New("storage failure")
	// ErrNotJoined is returned to uploaders that hold no membership.
	ErrNotJoined = errors.New("join a group before uploading")
)

// Fragment is one piece of a file.
//
// ChunkSize is optional. When absent it is learned from the first
// non-final fragment; the final fragment is placed so that it ends at
// TotalSize.
type Fragment struct {
	Data        []byte
	FileName    string
	TotalSize   int64
	ChunkIndex  int
	TotalChunks int
	ChunkSize   int64
}

// Owner identifies who is uploading.
type Owner struct {
	ConnID    string
	GroupCode string
	Member    string
}

// Result reports progress after an accepted fragment.
type Result struct {
	FileName string
	Received int
	Total    int
	Complete bool
	Record   *models.FileRecord
}

// Committer records a completed file in its group.
type Committer interface {
	RecordFile(ctx context.Context, code string, rec models.FileRecord) error
}

// Limits bounds what in-flight uploads may hold. Zero fields select the
// defaults from package limits.
type Limits struct {
	MaxFileSize  int64 // largest declared totalSize
	MaxPerConn   int   // sessions in progress per connection
	MaxBuffered  int64 // bytes reserved across every session
	MinChunkSize int64 // finest split allowed for a file
}

func (l Limits) withDefaults() Limits {
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = limits.DefaultMaxUploadSize
	}
	if l.MaxPerConn <= 0 {
		l.MaxPerConn = limits.DefaultUploadsPerConn
	}
	if l.MaxBuffered <= 0 {
		l.MaxBuffered = limits.DefaultUploadBuffer
	}
	if l.MinChunkSize <= 0 {
		l.MinChunkSize = limits.MinChunkSize
	}
	return l
}

// Reassembler owns every in-flight upload session.
type Reassembler struct {
	mu       sync.Mutex
	sessions map[sessionKey]*session
	perConn  map[string]int
	reserved int64

	store  filestore.Store
	commit Committer
	limits Limits
	log    *zap.Logger
	now    func() time.Time
}

// New returns a reassembler that flushes to store and commits through
// commit.
func New(store filestore.Store, commit Committer, lim Limits, logger *zap.Logger) *Reassembler {
	return &Reassembler{
		sessions: make(map[sessionKey]*session),
		perConn:  make(map[string]int),
		store:    store,
		commit:   commit,
		limits:   lim.withDefaults(),
		log:      logger,
		now:      time.Now,
	}
}

type sessionKey struct {
	conn   string
	group  string
	member string
	file   string
}

type session struct {
	mu          sync.Mutex
	owner       Owner
	fileName    string
	totalSize   int64
	totalChunks int
	chunkSize   int64 // 0 until known
	lastLen     int64 // -1 until the final fragment arrives
	buf         []byte
	reserved    int64 // guarded by Reassembler.mu
	claimed     []bool
	written     int
	closed      bool
	lastSeen    time.Time
}

// Accept applies one fragment. On the fragment that completes the upload
// it also flushes and commits, and Result.Complete is set.
func (r *Reassembler) Accept(ctx context.Context, owner Owner, f Fragment) (Result, error) {
	name := normalize.FileName(f.FileName)
	if err := r.validate(name, f); err != nil {
		return Result{FileName: name}, err
	}

	key := sessionKey{conn: owner.ConnID, group: owner.GroupCode, member: owner.Member, file: name}
	s, err := r.session(key, owner, name, f)
	if err != nil {
		return Result{FileName: name}, err
	}

	off, err := s.claim(f, r.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateChunk):
			r.log.Debug("duplicate chunk ignored",
				zap.String("group_code", owner.GroupCode),
				zap.String("file_name", name),
				zap.Int("chunk_index", f.ChunkIndex))
		case errors.Is(err, ErrIndexOutOfRange):
			r.log.Warn("chunk rejected",
				zap.String("group_code", owner.GroupCode),
				zap.String("file_name", name),
				zap.Int("chunk_index", f.ChunkIndex),
				zap.Error(err))
		}
		return Result{FileName: name}, err
	}

	copy(s.buf[off:], f.Data)

	received, complete := s.finish()
	res := Result{FileName: name, Received: received, Total: s.totalChunks}
	if !complete {
		return res, nil
	}

	r.release(key, s)
	defer r.unreserve(s)
	rec, err := r.flush(ctx, s)
	if err != nil {
		return res, err
	}
	res.Complete = true
	res.Record = &rec
	return res, nil
}

func (r *Reassembler) validate(name string, f Fragment) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: file name is required", ErrInvalidFragment)
	case f.TotalSize < 0:
		return fmt.Errorf("%w: negative total size", ErrInvalidFragment)
	case f.TotalSize > r.limits.MaxFileSize:
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidFragment, r.limits.MaxFileSize)
	case f.TotalChunks < 1:
		return fmt.Errorf("%w: totalChunks must be at least 1", ErrInvalidFragment)
	case int64(f.TotalChunks) > r.maxChunks(f.TotalSize):
		return fmt.Errorf("%w: %d bytes may be split into at most %d chunks", ErrInvalidFragment, f.TotalSize, r.maxChunks(f.TotalSize))
	case f.ChunkSize < 0:
		return fmt.Errorf("%w: negative chunk size", ErrInvalidFragment)
	case int64(len(f.Data)) > f.TotalSize:
		return fmt.Errorf("%w: chunk larger than file", ErrInvalidFragment)
	}
	return nil
}

// maxChunks is ceil(size / MinChunkSize), and at least 1.
func (r *Reassembler) maxChunks(size int64) int64 {
	return max((size+r.limits.MinChunkSize-1)/r.limits.MinChunkSize, 1)
}

// session returns the tracked session for key, creating it on the first
// fragment. Later fragments must agree with the declared shape. A new
// session reserves its full buffer against the connection and global
// limits before anything is allocated.
func (r *Reassembler) session(key sessionKey, owner Owner, name string, f Fragment) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		if s.totalSize != f.TotalSize || s.totalChunks != f.TotalChunks {
			return nil, fmt.Errorf("%w: fragment does not match upload in progress for %s", ErrInvalidFragment, name)
		}
		return s, nil
	}

	if n := r.perConn[owner.ConnID]; n >= r.limits.MaxPerConn {
		r.log.Warn("upload rejected: too many in progress",
			zap.String("conn_id", owner.ConnID),
			zap.String("file_name", name),
			zap.Int("in_progress", n))
		return nil, fmt.Errorf("%w: %d uploads already in progress on this connection", ErrInvalidFragment, n)
	}
	if r.reserved+f.TotalSize > r.limits.MaxBuffered {
		r.log.Warn("upload rejected: buffer budget exhausted",
			zap.String("conn_id", owner.ConnID),
			zap.String("file_name", name),
			zap.Int64("total_size", f.TotalSize),
			zap.Int64("reserved", r.reserved))
		return nil, fmt.Errorf("%w: upload buffer full, retry later", ErrStorage)
	}

	s := &session{
		owner:       owner,
		fileName:    name,
		totalSize:   f.TotalSize,
		totalChunks: f.TotalChunks,
		lastLen:     -1,
		buf:         make([]byte, f.TotalSize),
		claimed:     make([]bool, f.TotalChunks),
		reserved:    f.TotalSize,
		lastSeen:    r.now(),
	}
	r.sessions[key] = s
	r.perConn[owner.ConnID]++
	r.reserved += f.TotalSize
	r.log.Debug("upload session started",
		zap.String("group_code", owner.GroupCode),
		zap.String("member", owner.Member),
		zap.String("file_name", name),
		zap.Int64("total_size", f.TotalSize),
		zap.Int("total_chunks", f.TotalChunks))
	return s, nil
}

// claim reserves the fragment's index and returns its byte offset.
func (s *session) claim(f Fragment, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	if f.ChunkIndex < 0 || f.ChunkIndex >= s.totalChunks {
		return 0, fmt.Errorf("%w: index %d of %d", ErrIndexOutOfRange, f.ChunkIndex, s.totalChunks)
	}
	if s.claimed[f.ChunkIndex] {
		return 0, ErrDuplicateChunk
	}

	n := int64(len(f.Data))
	var off int64
	if f.ChunkIndex == s.totalChunks-1 {
		off = s.totalSize - n
		if s.totalChunks == 1 && n != s.totalSize {
			return 0, fmt.Errorf("%w: single chunk is %d bytes, want %d", ErrInvalidFragment, n, s.totalSize)
		}
		if s.totalChunks > 1 && n == 0 {
			return 0, fmt.Errorf("%w: empty final chunk", ErrInvalidFragment)
		}
		if s.chunkSize > 0 && off != int64(s.totalChunks-1)*s.chunkSize {
			return 0, fmt.Errorf("%w: final chunk is %d bytes, want %d", ErrInvalidFragment, n, s.totalSize-int64(s.totalChunks-1)*s.chunkSize)
		}
		s.lastLen = n
	} else {
		size := f.ChunkSize
		if size == 0 {
			size = n
		}
		if n != size {
			return 0, fmt.Errorf("%w: chunk is %d bytes, want %d", ErrInvalidFragment, n, size)
		}
		if s.chunkSize == 0 {
			if err := s.learnChunkSize(size); err != nil {
				return 0, err
			}
		} else if size != s.chunkSize {
			return 0, fmt.Errorf("%w: chunk is %d bytes, want %d", ErrInvalidFragment, size, s.chunkSize)
		}
		off = int64(f.ChunkIndex) * s.chunkSize
	}
	if off < 0 || off+n > s.totalSize {
		return 0, fmt.Errorf("%w: chunk %d overruns file", ErrInvalidFragment, f.ChunkIndex)
	}

	s.claimed[f.ChunkIndex] = true
	s.lastSeen = now
	return off, nil
}

// learnChunkSize fixes the uniform chunk size, checking it is consistent
// with the declared totals and any final fragment already placed.
func (s *session) learnChunkSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidFragment)
	}
	tail := s.totalSize - int64(s.totalChunks-1)*size
	if tail <= 0 || tail > size {
		return fmt.Errorf("%w: %d chunks of %d bytes cannot make %d bytes", ErrInvalidFragment, s.totalChunks, size, s.totalSize)
	}
	if s.lastLen >= 0 && s.lastLen != tail {
		return fmt.Errorf("%w: final chunk was %d bytes, want %d", ErrInvalidFragment, s.lastLen, tail)
	}
	s.chunkSize = size
	return nil
}

// finish records a completed copy and reports whether this caller owns
// completion.
func (s *session) finish() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written++
	if s.closed || s.written < s.totalChunks {
		return s.written, false
	}
	s.closed = true
	return s.written, true
}

// release untracks a completed session. Its reservation is held until
// the flush is done with the buffer.
func (r *Reassembler) release(key sessionKey, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == s {
		r.untrackLocked(key)
	}
}

func (r *Reassembler) untrackLocked(key sessionKey) {
	delete(r.sessions, key)
	r.perConn[key.conn]--
	if r.perConn[key.conn] <= 0 {
		delete(r.perConn, key.conn)
	}
}

func (r *Reassembler) unreserve(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved -= s.reserved
	s.reserved = 0
}

// flush writes the finished buffer and commits the record. If the group
// vanished in between, the stored object is removed again.
func (r *Reassembler) flush(ctx context.Context, s *session) (models.FileRecord, error) {
	code := s.owner.GroupCode
	now := r.now()
	rec := models.FileRecord{
		Filename:   s.fileName,
		StoredName: filestore.StoredName(s.fileName, now),
		Size:       s.totalSize,
		Uploader:   s.owner.Member,
		Time:       now.UTC(),
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Storage(), r.log, "flush upload")
	defer cancel()

	if err := r.store.EnsureNamespace(ctx, code); err != nil {
		return models.FileRecord{}, r.storageFailed(s, err)
	}
	if _, err := r.store.WriteFile(ctx, code, rec.StoredName, bytes.NewReader(s.buf), s.totalSize); err != nil {
		return models.FileRecord{}, r.storageFailed(s, err)
	}
	s.buf = nil

	if err := r.commit.RecordFile(ctx, code, rec); err != nil {
		if rmErr := r.store.Remove(context.WithoutCancel(ctx), code, rec.StoredName); rmErr != nil {
			r.log.Warn("failed to remove orphaned upload",
				zap.String("group_code", code),
				zap.String("stored_name", rec.StoredName),
				zap.Error(rmErr))
		}
		return models.FileRecord{}, err
	}
	return rec, nil
}

func (r *Reassembler) storageFailed(s *session, err error) error {
	s.buf = nil
	r.log.Error("upload flush failed",
		zap.String("group_code", s.owner.GroupCode),
		zap.String("member", s.owner.Member),
		zap.String("file_name", s.fileName),
		zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// DiscardConn drops every session owned by connID and returns how many
// were dropped. Partial buffers are never committed.
func (r *Reassembler) DiscardConn(connID string) int {
	return r.discard(func(k sessionKey, _ *session) bool { return k.conn == connID }, "connection closed")
}

// EvictIdle drops sessions that have not received a fragment for
// olderThan and returns how many were dropped.
func (r *Reassembler) EvictIdle(olderThan time.Duration) int {
	cutoff := r.now().Add(-olderThan)
	return r.discard(func(_ sessionKey, s *session) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastSeen.Before(cutoff)
	}, "idle timeout")
}

func (r *Reassembler) discard(match func(sessionKey, *session) bool, reason string) int {
	r.mu.Lock()
	var dropped []*session
	for k, s := range r.sessions {
		if match(k, s) {
			r.untrackLocked(k)
			r.reserved -= s.reserved
			s.reserved = 0
			dropped = append(dropped, s)
		}
	}
	r.mu.Unlock()

	for _, s := range dropped {
		s.mu.Lock()
		s.closed = true
		received := s.written
		s.mu.Unlock()
		r.log.Info("upload session discarded",
			zap.String("reason", reason),
			zap.String("group_code", s.owner.GroupCode),
			zap.String("member", s.owner.Member),
			zap.String("file_name", s.fileName),
			zap.Int("received", received),
			zap.Int("total_chunks", s.totalChunks))
	}
	return len(dropped)
}

// Reserved returns the bytes reserved by in-flight sessions, including
// completed ones still being flushed.
func (r *Reassembler) Reserved() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserved
}

// Active returns the number of in-flight sessions.
func (r *Reassembler) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
