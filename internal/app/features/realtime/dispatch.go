// internal/app/features/realtime/dispatch.go
package realtime

import (
	"context"
	"errors"

	errorsfeature "github.com/dalemusser/groupdrop/internal/app/features/errors"
	"github.com/dalemusser/groupdrop/internal/app/system/normalize"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"go.uber.org/zap"
)

const (
	msgAlreadyJoined = "This connection has already joined a group"
	msgJoinThrottled = "Too many join attempts, slow down"
)

// dispatch handles one inbound frame. Frames from one client are handled
// in arrival order.
func (h *Handler) dispatch(ctx context.Context, c *client, raw []byte) {
	msg, err := decodeInbound(raw)
	if err != nil {
		c.log.Debug("bad realtime frame", zap.Error(err))
		_ = c.Send(EventError, err.Error())
		return
	}

	switch m := msg.(type) {
	case JoinRequest:
		h.join(c, m)
	case LeaveRequest:
		h.leave(ctx, c, m)
	case ChunkUpload:
		h.chunk(ctx, c, m)
	}
}

func (h *Handler) join(c *client, m JoinRequest) {
	if c.joined() {
		_ = c.Send(EventJoinError, msgAlreadyJoined)
		return
	}
	if !c.joins.Allow() {
		c.log.Warn("join throttled", zap.String("group_code", m.GroupCode))
		_ = c.Send(EventJoinError, msgJoinThrottled)
		return
	}
	t, err := h.Members.Join(m.GroupCode, m.MemberName, c)
	if err != nil {
		_ = c.Send(EventJoinError, errorsfeature.Message(err))
		return
	}
	c.group, c.member = t.GroupCode, t.Member
	_ = c.Send(EventJoined, t)
}

func (h *Handler) leave(ctx context.Context, c *client, m LeaveRequest) {
	if !c.joined() {
		return
	}
	if m.GroupCode != "" && normalize.Code(m.GroupCode) != c.group {
		return
	}
	if m.MemberName != "" && normalize.Name(m.MemberName) != c.member {
		return
	}

	code := c.group
	if err := h.Members.Leave(ctx, code, c.member); err != nil {
		c.log.Warn("leave cleanup failed", zap.String("group_code", code), zap.Error(err))
	}
	h.Uploads.DiscardConn(c.id)
	c.group, c.member = "", ""
	_ = c.Send(EventLeft, Left{GroupCode: code})
}

func (h *Handler) chunk(ctx context.Context, c *client, m ChunkUpload) {
	if !c.joined() {
		_ = c.Send(EventUploadError, UploadError{FileName: m.FileName, Error: reassembly.ErrNotJoined.Error()})
		return
	}

	owner := reassembly.Owner{ConnID: c.id, GroupCode: c.group, Member: c.member}
	res, err := h.Uploads.Accept(ctx, owner, reassembly.Fragment{
		Data:        m.Data,
		FileName:    m.FileName,
		TotalSize:   m.TotalSize,
		ChunkIndex:  m.ChunkIndex,
		TotalChunks: m.TotalChunks,
		ChunkSize:   m.ChunkSize,
	})
	switch {
	case errors.Is(err, reassembly.ErrDuplicateChunk):
		return
	case err != nil:
		name := res.FileName
		if name == "" {
			name = m.FileName
		}
		_ = c.Send(EventUploadError, UploadError{FileName: name, Error: errorsfeature.Message(err)})
	case res.Complete:
		_ = c.Send(EventComplete, Complete{
			FileName:   res.Record.Filename,
			StoredName: res.Record.StoredName,
			Size:       res.Record.Size,
		})
	default:
		_ = c.Send(EventProgress, Progress{FileName: res.FileName, Received: res.Received, Total: res.Total})
	}
}
