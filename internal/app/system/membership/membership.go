// internal/app/system/membership/membership.go
// Package membership applies join, leave and disconnect transitions to
// groups and keeps broadcast subscriptions in step with them.
package membership

import (
	"context"
	"errors"
	"fmt"

	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/app/system/normalize"
	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"go.uber.org/zap"
)

// Ticket describes a successful join.
type Ticket struct {
	GroupCode  string `json:"groupCode"`
	GroupName  string `json:"groupName"`
	MaxMembers int    `json:"maxMembers"`
	Member     string `json:"memberName"`
}

// Controller owns every membership change. Each change, its log entry and
// the resulting broadcast happen inside one group critical section, so
// subscribers see snapshots in the order the changes were applied.
type Controller struct {
	groups *groupstore.Store
	hub    *broadcast.Hub
	log    *zap.Logger
}

// New returns a controller over groups and hub.
func New(groups *groupstore.Store, hub *broadcast.Hub, logger *zap.Logger) *Controller {
	return &Controller{groups: groups, hub: hub, log: logger}
}

// Validate checks whether memberName could join code right now without
// joining. It backs the join-validation endpoint.
func (c *Controller) Validate(code, memberName string) (models.GroupInfo, error) {
	code, memberName = normalize.Code(code), normalize.Name(memberName)
	if code == "" || memberName == "" {
		return models.GroupInfo{}, fmt.Errorf("%w: member name and group code are required", groupstore.ErrInvalidArgument)
	}
	if normalize.NameTooLong(memberName) {
		return models.GroupInfo{}, fmt.Errorf("%w: member name is longer than %d characters", groupstore.ErrInvalidArgument, normalize.MaxNameRunes)
	}
	g, err := c.groups.Get(code)
	if err != nil {
		return models.GroupInfo{}, err
	}
	if err := g.CheckJoin(memberName); err != nil {
		return models.GroupInfo{}, err
	}
	return g.Info(), nil
}

// Join adds memberName bound to conn, subscribes conn to the group's
// broadcasts, logs "<name> joined" and publishes the new state.
func (c *Controller) Join(code, memberName string, conn broadcast.Conn) (Ticket, error) {
	code, memberName = normalize.Code(code), normalize.Name(memberName)
	if code == "" || memberName == "" {
		return Ticket{}, fmt.Errorf("%w: member name and group code are required", groupstore.ErrInvalidArgument)
	}
	if normalize.NameTooLong(memberName) {
		return Ticket{}, fmt.Errorf("%w: member name is longer than %d characters", groupstore.ErrInvalidArgument, normalize.MaxNameRunes)
	}
	g, err := c.groups.Get(code)
	if err != nil {
		return Ticket{}, err
	}

	var t Ticket
	err = g.Mutate(func(m *groupstore.Mutation) error {
		if err := m.AddMember(memberName, conn.ID()); err != nil {
			return err
		}
		c.hub.Subscribe(code, conn)
		m.Log(memberName + " joined")
		c.hub.Publish(code, m.Snapshot())

		info := m.Info()
		t = Ticket{GroupCode: code, GroupName: info.Name, MaxMembers: info.MaxMembers, Member: memberName}
		return nil
	})
	if err != nil {
		return Ticket{}, err
	}

	c.log.Info("member joined",
		zap.String("group_code", code),
		zap.String("member", memberName),
		zap.String("conn_id", conn.ID()))
	return t, nil
}

// Leave removes memberName from code. Leaving a group one is not in, or a
// group that no longer exists, is a no-op. The group is deleted when its
// last member leaves.
func (c *Controller) Leave(ctx context.Context, code, memberName string) error {
	code, memberName = normalize.Code(code), normalize.Name(memberName)
	g, err := c.groups.Get(code)
	if errors.Is(err, groupstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return c.remove(ctx, g, func(m *groupstore.Mutation) (models.Member, bool) {
		return m.RemoveMember(memberName)
	}, " left")
}

// Disconnect removes the member bound to connID from every group it is
// in. It returns the codes of the groups it was removed from.
func (c *Controller) Disconnect(ctx context.Context, connID string) []string {
	var codes []string
	for _, g := range c.groups.Groups() {
		removed := false
		err := c.remove(ctx, g, func(m *groupstore.Mutation) (models.Member, bool) {
			mem, ok := m.RemoveConn(connID)
			removed = ok
			return mem, ok
		}, " left (connection lost)")
		if err != nil {
			c.log.Warn("disconnect cleanup failed",
				zap.String("group_code", g.Code()),
				zap.String("conn_id", connID),
				zap.Error(err))
		}
		if removed {
			codes = append(codes, g.Code())
		}
	}
	return codes
}

// remove applies one removal, logs it with suffix, publishes, and tears
// the group down if it became empty.
func (c *Controller) remove(ctx context.Context, g *groupstore.Group, take func(*groupstore.Mutation) (models.Member, bool), suffix string) error {
	code := g.Code()
	var (
		gone    models.Member
		hit     bool
		emptied bool
	)
	err := g.Mutate(func(m *groupstore.Mutation) error {
		gone, hit = take(m)
		if !hit {
			return nil
		}
		c.hub.Unsubscribe(code, gone.ConnID)
		m.Log(gone.Name + suffix)
		c.hub.Publish(code, m.Snapshot())
		if m.MemberCount() == 0 {
			m.Close()
			emptied = true
		}
		return nil
	})
	if errors.Is(err, groupstore.ErrNotFound) {
		return nil
	}
	if err != nil || !hit {
		return err
	}

	c.log.Info("member left",
		zap.String("group_code", code),
		zap.String("member", gone.Name),
		zap.String("conn_id", gone.ConnID),
		zap.Bool("voluntary", suffix == " left"))

	if emptied {
		c.hub.Drop(code)
		// Teardown runs to completion even when the caller's ctx ends.
		dctx, cancel := timeouts.WithTimeout(context.WithoutCancel(ctx), timeouts.Storage(), c.log, "delete group storage")
		defer cancel()
		return c.groups.Delete(dctx, code)
	}
	return nil
}

// RecordFile appends a committed file to the group, logs it and publishes
// the new state. It fails with groupstore.ErrNotFound if the group is
// gone, in which case the caller owns cleanup of the stored bytes.
func (c *Controller) RecordFile(ctx context.Context, code string, rec models.FileRecord) error {
	g, err := c.groups.Get(code)
	if err != nil {
		return err
	}
	err = g.Mutate(func(m *groupstore.Mutation) error {
		m.AppendFile(rec)
		m.Log(fmt.Sprintf("%s sent file %s (%d bytes)", rec.Uploader, rec.Filename, rec.Size))
		c.hub.Publish(code, m.Snapshot())
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Info("file committed",
		zap.String("group_code", code),
		zap.String("member", rec.Uploader),
		zap.String("file_name", rec.Filename),
		zap.String("stored_name", rec.StoredName),
		zap.Int64("size", rec.Size))
	return nil
}
