package broadcast_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"github.com/dalemusser/groupdrop/internal/testutil"
	"go.uber.org/zap"
)

func TestPublish_OnlySubscribers(t *testing.T) {
	hub := broadcast.NewHub(zap.NewNop())
	a := testutil.NewRecordingConn("a")
	b := testutil.NewRecordingConn("b")
	other := testutil.NewRecordingConn("other")

	hub.Subscribe("T1", a)
	hub.Subscribe("T1", b)
	hub.Subscribe("T2", other)

	snap := models.GroupSnapshot{Members: []string{"Alice", "Bob"}}
	if n := hub.Publish("T1", snap); n != 2 {
		t.Errorf("delivered: got %d, want 2", n)
	}

	for _, c := range []*testutil.RecordingConn{a, b} {
		events := c.Events(broadcast.EventGroupLog)
		if len(events) != 1 {
			t.Fatalf("%s: expected 1 group-log event, got %d", c.ID(), len(events))
		}
		got := events[0].Payload.(models.GroupSnapshot)
		if len(got.Members) != 2 {
			t.Errorf("%s: members: got %v", c.ID(), got.Members)
		}
	}
	if len(other.All()) != 0 {
		t.Errorf("expected other group's connection to receive nothing, got %d events", len(other.All()))
	}
}

func TestUnsubscribe(t *testing.T) {
	hub := broadcast.NewHub(zap.NewNop())
	a := testutil.NewRecordingConn("a")
	hub.Subscribe("T1", a)
	hub.Unsubscribe("T1", "a")
	hub.Unsubscribe("T1", "a")
	hub.Unsubscribe("missing", "a")

	if n := hub.Publish("T1", models.GroupSnapshot{}); n != 0 {
		t.Errorf("delivered: got %d, want 0", n)
	}
	if subs := hub.Subscribers("T1"); len(subs) != 0 {
		t.Errorf("subscribers: got %v, want none", subs)
	}
}

func TestPublish_SkipsFailingConn(t *testing.T) {
	hub := broadcast.NewHub(zap.NewNop())
	ok := testutil.NewRecordingConn("ok")
	bad := testutil.NewRecordingConn("bad")
	bad.FailWith(errors.New("closed"))

	hub.Subscribe("T1", ok)
	hub.Subscribe("T1", bad)

	if n := hub.Publish("T1", models.GroupSnapshot{}); n != 1 {
		t.Errorf("delivered: got %d, want 1", n)
	}
	if len(ok.Events(broadcast.EventGroupLog)) != 1 {
		t.Error("expected healthy connection to receive the snapshot")
	}
}

func TestDrop(t *testing.T) {
	hub := broadcast.NewHub(zap.NewNop())
	hub.Subscribe("T1", testutil.NewRecordingConn("a"))
	hub.Subscribe("T1", testutil.NewRecordingConn("b"))

	if got := hub.Subscribers("T1"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("subscribers: got %v, want [a b]", got)
	}
	hub.Drop("T1")
	if got := hub.Subscribers("T1"); len(got) != 0 {
		t.Errorf("subscribers after drop: got %v", got)
	}
}
