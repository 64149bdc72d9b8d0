package membership_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"github.com/dalemusser/groupdrop/internal/testutil"
)

func lastSnapshot(t *testing.T, c *testutil.RecordingConn) models.GroupSnapshot {
	t.Helper()
	events := c.Events(broadcast.EventGroupLog)
	if len(events) == 0 {
		t.Fatalf("%s: no group-log events", c.ID())
	}
	return events[len(events)-1].Payload.(models.GroupSnapshot)
}

func logMessages(s models.GroupSnapshot) []string {
	out := make([]string, 0, len(s.Logs))
	for _, l := range s.Logs {
		out = append(out, l.Message)
	}
	return out
}

func TestJoinLifecycle(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 2)

	alice := env.Join(t, "T1", "Alice", "c1")
	snap := lastSnapshot(t, alice)
	if !reflect.DeepEqual(snap.Members, []string{"Alice"}) {
		t.Errorf("members after Alice: got %v", snap.Members)
	}

	bob := env.Join(t, "T1", "Bob", "c2")
	snap = lastSnapshot(t, alice)
	if !reflect.DeepEqual(snap.Members, []string{"Alice", "Bob"}) {
		t.Errorf("members after Bob: got %v", snap.Members)
	}
	if got := logMessages(snap); !reflect.DeepEqual(got, []string{"Alice joined", "Bob joined"}) {
		t.Errorf("logs: got %v", got)
	}
	if len(bob.Events(broadcast.EventGroupLog)) != 1 {
		t.Errorf("bob: expected 1 snapshot, got %d", len(bob.Events(broadcast.EventGroupLog)))
	}

	carol := testutil.NewRecordingConn("c3")
	if _, err := env.Members.Join("T1", "Carol", carol); !errors.Is(err, groupstore.ErrGroupFull) {
		t.Fatalf("Carol join: got %v, want ErrGroupFull", err)
	}
	if len(carol.All()) != 0 {
		t.Errorf("rejected joiner should receive nothing, got %d events", len(carol.All()))
	}

	if codes := env.Members.Disconnect(ctx, "c2"); !reflect.DeepEqual(codes, []string{"T1"}) {
		t.Errorf("disconnect codes: got %v", codes)
	}
	snap = lastSnapshot(t, alice)
	if !reflect.DeepEqual(snap.Members, []string{"Alice"}) {
		t.Errorf("members after disconnect: got %v", snap.Members)
	}
	msgs := logMessages(snap)
	if last := msgs[len(msgs)-1]; last != "Bob left (connection lost)" {
		t.Errorf("last log: got %q, want %q", last, "Bob left (connection lost)")
	}

	if err := env.Members.Leave(ctx, "T1", "Alice"); err != nil {
		t.Fatalf("Alice leave: %v", err)
	}
	if _, err := env.Groups.Get("T1"); !errors.Is(err, groupstore.ErrNotFound) {
		t.Errorf("expected T1 deleted, got %v", err)
	}
	if subs := env.Hub.Subscribers("T1"); len(subs) != 0 {
		t.Errorf("expected no subscribers, got %v", subs)
	}
}

func TestJoin_NameTakenAndNormalized(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")

	_, err := env.Members.Join("T1", "  Alice ", testutil.NewRecordingConn("c2"))
	if !errors.Is(err, groupstore.ErrNameTaken) {
		t.Errorf("got %v, want ErrNameTaken", err)
	}
}

func TestJoin_UnknownGroup(t *testing.T) {
	env := testutil.NewEnv(t)
	conn := testutil.NewRecordingConn("c1")
	if _, err := env.Members.Join("nope", "Alice", conn); !errors.Is(err, groupstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if len(conn.All()) != 0 {
		t.Errorf("expected no broadcast, got %d events", len(conn.All()))
	}
}

func TestJoin_RequiresNames(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	if _, err := env.Members.Join("T1", "   ", testutil.NewRecordingConn("c1")); !errors.Is(err, groupstore.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestJoin_RejectsOverlongName(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	long := strings.Repeat("a", 64) + "b"

	if _, err := env.Members.Validate("T1", long); !errors.Is(err, groupstore.ErrInvalidArgument) {
		t.Errorf("Validate: got %v, want ErrInvalidArgument", err)
	}
	if _, err := env.Members.Join("T1", long, testutil.NewRecordingConn("c1")); !errors.Is(err, groupstore.ErrInvalidArgument) {
		t.Errorf("Join: got %v, want ErrInvalidArgument", err)
	}
	// A name that only differs after the 64th character must not collide.
	if _, err := env.Members.Join("T1", strings.Repeat("a", 64), testutil.NewRecordingConn("c2")); err != nil {
		t.Errorf("Join at the limit: %v", err)
	}
}

func TestValidate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 1)

	info, err := env.Members.Validate("T1", "Alice")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if info.Name != "Team A" || info.MaxMembers != 1 {
		t.Errorf("info: got %+v", info)
	}
	if len(env.Hub.Subscribers("T1")) != 0 {
		t.Error("validate must not join")
	}

	env.Join(t, "T1", "Alice", "c1")
	if _, err := env.Members.Validate("T1", "Bob"); !errors.Is(err, groupstore.ErrGroupFull) {
		t.Errorf("got %v, want ErrGroupFull", err)
	}
	if _, err := env.Members.Validate("T2", "Bob"); !errors.Is(err, groupstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestLeave_AbsentIsNoop(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")
	alice.Reset()

	if err := env.Members.Leave(ctx, "T1", "Zed"); err != nil {
		t.Errorf("leave absent member: %v", err)
	}
	if err := env.Members.Leave(ctx, "missing", "Alice"); err != nil {
		t.Errorf("leave missing group: %v", err)
	}
	if len(alice.All()) != 0 {
		t.Errorf("expected no broadcast, got %d events", len(alice.All()))
	}
}

func TestLeave_Voluntary(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")
	bob := env.Join(t, "T1", "Bob", "c2")
	bob.Reset()

	if err := env.Members.Leave(ctx, "T1", "Bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	snap := lastSnapshot(t, alice)
	msgs := logMessages(snap)
	if last := msgs[len(msgs)-1]; last != "Bob left" {
		t.Errorf("last log: got %q, want %q", last, "Bob left")
	}
	if len(bob.All()) != 0 {
		t.Errorf("departed member should not receive the broadcast, got %d events", len(bob.All()))
	}
}

func TestDisconnect_UnknownConn(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")

	if codes := env.Members.Disconnect(context.Background(), "nobody"); len(codes) != 0 {
		t.Errorf("got %v, want none", codes)
	}
	if _, err := env.Groups.Get("T1"); err != nil {
		t.Errorf("group should survive: %v", err)
	}
}

func TestDisconnect_LastMemberDeletesStorage(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")

	if _, err := env.Storage.WriteFile(ctx, "T1", "1-abc-a.txt", strings.NewReader("a"), 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	env.Members.Disconnect(ctx, "c1")

	if len(env.StoredNames("T1")) != 0 {
		t.Error("expected storage namespace to be removed")
	}
	if env.Groups.Count() != 0 {
		t.Errorf("groups: got %d, want 0", env.Groups.Count())
	}
}

func TestRecordFile(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")

	rec := models.FileRecord{Filename: "notes.txt", StoredName: "1-abc-notes.txt", Size: 12, Uploader: "Alice"}
	if err := env.Members.RecordFile(ctx, "T1", rec); err != nil {
		t.Fatalf("record file: %v", err)
	}
	snap := lastSnapshot(t, alice)
	if len(snap.Files) != 1 || snap.Files[0].StoredName != rec.StoredName {
		t.Fatalf("files: got %+v", snap.Files)
	}
	msgs := logMessages(snap)
	if last := msgs[len(msgs)-1]; last != "Alice sent file notes.txt (12 bytes)" {
		t.Errorf("last log: got %q", last)
	}

	if err := env.Members.RecordFile(ctx, "gone", rec); !errors.Is(err, groupstore.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestTicket(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 3)
	tk, err := env.Members.Join("T1", "Alice", testutil.NewRecordingConn("c1"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if tk.GroupCode != "T1" || tk.GroupName != "Team A" || tk.MaxMembers != 3 || tk.Member != "Alice" {
		t.Errorf("ticket: got %+v", tk)
	}
}

func TestLeave_StorageDeleteFails(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")
	env.Storage.FailDeletes(errors.New("bucket unreachable"))

	if err := env.Members.Leave(ctx, "T1", "Alice"); err == nil {
		t.Error("expected the storage failure to be reported")
	}
	if _, err := env.Groups.Get("T1"); !errors.Is(err, groupstore.ErrNotFound) {
		t.Errorf("group should be gone regardless: got %v", err)
	}
}

func TestLeave_TeardownSurvivesCancelledContext(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")
	if _, err := env.Storage.WriteFile(context.Background(), "T1", "1-abc-a.txt", strings.NewReader("a"), 1); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.Members.Leave(ctx, "T1", "Alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if names := env.StoredNames("T1"); len(names) != 0 {
		t.Errorf("stored files: got %v, want none", names)
	}
}

func TestRecreateDuringTeardownKeepsNewUploads(t *testing.T) {
	ctx := testutil.TestContext(t)
	env := testutil.NewEnv(t)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Join(t, "T1", "Alice", "c1")

	entered, release := env.Storage.HoldDeletes()
	defer release()
	left := make(chan []string, 1)
	go func() { left <- env.Members.Disconnect(ctx, "c1") }()
	<-entered

	// The old namespace is still being deleted, so the code is reserved.
	if _, err := env.Groups.Create(ctx, "T1", "Team B", 5); !errors.Is(err, groupstore.ErrDuplicateCode) {
		t.Fatalf("create during teardown: got %v, want ErrDuplicateCode", err)
	}

	release()
	<-left

	env.CreateGroup(t, "T1", "Team B", 5)
	env.Join(t, "T1", "Bob", "c2")
	if _, err := env.Storage.WriteFile(ctx, "T1", "2-def-b.txt", strings.NewReader("bb"), 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	if names := env.StoredNames("T1"); len(names) != 1 || names[0] != "2-def-b.txt" {
		t.Errorf("stored files: got %v, want [2-def-b.txt]", names)
	}
}
