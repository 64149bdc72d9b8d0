package realtime

import (
	"errors"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	msg, err := decodeInbound([]byte(`{"event":"upload-chunk","data":{"data":"aGVsbG8=","fileName":"a.txt","totalSize":5,"chunkIndex":0,"totalChunks":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chunk, ok := msg.(ChunkUpload)
	if !ok {
		t.Fatalf("got %T, want ChunkUpload", msg)
	}
	if string(chunk.Data) != "hello" || chunk.FileName != "a.txt" || chunk.TotalSize != 5 {
		t.Errorf("chunk: got %+v", chunk)
	}

	msg, err = decodeInbound([]byte(`{"event":"join-group","data":{"memberName":"Alice","groupCode":"T1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if j, ok := msg.(JoinRequest); !ok || j.MemberName != "Alice" || j.GroupCode != "T1" {
		t.Errorf("join: got %#v", msg)
	}

	msg, err = decodeInbound([]byte(`{"event":"leave-group"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(LeaveRequest); !ok {
		t.Errorf("leave: got %T", msg)
	}
}

func TestDecodeInbound_Errors(t *testing.T) {
	if _, err := decodeInbound([]byte(`{"event":"dance"}`)); !errors.Is(err, errUnknownEvent) {
		t.Errorf("unknown event: got %v", err)
	}
	if _, err := decodeInbound([]byte(`nope`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, err := decodeInbound([]byte(`{"event":"upload-chunk","data":{"data":"***"}}`)); err == nil {
		t.Error("expected error for bad base64")
	}
}
