// internal/app/features/realtime/messages.go
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound events.
const (
	EventJoin  = "join-group"
	EventLeave = "leave-group"
	EventChunk = "upload-chunk"
)

// Outbound events. Group snapshots go out as broadcast.EventGroupLog.
const (
	EventJoinError   = "join-error"
	EventJoined      = "joined"
	EventLeft        = "left"
	EventProgress    = "upload-progress"
	EventComplete    = "upload-complete"
	EventUploadError = "upload-error"
	EventError       = "error"
)

var errUnknownEvent = errors.New("unknown event")

// frame is the wire envelope in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inbound is implemented by every message a client may send.
type inbound interface {
	isInbound()
}

// JoinRequest asks to join a group as memberName.
type JoinRequest struct {
	MemberName string `json:"memberName"`
	GroupCode  string `json:"groupCode"`
}

// LeaveRequest leaves the connection's current group. Both fields are
// optional; when present they must name the current membership.
type LeaveRequest struct {
	MemberName string `json:"memberName,omitempty"`
	GroupCode  string `json:"groupCode,omitempty"`
}

// ChunkUpload carries one fragment of a file. Data is base64 on the wire.
type ChunkUpload struct {
	Data        []byte `json:"data"`
	FileName    string `json:"fileName"`
	TotalSize   int64  `json:"totalSize"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	ChunkSize   int64  `json:"chunkSize,omitempty"`
}

func (JoinRequest) isInbound()  {}
func (LeaveRequest) isInbound() {}
func (ChunkUpload) isInbound()  {}

// decodeInbound parses one client frame into its typed message.
func decodeInbound(raw []byte) (inbound, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	var msg inbound
	switch f.Event {
	case EventJoin:
		var m JoinRequest
		if err := decodeData(f.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case EventLeave:
		var m LeaveRequest
		if err := decodeData(f.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case EventChunk:
		var m ChunkUpload
		if err := decodeData(f.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, f.Event)
	}
	return msg, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	return nil
}

// Progress acknowledges an accepted fragment.
type Progress struct {
	FileName string `json:"fileName"`
	Received int    `json:"received"`
	Total    int    `json:"total"`
}

// Complete reports a committed upload to its sender.
type Complete struct {
	FileName   string `json:"fileName"`
	StoredName string `json:"storedName"`
	Size       int64  `json:"size"`
}

// UploadError reports a rejected fragment or failed upload.
type UploadError struct {
	FileName string `json:"fileName,omitempty"`
	Error    string `json:"error"`
}

// Left acknowledges a leave-group request.
type Left struct {
	GroupCode string `json:"groupCode"`
}
