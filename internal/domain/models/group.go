// internal/domain/models/group.go
package models

import "time"

// Member is a participant currently joined to a group. ConnID identifies
// the realtime connection the member joined from; it is never sent to
// clients.
type Member struct {
	Name     string    `json:"name"`
	ConnID   string    `json:"-"`
	JoinedAt time.Time `json:"joined_at"`
}

// FileRecord describes a file committed to a group. Records are
// immutable once appended.
//
// StoredName is the collision-safe name under the group's storage
// namespace; Filename is what the uploader called it and what downloads
// are offered as.
type FileRecord struct {
	Filename   string    `json:"filename"`
	StoredName string    `json:"storedName"`
	Size       int64     `json:"size"`
	Uploader   string    `json:"uploader"`
	Time       time.Time `json:"time"`
}

// LogEntry is one line of a group's activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// GroupSnapshot is the full state pushed to every subscriber of a group
// whenever the group changes. Members holds names in join order.
type GroupSnapshot struct {
	Logs    []LogEntry   `json:"logs"`
	Files   []FileRecord `json:"files"`
	Members []string     `json:"members"`
}

// GroupInfo is the public summary of a group.
type GroupInfo struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	MaxMembers  int       `json:"maxMembers"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
