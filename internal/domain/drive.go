package domain

import (
	"fmt"
	"time"
)

type DriveChangeKind string

const (
	DriveChangeKind_File  DriveChangeKind = "file"
	DriveChangeKind_Drive DriveChangeKind = "drive"
)

// DriveChange is one classified entry from the external change feed.
type DriveChange struct {
	Kind     DriveChangeKind
	FileID   string
	FileName string
	MimeType string
	Removed  bool
	Time     time.Time
}

// Describe renders the human-readable fragment appended to every fan-out
// action's message.
func (c DriveChange) Describe() string {
	name := c.FileName
	if name == "" {
		name = c.FileID
	}

	switch {
	case c.Kind == DriveChangeKind_Drive && c.Removed:
		return "A shared drive was removed."
	case c.Kind == DriveChangeKind_Drive:
		return "A shared drive was changed."
	case c.Removed:
		return fmt.Sprintf("File %q was removed from your drive.", name)
	default:
		return fmt.Sprintf("File %q was changed in your drive.", name)
	}
}
