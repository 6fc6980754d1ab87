package domain

import (
	"errors"
	"time"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// OAuthCredential is the stored token snapshot for one integration account.
type OAuthCredential struct {
	AccessToken  string    `json:"access_token" bson:"access_token"`
	RefreshToken string    `json:"refresh_token" bson:"refresh_token"`
	Expiry       time.Time `json:"expiry" bson:"expiry"`
}

// Expired reports whether the access token needs a refresh before use.
// The skew window keeps us from presenting a token that dies mid-request.
func (c OAuthCredential) Expired(now time.Time, skew time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Before(c.Expiry.Add(-skew))
}

// WatchFilter are the user-submitted settings scoping a Drive watch channel.
type WatchFilter struct {
	FileID            string `json:"file_id" bson:"file_id"`
	FolderID          string `json:"folder_id" bson:"folder_id"`
	WatchWholeDrive   bool   `json:"watch_whole_drive" bson:"watch_whole_drive"`
	IncludeRemoved    bool   `json:"include_removed" bson:"include_removed"`
	PersonalDriveOnly bool   `json:"personal_drive_only" bson:"personal_drive_only"`
}

// DriveSubscription is the persisted watch-channel row, the single source of
// truth for one node's listening state. PageToken must never be empty while
// IsListening is true; a row violating that is broken and must be stopped.
type DriveSubscription struct {
	NodeID      string          `bson:"_id"`
	UserID      string          `bson:"user_id"`
	WorkflowID  string          `bson:"workflow_id"`
	Credential  OAuthCredential `bson:"credential"`
	Filter      WatchFilter     `bson:"filter"`
	ChannelID   string          `bson:"channel_id"`
	ResourceID  string          `bson:"resource_id"`
	PageToken   string          `bson:"page_token"`
	IsListening bool            `bson:"is_listening"`
	ExpiresAt   time.Time       `bson:"expires_at"`
}

func (s DriveSubscription) Broken() bool {
	return s.IsListening && s.PageToken == ""
}
