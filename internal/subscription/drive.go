package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// WatchResult is what the provider hands back for a freshly opened channel.
type WatchResult struct {
	ResourceID string
	Expiration time.Time
}

// ChangePage is one page of the external change feed.
type ChangePage struct {
	Changes           []domain.DriveChange
	NextPageToken     string
	NewStartPageToken string
}

// NextToken is the cursor to persist after processing this page.
func (p ChangePage) NextToken() string {
	if p.NewStartPageToken != "" {
		return p.NewStartPageToken
	}
	return p.NextPageToken
}

// DriveAPI abstracts the provider's watch-channel and change-feed surface so
// the manager and processor stay testable.
type DriveAPI interface {
	GetStartPageToken(ctx context.Context, cred domain.OAuthCredential) (string, error)
	Watch(ctx context.Context, cred domain.OAuthCredential, filter domain.WatchFilter, channelID, address, pageToken string) (WatchResult, error)
	Stop(ctx context.Context, cred domain.OAuthCredential, channelID, resourceID string) error
	ListChanges(ctx context.Context, cred domain.OAuthCredential, pageToken string, filter domain.WatchFilter) (ChangePage, error)
}

// GoogleDriveAPI implements DriveAPI against the Drive v3 changes feed.
type GoogleDriveAPI struct{}

func NewGoogleDriveAPI() *GoogleDriveAPI {
	return &GoogleDriveAPI{}
}

func (g *GoogleDriveAPI) service(ctx context.Context, cred domain.OAuthCredential) (*drive.Service, error) {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		TokenType:    "Bearer",
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	service, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return service, nil
}

func (g *GoogleDriveAPI) GetStartPageToken(ctx context.Context, cred domain.OAuthCredential) (string, error) {
	service, err := g.service(ctx, cred)
	if err != nil {
		return "", err
	}

	response, err := service.Changes.GetStartPageToken().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get start page token: %w", err)
	}

	return response.StartPageToken, nil
}

func (g *GoogleDriveAPI) Watch(ctx context.Context, cred domain.OAuthCredential, filter domain.WatchFilter, channelID, address, pageToken string) (WatchResult, error) {
	service, err := g.service(ctx, cred)
	if err != nil {
		return WatchResult{}, err
	}

	channel := &drive.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: address,
	}

	var opened *drive.Channel

	if filter.FileID != "" && !filter.WatchWholeDrive {
		opened, err = service.Files.Watch(filter.FileID, channel).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		opened, err = service.Changes.Watch(pageToken, channel).
			IncludeRemoved(filter.IncludeRemoved).
			RestrictToMyDrive(filter.PersonalDriveOnly).
			Context(ctx).
			Do()
	}
	if err != nil {
		return WatchResult{}, fmt.Errorf("failed to open watch channel: %w", err)
	}

	result := WatchResult{ResourceID: opened.ResourceId}
	if opened.Expiration > 0 {
		result.Expiration = time.UnixMilli(opened.Expiration)
	}

	return result, nil
}

func (g *GoogleDriveAPI) Stop(ctx context.Context, cred domain.OAuthCredential, channelID, resourceID string) error {
	service, err := g.service(ctx, cred)
	if err != nil {
		return err
	}

	err = service.Channels.Stop(&drive.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to stop watch channel: %w", err)
	}

	return nil
}

func (g *GoogleDriveAPI) ListChanges(ctx context.Context, cred domain.OAuthCredential, pageToken string, filter domain.WatchFilter) (ChangePage, error) {
	service, err := g.service(ctx, cred)
	if err != nil {
		return ChangePage{}, err
	}

	call := service.Changes.List(pageToken).
		IncludeRemoved(filter.IncludeRemoved).
		RestrictToMyDrive(filter.PersonalDriveOnly).
		Fields("changes(changeType, fileId, removed, time, file(id, name, mimeType)), nextPageToken, newStartPageToken")

	response, err := call.Context(ctx).Do()
	if err != nil {
		return ChangePage{}, fmt.Errorf("failed to list changes: %w", err)
	}

	page := ChangePage{
		NextPageToken:     response.NextPageToken,
		NewStartPageToken: response.NewStartPageToken,
	}

	for _, change := range response.Changes {
		classified := domain.DriveChange{
			Kind:    domain.DriveChangeKind_File,
			FileID:  change.FileId,
			Removed: change.Removed,
		}

		if change.ChangeType == "drive" {
			classified.Kind = domain.DriveChangeKind_Drive
		}
		if change.File != nil {
			classified.FileName = change.File.Name
			classified.MimeType = change.File.MimeType
		}
		if change.Time != "" {
			if t, err := time.Parse(time.RFC3339, change.Time); err == nil {
				classified.Time = t
			}
		}

		page.Changes = append(page.Changes, classified)
	}

	return page, nil
}
