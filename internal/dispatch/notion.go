package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kiteflow/kiteflow/internal/domain"
)

const (
	NotionAPIVersion = "2022-06-28"
	NotionAPIBaseURL = "https://api.notion.com/v1"
)

// NotionSender creates a page or database item in the document workspace.
// A descriptor carrying property payloads targets a database; otherwise the
// target is treated as a parent page and the message becomes the page title.
type NotionSender struct {
	httpClient *http.Client
	baseURL    string
}

func NewNotionSender() *NotionSender {
	return &NotionSender{
		httpClient: &http.Client{},
		baseURL:    NotionAPIBaseURL,
	}
}

func (s *NotionSender) Send(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	if descriptor.AccessToken == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing workspace access token",
		}
	}
	if descriptor.TargetRef == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing page or database target",
		}
	}

	body := s.buildCreatePageBody(descriptor, message)

	if _, err := s.makeRequest(ctx, http.MethodPost, "/pages", descriptor.AccessToken, body); err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Notion, NodeID: descriptor.NodeID, Err: err}
	}

	return nil
}

func (s *NotionSender) buildCreatePageBody(descriptor domain.ActionDescriptor, message string) map[string]any {
	if len(descriptor.Properties) > 0 {
		return map[string]any{
			"parent":     map[string]any{"database_id": descriptor.TargetRef},
			"properties": descriptor.Properties,
		}
	}

	return map[string]any{
		"parent": map[string]any{"page_id": descriptor.TargetRef},
		"properties": map[string]any{
			"title": map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": message}},
				},
			},
		},
	}
}

func (s *NotionSender) makeRequest(ctx context.Context, method, endpoint, accessToken string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", NotionAPIVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Notion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
