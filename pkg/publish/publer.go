package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// PublerClient talks to the scheduling service: media upload first,
// then the bulk schedule call referencing the uploaded media id.
type PublerClient struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
	Accounts    []string

	Client *http.Client
}

func NewPublerClient(baseURL, apiKey, workspaceID string, accounts []string) *PublerClient {
	return &PublerClient{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		WorkspaceID: workspaceID,
		Accounts:    accounts,
		Client:      &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *PublerClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer-API "+c.APIKey)
	req.Header.Set("Publer-Workspace-Id", c.WorkspaceID)
}

// UploadMedia pushes one local image file and returns its media id.
func (c *PublerClient) UploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening media file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	w.WriteField("direct_upload", "true")
	w.WriteField("in_library", "false")
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/media", &body)
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("media upload returned no id")
	}
	return out.ID, nil
}

type networkPost struct {
	Type  string     `json:"type"`
	Text  string     `json:"text"`
	Media []mediaRef `json:"media"`
}

type mediaRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type accountRef struct {
	ID          string `json:"id"`
	ScheduledAt string `json:"scheduled_at"`
}

type bulkPost struct {
	Networks map[string]networkPost `json:"networks"`
	Accounts []accountRef           `json:"accounts"`
}

type bulkPayload struct {
	Bulk struct {
		State string     `json:"state"`
		Posts []bulkPost `json:"posts"`
	} `json:"bulk"`
}

// SchedulePost schedules caption+media on every configured account at
// the given time and returns the job id.
func (c *PublerClient) SchedulePost(ctx context.Context, caption, mediaID string, at time.Time) (string, error) {
	if len(c.Accounts) == 0 {
		return "", fmt.Errorf("no accounts configured")
	}

	photo := networkPost{
		Type:  "photo",
		Text:  caption,
		Media: []mediaRef{{ID: mediaID, Type: "photo"}},
	}

	var payload bulkPayload
	payload.Bulk.State = "scheduled"
	for _, acc := range c.Accounts {
		payload.Bulk.Posts = append(payload.Bulk.Posts, bulkPost{
			Networks: map[string]networkPost{
				"facebook":  photo,
				"instagram": photo,
			},
			Accounts: []accountRef{{ID: acc, ScheduledAt: at.Format(time.RFC3339)}},
		})
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/posts/schedule", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("schedule call returned status %d", resp.StatusCode)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		out.JobID = "scheduled"
	}
	return out.JobID, nil
}
