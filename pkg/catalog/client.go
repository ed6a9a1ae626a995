package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is the production SearchClient. The base URL is a field
// so tests can point it at an httptest server.
type HTTPClient struct {
	BaseURL     string
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	Marketplace string

	Client *http.Client
}

func NewHTTPClient(baseURL, accessKey, secretKey, partnerTag, marketplace string) *HTTPClient {
	return &HTTPClient{
		BaseURL:     baseURL,
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		PartnerTag:  partnerTag,
		Marketplace: marketplace,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type searchEnvelope struct {
	SearchRequest
	PartnerTag  string `json:"PartnerTag"`
	PartnerType string `json:"PartnerType"`
	Marketplace string `json:"Marketplace"`
}

type searchResponse struct {
	SearchResult *SearchResult `json:"SearchResult,omitempty"`
	Errors       []APIMessage  `json:"Errors,omitempty"`
}

func (c *HTTPClient) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	body, err := json.Marshal(searchEnvelope{
		SearchRequest: req,
		PartnerTag:    c.PartnerTag,
		PartnerType:   "Associates",
		Marketplace:   c.Marketplace,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/searchitems", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("X-Access-Key", c.AccessKey)
	httpReq.Header.Set("X-Secret-Key", c.SecretKey)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: truncateBody(raw)}
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	result := &SearchResult{Errors: decoded.Errors}
	if decoded.SearchResult != nil {
		result.Items = decoded.SearchResult.Items
	}
	return result, nil
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
