package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type ShardInfo struct {
	ID            int    `json:"id"`
	Clients       int    `json:"clients"`
	Authenticated int    `json:"authenticated"`
	Uplink        bool   `json:"uplink"`
	Pending       int    `json:"pending"`
	Flushes       uint64 `json:"flushes"`
	Superseded    uint64 `json:"superseded"`
	Locality      string `json:"locality,omitempty"`
}

// ShardList is the body of GET /shards.
type ShardList struct {
	Region string      `json:"region,omitempty"`
	Shards []ShardInfo `json:"shards"`
}

type EnsureShardRequest struct {
	Shard    int    `json:"shard"`
	Locality string `json:"locality,omitempty"`
}

type EnsureShardResponse struct {
	Shard   int    `json:"shard"`
	Created bool   `json:"created"`
	Region  string `json:"region,omitempty"`
}

// TokenHeader carries the shared secret on internal hub host endpoints.
const TokenHeader = "X-Relay-Token"

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON with the extra request headers in header (which
// may be nil) and decodes the response into out unless out is nil.
func PostJSON(ctx context.Context, url string, header http.Header, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}
