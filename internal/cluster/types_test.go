package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestEnsureShardWireFormat pins the JSON field names used between the edge
// and the hub host.
func TestEnsureShardWireFormat(t *testing.T) {
	data, err := json.Marshal(EnsureShardRequest{Shard: 3, Locality: "eu-west"})
	if err != nil {
		t.Fatalf("Failed to marshal EnsureShardRequest: %v", err)
	}
	if string(data) != `{"shard":3,"locality":"eu-west"}` {
		t.Errorf("Unexpected request encoding: %s", data)
	}

	var resp EnsureShardResponse
	if err := json.Unmarshal([]byte(`{"shard":3,"created":true,"region":"eu-west"}`), &resp); err != nil {
		t.Fatalf("Failed to unmarshal EnsureShardResponse: %v", err)
	}
	if resp.Shard != 3 || !resp.Created || resp.Region != "eu-west" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

// TestShardInfoOmitsEmptyLocality verifies that an untagged shard has no locality field
func TestShardInfoOmitsEmptyLocality(t *testing.T) {
	data, err := json.Marshal(ShardInfo{ID: 1, Clients: 2, Authenticated: 1, Uplink: true})
	if err != nil {
		t.Fatalf("Failed to marshal ShardInfo: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if _, ok := m["locality"]; ok {
		t.Errorf("Expected no locality field, got %v", m["locality"])
	}
	if m["uplink"] != true {
		t.Errorf("Expected uplink true, got %v", m["uplink"])
	}
}

// TestPostJSON tests the PostJSON function with various scenarios
func TestPostJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		requestBody    interface{}
		responseBody   interface{}
		expectError    bool
		contextTimeout bool
	}{
		{
			name:           "successful POST with response",
			serverResponse: http.StatusOK,
			serverBody:     `{"shard":2,"created":true}`,
			requestBody:    EnsureShardRequest{Shard: 2},
			responseBody:   &EnsureShardResponse{},
		},
		{
			name:           "successful POST without response body",
			serverResponse: http.StatusNoContent,
			requestBody:    EnsureShardRequest{Shard: 2},
		},
		{
			name:           "server error response",
			serverResponse: http.StatusInternalServerError,
			serverBody:     `{"error":"internal error"}`,
			requestBody:    EnsureShardRequest{Shard: 2},
			expectError:    true,
		},
		{
			name:           "context timeout",
			serverResponse: http.StatusOK,
			serverBody:     `{"shard":2}`,
			requestBody:    EnsureShardRequest{Shard: 2},
			expectError:    true,
			contextTimeout: true,
		},
		{
			name:           "unmarshalable request body",
			serverResponse: http.StatusOK,
			requestBody:    make(chan int), // channels can't be marshaled
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST method, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected Content-Type application/json, got %s", ct)
				}
				if tt.contextTimeout {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.serverResponse)
				if tt.serverBody != "" {
					w.Write([]byte(tt.serverBody))
				}
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.contextTimeout {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, 1*time.Millisecond)
				defer cancel()
			}

			err := PostJSON(ctx, server.URL, nil, tt.requestBody, tt.responseBody)
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !tt.expectError && tt.responseBody != nil {
				resp := tt.responseBody.(*EnsureShardResponse)
				if resp.Shard != 2 || !resp.Created {
					t.Errorf("Unexpected response %+v", resp)
				}
			}
		})
	}
}

// TestPostJSONHeader verifies extra headers reach the server
func TestPostJSONHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(TokenHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	header := http.Header{}
	header.Set(TokenHeader, "secret")
	if err := PostJSON(context.Background(), server.URL, header, map[string]int{"shard": 1}, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "secret" {
		t.Errorf("Expected token header 'secret', got %q", got)
	}
}

// TestStatusError verifies that non-2xx responses surface the status code
func TestStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	var out map[string]interface{}
	err := GetJSON(context.Background(), server.URL, &out)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusForbidden {
		t.Errorf("Expected code 403, got %d", se.Code)
	}
}

// TestGetJSON tests the GetJSON function with various scenarios
func TestGetJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		expectError    bool
		contextTimeout bool
	}{
		{"successful GET", http.StatusOK, `{"region":"eu","shards":[{"id":0,"clients":2}]}`, false, false},
		{"not found error", http.StatusNotFound, `{"error":"not found"}`, true, false},
		{"context timeout", http.StatusOK, `{"shards":[]}`, true, true},
		{"invalid JSON response", http.StatusOK, `{invalid json}`, true, false},
		{"redirect response", http.StatusMovedPermanently, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("Expected GET method, got %s", r.Method)
				}
				if tt.contextTimeout {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.serverResponse)
				if tt.serverBody != "" {
					w.Write([]byte(tt.serverBody))
				}
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.contextTimeout {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, 1*time.Millisecond)
				defer cancel()
			}

			var list ShardList
			err := GetJSON(ctx, server.URL, &list)
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !tt.expectError && (list.Region != "eu" || len(list.Shards) != 1 || list.Shards[0].Clients != 2) {
				t.Errorf("Unexpected shard list %+v", list)
			}
		})
	}
}

// TestGetJSONInvalidURL tests GetJSON with invalid URL
func TestGetJSONInvalidURL(t *testing.T) {
	var result map[string]interface{}
	if err := GetJSON(context.Background(), "://invalid-url", &result); err == nil {
		t.Error("Expected error for invalid URL, got none")
	}
	if err := GetJSON(context.Background(), "http://localhost:99999", &result); err == nil {
		t.Error("Expected error for unreachable server, got none")
	}
}

// TestHTTPClient tests that the HTTP client has proper timeout
func TestHTTPClient(t *testing.T) {
	if httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected HTTP client timeout of 5s, got %v", httpClient.Timeout)
	}
}
