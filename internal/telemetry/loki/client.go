// Package loki pushes security events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one labelled stream; each value is [timestamp_ns, line].
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields are the event JSON fields promoted to labels. User and session ids
// stay in the line to keep label cardinality low.
type eventFields struct {
	EventType string    `json:"eventType"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client pushes lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). hc may be nil.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("loki: base URL is empty")
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), job: "ztsession", http: hc}, nil
}

// PushEventJSON pushes a serialized event, labelled by its type and source and
// timestamped with its creation time. Unparseable input is pushed as is at the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var f eventFields
	if err := json.Unmarshal(raw, &f); err == nil {
		if f.EventType != "" {
			labels["event_type"] = f.EventType
		}
		if f.Source != "" {
			labels["source"] = f.Source
		}
		if !f.CreatedAt.IsZero() {
			ts = f.CreatedAt
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends one line. Returns an error on transport failure or a non-2xx response.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	stream := map[string]string{"job": c.job}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			stream[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: stream,
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
