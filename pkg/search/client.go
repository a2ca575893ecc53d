package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultIndex is the index email evidence is published to.
const DefaultIndex = "correspondence"

// Document is the compact search representation of one email record.
type Document struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	CaseID           string   `json:"case_id"`
	ContainerID      string   `json:"container_id"`
	ThreadID         string   `json:"thread_id,omitempty"`
	MessageID        string   `json:"message_id,omitempty"`
	InReplyTo        string   `json:"in_reply_to,omitempty"`
	From             string   `json:"from"`
	To               []string `json:"to"`
	Cc               []string `json:"cc"`
	Subject          string   `json:"subject"`
	Date             string   `json:"date,omitempty"`
	Content          string   `json:"content"`
	FolderPath       string   `json:"folder_path"`
	HasAttachments   bool     `json:"has_attachments"`
	AttachmentsCount int      `json:"attachments_count"`
	IndexedAt        string   `json:"indexed_at"`
}

// DocumentID returns the search id of an evidence record.
func DocumentID(evidenceID string) string {
	return "evidence_" + evidenceID
}

// Indexer publishes documents to a search index.
type Indexer interface {
	EnsureIndex(ctx context.Context) error
	IndexDocument(ctx context.Context, doc Document) error
}

// Config configures the OpenSearch REST client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Index    string
	Timeout  time.Duration
}

// OpenSearchClient talks to the OpenSearch REST API.
type OpenSearchClient struct {
	baseURL  string
	username string
	password string
	index    string
	client   *http.Client
}

// NewOpenSearchClient creates a client for cfg.
func NewOpenSearchClient(cfg Config) (*OpenSearchClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("search base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid search base url: %w", err)
	}
	index := strings.TrimSpace(cfg.Index)
	if index == "" {
		index = DefaultIndex
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenSearchClient{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		index:    index,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Index returns the index name documents are written to.
func (c *OpenSearchClient) Index() string {
	return c.index
}

// IndexExists checks whether the configured index exists.
func (c *OpenSearchClient) IndexExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.indexURL(), nil)
	if err != nil {
		return false, err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("check index failed with status %d", resp.StatusCode)
	}
	return true, nil
}

// EnsureIndex creates the index with the email mapping when it is missing.
func (c *OpenSearchClient) EnsureIndex(ctx context.Context) error {
	exists, err := c.IndexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	body := map[string]any{
		"settings": map[string]any{"number_of_shards": 1, "number_of_replicas": 0},
		"mappings": map[string]any{
			"properties": map[string]any{
				"date":    map[string]any{"type": "date"},
				"content": map[string]any{"type": "text"},
				"subject": map[string]any{"type": "text"},
				"from":    map[string]any{"type": "keyword"},
				"to":      map[string]any{"type": "keyword"},
			},
		},
	}
	err = c.doRequest(ctx, http.MethodPut, c.indexURL(), body)
	if err != nil && strings.Contains(err.Error(), "resource_already_exists_exception") {
		return nil
	}
	return err
}

// IndexDocument writes doc under its id without forcing a refresh.
func (c *OpenSearchClient) IndexDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id required")
	}
	u := fmt.Sprintf("%s/_doc/%s?refresh=false", c.indexURL(), url.PathEscape(doc.ID))
	return c.doRequest(ctx, http.MethodPut, u, doc)
}

func (c *OpenSearchClient) indexURL() string {
	return fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(c.index))
}

func (c *OpenSearchClient) authorize(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *OpenSearchClient) doRequest(ctx context.Context, method, u string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("search request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
