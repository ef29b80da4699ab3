// Package apiclient is the thin HTTP client tierctl uses to talk to the
// daemon.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/tiering"
)

// Client talks to one tierd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Config fetches the current tiering policy.
func (c *Client) Config(ctx context.Context) (tiering.TieringConfig, error) {
	var cfg tiering.TieringConfig
	err := c.call(ctx, http.MethodGet, "/api/v1/config", nil, &cfg)
	return cfg, err
}

// SaveConfig replaces the tiering policy.
func (c *Client) SaveConfig(ctx context.Context, cfg tiering.TieringConfig) (tiering.TieringConfig, error) {
	var saved tiering.TieringConfig
	err := c.call(ctx, http.MethodPut, "/api/v1/config", cfg, &saved)
	return saved, err
}

// Status fetches the controller snapshot.
func (c *Client) Status(ctx context.Context) (tiering.Status, error) {
	var status tiering.Status
	err := c.call(ctx, http.MethodGet, "/api/v1/status", nil, &status)
	return status, err
}

// Partitions lists both tiers.
func (c *Client) Partitions(ctx context.Context) (tiering.PartitionList, error) {
	var list tiering.PartitionList
	err := c.call(ctx, http.MethodGet, "/api/v1/partitions", nil, &list)
	return list, err
}

// Archive archives the named partitions, or the whole eligible set when
// names is empty.
func (c *Client) Archive(ctx context.Context, names []string) (tiering.OperationResult, error) {
	var result tiering.OperationResult
	err := c.call(ctx, http.MethodPost, "/api/v1/archive", tiering.ArchiveRequest{Partitions: names}, &result)
	return result, err
}

// Restore brings one archived partition back to the hot tier.
func (c *Client) Restore(ctx context.Context, name string) (tiering.OperationResult, error) {
	var result tiering.OperationResult
	err := c.call(ctx, http.MethodPost, "/api/v1/restore", map[string]string{"partition": name}, &result)
	return result, err
}

// Backup runs a database backup.
func (c *Client) Backup(ctx context.Context) (tiering.OperationResult, error) {
	var result tiering.OperationResult
	err := c.call(ctx, http.MethodPost, "/api/v1/backups", nil, &result)
	return result, err
}

// ListBackups lists retained dumps.
func (c *Client) ListBackups(ctx context.Context) ([]tiering.BackupInfo, error) {
	var backups []tiering.BackupInfo
	err := c.call(ctx, http.MethodGet, "/api/v1/backups", nil, &backups)
	return backups, err
}

// CleanupTokens prunes stale credentials.
func (c *Client) CleanupTokens(ctx context.Context) (tiering.CleanupResult, error) {
	var result tiering.CleanupResult
	err := c.call(ctx, http.MethodPost, "/api/v1/cleanup/tokens", nil, &result)
	return result, err
}

// Audit fetches the newest audit entries.
func (c *Client) Audit(ctx context.Context, limit int) ([]tiering.LogEntry, error) {
	var entries []tiering.LogEntry
	err := c.call(ctx, http.MethodGet, "/api/v1/audit?limit="+strconv.Itoa(limit), nil, &entries)
	return entries, err
}

// call performs one JSON round trip. Operation endpoints return their
// outcome body with a 500 on failure; that body is still decoded so the
// caller sees the details the daemon reported.
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "daemon unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode >= 400 {
		// Operation endpoints report a failed outcome with a 500 and an
		// OperationResult body. A genuine server error carries an
		// ErrorResponse instead, recognizable by its error field.
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Message != "" {
				return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
			}
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			return fmt.Errorf("%s", resp.Status)
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
