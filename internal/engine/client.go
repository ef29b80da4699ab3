// Package engine provides the HTTP client for the time-series engine.
//
// The engine exposes a single /exec endpoint accepting SQL text. Only the
// minimal command surface used by the lifecycle controller is wrapped here:
// the table_partitions() metadata query and ATTACH/DETACH PARTITION LIST.
// A non-2xx response or an "error" field in the JSON body is a command
// failure.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/egibi/tierd/internal/errors"
)

// Client issues SQL commands to the engine's HTTP endpoint.
type Client struct {
	baseURL string
	table   string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client for the engine at baseURL operating on table.
// Every command runs under the given timeout.
func NewClient(baseURL, table string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		table:   table,
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Table returns the managed table name.
func (c *Client) Table() string {
	return c.table
}

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is the decoded response of one /exec call.
type Result struct {
	Query   string   `json:"query"`
	Columns []Column `json:"columns"`
	Dataset [][]any  `json:"dataset"`
	Count   int      `json:"count"`
	DDL     string   `json:"ddl"`
	Error   string   `json:"error"`
}

// Exec runs one SQL statement against the engine.
func (c *Client) Exec(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/exec?query=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEngineUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEngineUnavailable, err.Error())
	}

	var result Result
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("engine returned status %d: %w", resp.StatusCode, errors.ErrCommandFailed)
		}
		return nil, fmt.Errorf("decode engine response: %w", err)
	}

	if result.Error != "" {
		return nil, fmt.Errorf("engine: %s: %w", result.Error, errors.ErrCommandFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine returned status %d: %w", resp.StatusCode, errors.ErrCommandFailed)
	}

	return &result, nil
}

// Partition is one row of the engine's partition metadata.
type Partition struct {
	Name         string
	NumRows      int64
	DiskSize     int64
	MinTimestamp time.Time
	MaxTimestamp time.Time
	Active       bool
}

// Partitions queries the engine's partition metadata for the managed table,
// ordered by name descending.
func (c *Client) Partitions(ctx context.Context) ([]Partition, error) {
	query := fmt.Sprintf(
		"SELECT name, numRows, diskSize, minTimestamp, maxTimestamp, active FROM table_partitions('%s') ORDER BY name DESC",
		c.table,
	)

	result, err := c.Exec(ctx, query)
	if err != nil {
		return nil, err
	}

	partitions := make([]Partition, 0, len(result.Dataset))
	for _, row := range result.Dataset {
		if len(row) < 6 {
			continue
		}
		partitions = append(partitions, Partition{
			Name:         asString(row[0]),
			NumRows:      asInt64(row[1]),
			DiskSize:     asInt64(row[2]),
			MinTimestamp: asTime(row[3]),
			MaxTimestamp: asTime(row[4]),
			Active:       asBool(row[5]),
		})
	}

	return partitions, nil
}

// PartitionRowCount looks up the current row count for one partition.
// The second return value is false when the partition is not attached.
func (c *Client) PartitionRowCount(ctx context.Context, name string) (int64, bool, error) {
	partitions, err := c.Partitions(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, p := range partitions {
		if p.Name == name {
			return p.NumRows, true, nil
		}
	}
	return 0, false, nil
}

// Detach removes the named partition from the active table, leaving its
// files on the engine's local storage renamed with a .detached marker.
func (c *Client) Detach(ctx context.Context, name string) error {
	_, err := c.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DETACH PARTITION LIST '%s'", c.table, name))
	return err
}

// Attach registers a .detached directory back into the active table.
func (c *Client) Attach(ctx context.Context, name string) error {
	_, err := c.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ATTACH PARTITION LIST '%s'", c.table, name))
	return err
}

// =============================================================================
// Row value conversion
// =============================================================================

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err == nil {
			return i
		}
		// Engine may render large counts as floats
		f, err := n.Float64()
		if err == nil {
			return int64(f)
		}
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
