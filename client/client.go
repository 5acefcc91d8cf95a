// Package client queries a relay node over its HTTP API.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ShardRelay/internal/api"
	"ShardRelay/internal/primitives"
)

// Client connects to a relay node via HTTP.
type Client struct {
	base string       // base is the node URL without trailing slash
	http *http.Client // http performs the requests
}

// New creates a client for the node at addr ("host:port" or a full URL).
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health reports whether the node answers /health.
func (c *Client) Health() error {
	var resp map[string]string
	if err := c.httpGet("/health", &resp); err != nil {
		return err
	}

	if resp["status"] != "ok" {
		return fmt.Errorf("node unhealthy: %q", resp["status"])
	}

	return nil
}

// Status returns the node's chain progress.
func (c *Client) Status() (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.httpGet("/status", &resp)

	return resp, err
}

// AllPending returns every candidate pending availability, by shard.
func (c *Client) AllPending() ([]api.PendingResponse, error) {
	var resp []api.PendingResponse
	err := c.httpGet("/pending", &resp)

	return resp, err
}

// Pending returns the shard's candidate pending availability.
// The bool is false when the shard has none.
func (c *Client) Pending(id primitives.ShardID) (api.PendingResponse, bool, error) {
	var resp api.PendingResponse

	err := c.httpGet(fmt.Sprintf("/pending/%d", id), &resp)
	if isNotFound(err) {
		return resp, false, nil
	}

	return resp, err == nil, err
}

// Shard returns the shard's registration, head and code state.
func (c *Client) Shard(id primitives.ShardID) (api.ShardResponse, error) {
	var resp api.ShardResponse
	err := c.httpGet(fmt.Sprintf("/shards/%d", id), &resp)

	return resp, err
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
