package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned when the node answers with a non-200 status.
type StatusError struct {
	URL     string // URL is the requested address
	Code    int    // Code is the HTTP status code
	Message string // Message is the node's error message, if any
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Message)
	}

	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(path string, result any) error {
	url := c.base + path

	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)

		return &StatusError{URL: url, Code: resp.StatusCode, Message: body.Error}
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
