package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pdsa/pkg/api"

	"github.com/cockroachdb/errors"
)

// StatusClient handles API calls to the pdsa controller.
type StatusClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewStatusClient creates a new client for the given base URL.
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// GetStatus sends GET /status.
func (c *StatusClient) GetStatus() (*api.CampaignStatus, error) {
	var result api.CampaignStatus
	if err := c.get("/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResults sends GET /results.
func (c *StatusClient) GetResults() (*api.ResultsResponse, error) {
	var result api.ResultsResponse
	if err := c.get("/results", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *StatusClient) get(path string, out interface{}) error {
	httpReq, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Add("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
