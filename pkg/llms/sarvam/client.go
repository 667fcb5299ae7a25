package sarvam

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderName   = "sarvam"
	DefaultBaseURL = "https://api.sarvam.ai"

	apiKeyEnv    = "SARVAM_API_KEY"
	apiKeyHeader = "api-subscription-key"
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the subscription key. If not provided, the client reads SARVAM_API_KEY.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is the SarvamAI REST client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	SpeechToText  *SpeechToTextService
	STTJobs       *JobsService
	TranslateJobs *JobsService
}

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv(apiKeyEnv)
	}
	if c.apiKey == "" {
		return nil, &AuthenticationError{Message: "API key is required. Use WithAPIKey option or set SARVAM_API_KEY environment variable."}
	}

	c.SpeechToText = &SpeechToTextService{client: c}
	c.STTJobs = &JobsService{client: c, kind: JobKindTranscribe}
	c.TranslateJobs = &JobsService{client: c, kind: JobKindTranslate}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// doJSON sends in as a JSON body (when non-nil) and decodes a 2xx response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method string, path string, in any, out any) error {
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
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return &ConnectionError{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
