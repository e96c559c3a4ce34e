package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
)

// Client is the scan API HTTP client.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new scan API client. The credential is forwarded as a
// header on admission requests only.
func NewClient(baseURL, credential string, verbose bool) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(method, path, reqBody, contentType, false)
}

func (c *Client) do(method, path string, body io.Reader, contentType string, withCredential bool) ([]byte, int, error) {
	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, reqURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if withCredential && c.credential != "" {
		req.Header.Set("X-Delegated-Credential", c.credential)
	}

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) error {
	_, _, err := c.Do(http.MethodDelete, path, nil)
	return err
}

// AdmitParams are the non-file fields of an admission request.
type AdmitParams struct {
	Name         string
	Backend      string
	Category     string
	PreserveCase bool
	ForceOCR     bool
	Principal    string
	Organization string
}

// Admit uploads the files as a multipart request and returns the response
// body. File timestamps ride along in a per-part header so the server-side
// working-set identity matches the local one.
func (c *Client) Admit(params AdmitParams, files []scan.SourceFile) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"name":          params.Name,
		"backend":       params.Backend,
		"category":      params.Category,
		"preserve_case": fmt.Sprintf("%t", params.PreserveCase),
		"force_ocr":     fmt.Sprintf("%t", params.ForceOCR),
		"principal":     params.Principal,
		"organization":  params.Organization,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
		hdr.Set("Content-Type", "application/octet-stream")
		hdr.Set("X-File-Mtime", f.ModTime.UTC().Format(time.RFC3339))

		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	data, _, err := c.do(http.MethodPost, "/api/v1/scans", &buf, mw.FormDataContentType(), true)
	return data, err
}

// WSBase converts the API base URL into the WebSocket origin.
func (c *Client) WSBase() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// APIError represents an error from the scan API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}
