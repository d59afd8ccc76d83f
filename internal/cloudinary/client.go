package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.cloudinary.com"

// Client uploads ticket images through the Cloudinary upload API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// Endpoint overrides the API base URL.
	Endpoint string
	HTTP     *http.Client
	Now      func() time.Time
}

func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		Endpoint:  defaultEndpoint,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Now:       time.Now,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// UploadResult is the part of the upload response tickets need.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int    `json:"bytes"`
}

// UploadError is a non-2xx answer from the upload API.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("cloudinary upload: status %d: %s", e.Status, e.Message)
}

// UploadPNG stores data under publicID, overwriting an earlier ticket for the
// same attendee.
func (c *Client) UploadPNG(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	fields := url.Values{}
	fields.Set("timestamp", strconv.FormatInt(c.Now().Unix(), 10))
	fields.Set("overwrite", "true")
	if publicID != "" {
		fields.Set("public_id", publicID)
	}
	if c.Folder != "" {
		fields.Set("folder", c.Folder)
	}
	fields.Set("signature", signature(fields, c.APISecret))
	fields.Set("api_key", c.APIKey)

	body, contentType, err := multipartBody(fields, publicID+".png", data)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: build form: %w", err)
	}

	endpoint := strings.TrimRight(c.Endpoint, "/") + "/v1_1/" + url.PathEscape(c.CloudName) + "/image/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &UploadError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	var out UploadResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response: %w", err)
	}
	return &out, nil
}

func multipartBody(fields url.Values, filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k := range fields {
		if err := mw.WriteField(k, fields.Get(k)); err != nil {
			return nil, "", err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// signature is the hex SHA-1 of the sorted "k=v" pairs joined by "&" with the
// secret appended. Callers add api_key and file after signing.
func signature(fields url.Values, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if fields.Get(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields.Get(k)
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// errorMessage pulls error.message out of an API error body, falling back to
// the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
