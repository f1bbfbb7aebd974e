package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/infra/tlsroots"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

// RemoteStore is the remote object store documents are backed up to.
type RemoteStore interface {
	// Authorize obtains (or refreshes) the client's credentials.
	Authorize(ctx context.Context) error

	// Upload stores the serialized document under its id.
	Upload(ctx context.Context, id string, data []byte) error

	// Download retrieves the serialized document for id.
	Download(ctx context.Context, id string) ([]byte, error)

	// List returns the document ids present remotely.
	List(ctx context.Context) ([]string, error)

	// Delete removes the remote object for id.
	Delete(ctx context.Context, id string) error
}

// HTTPError carries a non-2xx response from the remote store.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying.
func (e *HTTPError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClientConfig configures the HTTP remote store client.
type HTTPClientConfig struct {
	// BaseURL of the backup service, e.g. "https://backup.example.com".
	BaseURL string

	// AppKey identifies this DocRelay instance to the backup service.
	AppKey string

	// AppSecret is exchanged, together with AppKey, for a bearer token.
	AppSecret string

	// Bucket names the object-store bucket documents live in. Objects
	// are addressed as documents/<id>.bin inside it.
	Bucket string

	// Timeout per HTTP request. Default: 15s.
	Timeout time.Duration

	// CACertFile optionally adds a PEM bundle to the trusted roots, for
	// backup services behind a private CA.
	CACertFile string
}

// HTTPClient talks to the backup service. It holds the bearer token
// obtained from Authorize and refreshes it exactly once per call when the
// service rejects it; a second rejection surfaces as ErrBackupAuth.
type HTTPClient struct {
	baseURL    string
	bucket     string
	appKey     string
	appSecret  string
	httpClient *http.Client
	metrics    *metric.Metrics

	mu    sync.Mutex
	token string
}

// NewHTTPClient creates the client. metrics may be nil.
func NewHTTPClient(cfg HTTPClientConfig, metrics *metric.Metrics) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, domain.ErrMissingArgument.WithDetails("backup base url is required")
	}
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, domain.ErrMissingArgument.WithDetails("backup app key and secret are required")
	}
	if cfg.Bucket == "" {
		return nil, domain.ErrMissingArgument.WithDetails("backup bucket is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.CACertFile != "" {
		pool, err := tlsroots.NewPool(cfg.CACertFile)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: pool.ClientConfig()}
	}

	return &HTTPClient{
		baseURL:    base,
		bucket:     cfg.Bucket,
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		httpClient: httpClient,
		metrics:    metrics,
	}, nil
}

// Authorize exchanges the app key and secret for a bearer token.
func (c *HTTPClient) Authorize(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"app_key":    c.appKey,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrBackupRemote.WithDetails("authorize").WithCause(err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return domain.ErrBackupRemote.WithCause(readErr)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.ErrBackupAuth.WithDetails("app credentials rejected")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ErrBackupRemote.WithCause(httpError(resp.StatusCode, payload))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return domain.ErrBackupRemote.WithDetails("bad token response").WithCause(err)
	}
	if out.Token == "" {
		return domain.ErrBackupRemote.WithDetails("empty token in response")
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

const objectPrefix = "documents/"

// objectPath addresses a document object inside the configured bucket.
func (c *HTTPClient) objectPath(id string) string {
	return c.bucketPath() + "/" + objectPrefix + url.PathEscape(id) + ".bin"
}

func (c *HTTPClient) bucketPath() string {
	return "/v1/buckets/" + url.PathEscape(c.bucket) + "/objects"
}

// Upload stores data under id. The payload checksum travels in a header
// so the service can verify the object it received.
func (c *HTTPClient) Upload(ctx context.Context, id string, data []byte) error {
	sum := sha256.Sum256(data)
	headers := map[string]string{
		"Content-Type":     "application/octet-stream",
		"X-Content-Sha256": hex.EncodeToString(sum[:]),
	}
	err := c.do(ctx, http.MethodPut, c.objectPath(id), headers, data, nil)
	if err != nil {
		if errors.Is(err, domain.ErrBackupAuth) {
			return err
		}
		return domain.ErrBackupUpload.WithDetails(id).WithCause(err)
	}
	return nil
}

// Download retrieves the object stored under id.
func (c *HTTPClient) Download(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := c.do(ctx, http.MethodGet, c.objectPath(id), nil, nil, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// List returns the document ids present in the bucket. Objects outside
// the documents/ prefix belong to other tools and are ignored.
func (c *HTTPClient) List(ctx context.Context) ([]string, error) {
	var raw []byte
	listPath := c.bucketPath() + "?prefix=" + url.QueryEscape(objectPrefix)
	if err := c.do(ctx, http.MethodGet, listPath, nil, nil, &raw); err != nil {
		return nil, err
	}
	var out struct {
		Objects []struct {
			Name string `json:"name"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.ErrBackupRemote.WithDetails("bad list response").WithCause(err)
	}
	ids := make([]string, 0, len(out.Objects))
	for _, obj := range out.Objects {
		name, ok := strings.CutPrefix(obj.Name, objectPrefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, ".bin")
		if !ok {
			continue
		}
		if id, err := url.PathUnescape(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes the remote object for id. A missing object is fine.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, c.objectPath(id), nil, nil, nil)
	var herr *HTTPError
	if err != nil && errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// do performs one request, re-authenticating at most once when the token
// is rejected. Responses land in *out when it is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, requestPath string, headers map[string]string, body []byte, out *[]byte) error {
	reauthed := false
	for {
		token := c.currentToken()
		if token == "" {
			if err := c.Authorize(ctx); err != nil {
				return err
			}
			token = c.currentToken()
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.ErrBackupRemote.WithDetails(requestPath).WithCause(err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return domain.ErrBackupRemote.WithCause(readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out != nil {
				*out = payload
			}
			return nil
		}

		// A rejected token gets one refresh, then the request is
		// replayed. A second rejection means the app credentials
		// themselves are bad.
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if reauthed {
				return domain.ErrBackupAuth.WithDetails("credentials rejected after re-authentication")
			}
			reauthed = true
			if c.metrics != nil {
				c.metrics.BackupReauthsTotal.Inc()
			}
			if err := c.Authorize(ctx); err != nil {
				return err
			}
			continue
		}

		return httpError(resp.StatusCode, payload)
	}
}

func httpError(status int, payload []byte) error {
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	return &HTTPError{
		StatusCode: status,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}
