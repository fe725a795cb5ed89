// Package catalog provides a client for the product catalog backend: auth,
// asset storage and the batch product import function.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/resilience"
)

// ErrAuth is returned when credentials are absent or rejected.
var ErrAuth = eris.New("catalog: authentication failed")

// Client defines the catalog operations used by the pipeline.
type Client interface {
	// Login returns a bearer token for subsequent calls.
	Login(ctx context.Context) (string, error)
	// Upload stores a local file under key and returns its public URL. An
	// object that already exists counts as success.
	Upload(ctx context.Context, token, localPath, key string) (string, error)
	// Upsert submits products in one batch.
	Upsert(ctx context.Context, token string, products []model.ProductRecord) (*UpsertResult, error)
	// PublicURL returns the public URL for a storage key.
	PublicURL(key string) string
}

// Credentials configures how Login obtains a token. AdminToken wins over
// Email/Password.
type Credentials struct {
	AnonKey    string
	AdminToken string
	Email      string
	Password   string
}

// UpsertResult is the import function's response.
type UpsertResult struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Errors     []model.UpsertError `json:"errors"`
	ProductIDs []string            `json:"product_ids,omitempty"`
}

// OK reports whether every product in the batch was accepted.
func (r *UpsertResult) OK() bool {
	return r != nil && r.Failed == 0 && len(r.Errors) == 0
}

// Option configures the catalog client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for uploads and upserts.
func WithRetry(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithBucket sets the storage bucket. Default: product-assets.
func WithBucket(bucket string) Option {
	return func(c *httpClient) {
		c.bucket = bucket
	}
}

// WithSource sets the source tag sent with each upsert. Default: ai_agent.
func WithSource(source string) Option {
	return func(c *httpClient) {
		c.source = source
	}
}

type httpClient struct {
	baseURL string
	creds   Credentials
	bucket  string
	source  string
	http    *http.Client
	retry   resilience.Policy
}

// NewClient creates a catalog client for the backend at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		bucket:  "product-assets",
		source:  "ai_agent",
		http:    &http.Client{Timeout: 120 * time.Second},
		retry:   resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Login(ctx context.Context) (string, error) {
	if c.creds.AdminToken != "" {
		return c.creds.AdminToken, nil
	}
	if c.creds.Email == "" || c.creds.Password == "" {
		return "", eris.Wrap(ErrAuth, "no admin token or email/password configured")
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.creds.Email,
		"password": c.creds.Password,
	})
	if err != nil {
		return "", eris.Wrap(err, "catalog: marshal login")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "catalog: create login request")
	}
	req.Header.Set("apikey", c.creds.AnonKey)
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := c.do(req)
	if err != nil {
		return "", eris.Wrap(err, "catalog: login")
	}
	if status != http.StatusOK {
		return "", eris.Wrapf(ErrAuth, "login rejected with status %d", status)
	}

	token := gjson.GetBytes(respBody, "access_token").String()
	if token == "" {
		return "", eris.Wrap(ErrAuth, "login response has no access_token")
	}
	zap.L().Info("catalog: logged in", zap.String("email", c.creds.Email))
	return token, nil
}

func (c *httpClient) Upload(ctx context.Context, token, localPath, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: read %s", localPath)
	}
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := c.baseURL + "/storage/v1/object/" + path.Join(c.bucket, key)

	p := c.retry
	p.Notify = resilience.LogRetries("catalog", "upload")
	_, err = resilience.RetryVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return struct{}{}, eris.Wrap(err, "catalog: create upload request")
		}
		c.authorize(req, token)
		req.Header.Set("Content-Type", contentType)

		status, body, err := c.do(req)
		if err != nil {
			return struct{}{}, err
		}
		if alreadyExists(status, body) {
			zap.L().Debug("catalog: object already exists", zap.String("key", key))
			return struct{}{}, nil
		}
		if status < 200 || status > 299 {
			return struct{}{}, resilience.StatusError("catalog: upload", status, string(body))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "catalog: upload %s", key)
	}
	return c.PublicURL(key), nil
}

func (c *httpClient) Upsert(ctx context.Context, token string, products []model.ProductRecord) (*UpsertResult, error) {
	payload, err := json.Marshal(map[string]any{
		"source":   c.source,
		"mode":     "upsert",
		"products": products,
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal upsert")
	}

	p := c.retry
	p.Notify = resilience.LogRetries("catalog", "upsert")
	return resilience.RetryVal(ctx, p, func(ctx context.Context) (*UpsertResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/functions/v1/import-products", bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "catalog: create upsert request")
		}
		c.authorize(req, token)
		req.Header.Set("Content-Type", "application/json")

		status, body, err := c.do(req)
		if err != nil {
			return nil, err
		}
		if status < 200 || status > 299 {
			return nil, resilience.StatusError("catalog: upsert", status, string(body))
		}

		var res UpsertResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, eris.Wrap(err, "catalog: decode upsert response")
		}
		return &res, nil
	})
}

func (c *httpClient) PublicURL(key string) string {
	return c.baseURL + "/storage/v1/object/public/" + path.Join(c.bucket, key)
}

func (c *httpClient) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.creds.AnonKey)
}

func (c *httpClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "catalog: read response")
	}
	return resp.StatusCode, body, nil
}

func alreadyExists(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	if status >= 200 && status <= 299 {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), "already exists")
}
