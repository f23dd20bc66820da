package httpclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options configures the shared resty transport.
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	DefaultHeaders map[string]string
	// MaxBodyBytes caps how much of a response body is read off the wire;
	// the rest is discarded unread. Zero reads bodies whole.
	MaxBodyBytes int64
}

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client  *resty.Client
	maxBody int64
}

// NewRestyClient creates a new RestyClient with the specified options.
func NewRestyClient(opts Options) *RestyClient {
	return &RestyClient{client: newRestyBaseClient(opts), maxBody: opts.MaxBodyBytes}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(Options{Timeout: timeout})
}

// newRestyBaseClient creates a new resty.Client. Retries are left to callers
// so that every attempt goes through their politeness controls.
func newRestyBaseClient(opts Options) *resty.Client {
	c := resty.New()
	c.SetTimeout(opts.Timeout)
	c.SetRetryCount(0)
	if opts.UserAgent != "" {
		c.SetHeader("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.DefaultHeaders {
		if k != "" && v != "" {
			c.SetHeader(k, v)
		}
	}
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if r.maxBody <= 0 {
		resp, err := req.Get(url)
		if err != nil {
			return nil, err
		}
		return &restyResponseAdapter{resp: resp, body: resp.Body()}, nil
	}

	// Read the body ourselves so an oversized page never sits in memory whole.
	req.SetDoNotParseResponse(true)
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	raw := resp.RawBody()
	if raw == nil {
		return &restyResponseAdapter{resp: resp}, nil
	}
	defer raw.Close()
	body, err := io.ReadAll(io.LimitReader(raw, r.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &restyResponseAdapter{resp: resp, body: body}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
	body []byte
}

func (r *restyResponseAdapter) Body() []byte             { return r.body }
func (r *restyResponseAdapter) StatusCode() int          { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Header(key string) string { return r.resp.Header().Get(key) }
