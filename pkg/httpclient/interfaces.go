// Package httpclient is the transport under the page fetcher and robots
// cache. Retries and throttling live above it, in the fetcher.
package httpclient

import "context"

// Response exposes what the fetcher classifies: status, body and the
// Retry-After / Content-Type headers.
type Response interface {
	Body() []byte
	StatusCode() int
	Header(key string) string
}

// Client issues one GET per call. Non-2xx responses are returned, not
// turned into errors.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
