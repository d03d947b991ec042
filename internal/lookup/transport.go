package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport fetches candidates from a linked dataset.
type Transport interface {
	// FetchAll returns the full candidate set used when an editor opens.
	FetchAll(ctx context.Context, dataset string) ([]Candidate, error)
	// Search returns candidates matching term.
	Search(ctx context.Context, dataset, term string) ([]Candidate, error)
}

// DefaultTransportTimeout bounds a single lookup request.
const DefaultTransportTimeout = 10 * time.Second

// maxResponseBytes caps the size of a lookup response body.
const maxResponseBytes = 8 << 20

// HTTPTransport queries the lookup endpoint:
//
//	GET <base>/lookup/<dataset>             full candidate list
//	GET <base>/lookup/<dataset>?term=<term> term-filtered candidates
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport rooted at baseURL.
// A nil client gets a client with DefaultTransportTimeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTransportTimeout}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// FetchAll implements Transport.
func (t *HTTPTransport) FetchAll(ctx context.Context, dataset string) ([]Candidate, error) {
	return t.get(ctx, t.endpoint(dataset))
}

// Search implements Transport.
func (t *HTTPTransport) Search(ctx context.Context, dataset, term string) ([]Candidate, error) {
	return t.get(ctx, t.endpoint(dataset)+"?term="+url.QueryEscape(term))
}

func (t *HTTPTransport) endpoint(dataset string) string {
	return t.baseURL + "/lookup/" + url.PathEscape(dataset)
}

func (t *HTTPTransport) get(ctx context.Context, u string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("lookup read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("lookup %s: status %d", u, resp.StatusCode)
	}
	return DecodeCandidates(body)
}
