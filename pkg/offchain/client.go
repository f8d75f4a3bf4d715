// Package offchain fetches the JSON documents a token's data URI points to.
package offchain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/token"
	"github.com/nftsnap/nftsnap/pkg/utils"
)

// DefaultIPFSGateway serves ipfs:// URIs when no gateway is configured.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// maxDocumentSize caps a single metadata document.
const maxDocumentSize = 8 << 20

// Document is the part of an off-chain metadata document the pipeline keeps.
type Document struct {
	Image  string
	Traits token.Traits
}

// Fetcher fetches and decodes a metadata document.
type Fetcher interface {
	FetchDocument(ctx context.Context, uri string) (*Document, error)
}

// Opts configures a Client.
type Opts struct {
	Timeout     time.Duration
	MaxConns    int
	IPFSGateway string
	HTTPClient  *http.Client
}

// Client fetches documents over HTTP.
type Client struct {
	client  *http.Client
	gateway string
}

// NewClient builds a Client with a bounded connection pool.
func NewClient(o Opts) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 50
	}
	if o.IPFSGateway == "" {
		o.IPFSGateway = DefaultIPFSGateway
	}
	client := o.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxConnsPerHost = o.MaxConns
		transport.MaxIdleConnsPerHost = o.MaxConns
		client = &http.Client{Timeout: o.Timeout, Transport: transport}
	}
	gateway := o.IPFSGateway
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return &Client{client: client, gateway: gateway}
}

// ResolveURI rewrites ipfs:// URIs onto the gateway and leaves others alone.
func (c *Client) ResolveURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		rest = strings.TrimPrefix(rest, "ipfs/")
		return c.gateway + rest
	}
	return uri
}

// FetchDocument GETs uri and decodes it. Absent documents (404, 410) return
// errs.ErrNotFound; 429 and 5xx stay retryable; everything else is permanent.
func (c *Client) FetchDocument(ctx context.Context, uri string) (*Document, error) {
	url := c.ResolveURI(uri)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("document %s: %w", uri, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", uri, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("document %s: %w", uri, errs.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("document %s: %w", uri, errs.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("document %s: server %d", uri, resp.StatusCode)
	default:
		return nil, retry.Permanent(fmt.Errorf("document %s: http %d", uri, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", uri, err)
	}
	doc, err := DecodeDocument(body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("document %s: %w", uri, err))
	}
	return doc, nil
}

type rawDocument struct {
	Image      string         `json:"image"`
	Attributes []rawAttribute `json:"attributes"`
}

type rawAttribute struct {
	TraitType json.RawMessage `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// DecodeDocument extracts image and attributes. Attribute values are
// normalized to strings; null becomes "". Attributes without a trait_type
// are dropped and repeated trait types keep the last value.
func DecodeDocument(body []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformed, err)
	}
	doc := &Document{Image: raw.Image, Traits: token.Traits{}}
	for _, attr := range raw.Attributes {
		name, err := scalarString(attr.TraitType)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		value, err := scalarString(attr.Value)
		if err != nil {
			return nil, err
		}
		doc.Traits = doc.Traits.Set(name, value)
	}
	return doc, nil
}

// scalarString renders a JSON value as text. Objects and arrays keep their
// compact JSON form.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", errs.ErrMalformed, err)
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", fmt.Errorf("%w: %v", errs.ErrMalformed, err)
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", fmt.Errorf("%w: %v", errs.ErrMalformed, err)
		}
		return buf.String(), nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %v", errs.ErrMalformed, err)
		}
		return n.String(), nil
	}
}
