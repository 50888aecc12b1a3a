package verifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/agberohq/agbero/internal/domain"
)

// maxProofBytes caps how much proof content is read from a remote source.
const maxProofBytes = 1 << 20

// FetcherConfig tunes proof retrieval.
type FetcherConfig struct {
	Timeout     time.Duration // per-fetch budget for remote proofs
	IPFSGateway string        // base URL used to resolve ipfs:// URIs
}

// Fetcher retrieves proof content from the schemes the ledger accepts:
// plain inline strings, http(s) URLs, and ipfs:// CIDs resolved through a
// gateway. Fetched remote content is cached when a ProofCache is provided.
type Fetcher struct {
	client  *http.Client
	cache   domain.ProofCache
	gateway string
}

// NewFetcher creates a Fetcher. cache may be nil to disable caching.
func NewFetcher(cfg FetcherConfig, cache domain.ProofCache) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	gateway := strings.TrimRight(cfg.IPFSGateway, "/")
	if gateway == "" {
		gateway = "https://ipfs.io/ipfs"
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		gateway: gateway,
	}
}

// Fetch resolves a proof URI to its content. A URI without a recognized
// scheme is treated as inline content and returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, proofURI string) (string, error) {
	switch {
	case strings.HasPrefix(proofURI, "http://"), strings.HasPrefix(proofURI, "https://"):
		return f.fetchRemote(ctx, proofURI, proofURI)
	case strings.HasPrefix(proofURI, "ipfs://"):
		raw := strings.TrimPrefix(proofURI, "ipfs://")
		raw = strings.SplitN(raw, "/", 2)[0]
		if _, err := cid.Decode(raw); err != nil {
			return "", fmt.Errorf("verifier: invalid ipfs cid %q: %w", raw, err)
		}
		return f.fetchRemote(ctx, proofURI, f.gateway+"/"+strings.TrimPrefix(proofURI, "ipfs://"))
	default:
		return proofURI, nil
	}
}

// fetchRemote performs the HTTP GET, consulting the cache first. cacheKey is
// the original proof URI so ipfs and gateway forms share an entry.
func (f *Fetcher) fetchRemote(ctx context.Context, cacheKey, url string) (string, error) {
	if f.cache != nil {
		if content, err := f.cache.Get(ctx, cacheKey); err == nil && content != "" {
			return content, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("verifier: build proof request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verifier: fetch proof %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verifier: fetch proof %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes))
	if err != nil {
		return "", fmt.Errorf("verifier: read proof %s: %w", url, err)
	}

	content := string(body)
	if f.cache != nil {
		_ = f.cache.Set(ctx, cacheKey, content)
	}
	return content, nil
}
