// Package profile reads profile snapshot trees from the data-import profile
// service. The pipeline only inspects the current node's content type and
// content; it never traverses the tree itself.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vijay-eis/mod-source-record-storage/internal/cache"
	"github.com/vijay-eis/mod-source-record-storage/internal/config"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

type ContentType string

const (
	ContentJobProfile     ContentType = "JOB_PROFILE"
	ContentActionProfile  ContentType = "ACTION_PROFILE"
	ContentMatchProfile   ContentType = "MATCH_PROFILE"
	ContentMappingProfile ContentType = "MAPPING_PROFILE"
)

// Node is one wrapper of a profile snapshot tree.
type Node struct {
	ID          string          `json:"id"`
	ContentType ContentType     `json:"contentType"`
	Content     json.RawMessage `json:"content"`
	ChildNodes  []Node          `json:"childSnapshotWrappers,omitempty"`
}

// FirstChild returns the first child of the given content type.
func (n *Node) FirstChild(contentType ContentType) *Node {
	for i := range n.ChildNodes {
		if n.ChildNodes[i].ContentType == contentType {
			return &n.ChildNodes[i]
		}
	}
	return nil
}

// Client fetches profile snapshots with a bounded wait and a short TTL cache
// keyed by tenant and snapshot id.
type Client struct {
	httpClient *http.Client
	log        *zap.Logger
	cache      cache.Cache[string, *Node]
	cacheTTL   time.Duration
}

type ClientParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
}

func NewClient(p ClientParam) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: p.Config.Profile.RequestTimeout},
		log:        p.Log.Named("profile.client"),
		cache:      cache.NewTTLCache[string, *Node](),
		cacheTTL:   p.Config.Profile.CacheTTL,
	}
}

// GetSnapshot returns the root node of a profile snapshot tree. Failures of
// the remote service surface as DependencyUnavailable so the pipeline can
// resolve the payload to an error outcome instead of blocking a worker.
func (c *Client) GetSnapshot(ctx context.Context, baseURL, tenant, token, snapshotID string) (*Node, error) {
	key := tenant + "/" + snapshotID
	if node, ok := c.cache.Get(key); ok {
		return node, nil
	}

	endpoint, err := url.JoinPath(baseURL, "data-import-profiles", "jobProfileSnapshots", snapshotID)
	if err != nil {
		return nil, fmt.Errorf("profile snapshot url: %w", storeerr.ErrValidation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Okapi-Tenant", tenant)
	if token != "" {
		req.Header.Set("X-Okapi-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile snapshot %s: %v: %w", snapshotID, err, storeerr.ErrDependencyUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile snapshot %s: status %d: %w",
			snapshotID, resp.StatusCode, storeerr.ErrDependencyUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("profile snapshot %s: %v: %w", snapshotID, err, storeerr.ErrDependencyUnavailable)
	}

	var node Node
	if err := json.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("profile snapshot %s: %v: %w", snapshotID, err, storeerr.ErrDependencyUnavailable)
	}

	c.cache.Set(key, &node, c.cacheTTL)
	return &node, nil
}

var Module = fx.Module("profile.client",
	fx.Provide(NewClient),
)
