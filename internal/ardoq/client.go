package ardoq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// Client wraps the Ardoq REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a new Ardoq client with a bearer-token HTTP client.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 60 * time.Second

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// component is the subset of an Ardoq component the sync engine consumes.
type component struct {
	ID          string         `json:"_id"`
	Name        string         `json:"name"`
	TypeName    string         `json:"type"`
	Parent      string         `json:"parent"`
	Description string         `json:"description"`
	Fields      map[string]any `json:"customFields"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ardoq returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// FetchHierarchy retrieves every component in a workspace and assembles the
// parent-child tree from the components' parent references. Roots are the
// components with no parent inside the workspace.
func (c *Client) FetchHierarchy(ctx context.Context, workspaceID string) ([]*types.HierarchyNode, error) {
	var components []component
	path := fmt.Sprintf("/api/v2/components?workspaceId=%s", url.QueryEscape(workspaceID))
	if err := c.get(ctx, path, &components); err != nil {
		return nil, fmt.Errorf("failed to fetch components: %w", err)
	}

	nodes := make(map[string]*types.HierarchyNode, len(components))
	for _, comp := range components {
		fields := types.FieldBag{}
		if comp.Description != "" {
			fields["description"] = comp.Description
		}
		if len(comp.Fields) > 0 {
			fields["customFields"] = comp.Fields
		}
		nodes[comp.ID] = &types.HierarchyNode{
			ID:     comp.ID,
			Name:   comp.Name,
			Type:   comp.TypeName,
			Fields: fields,
		}
	}

	var roots []*types.HierarchyNode
	for _, comp := range components {
		node := nodes[comp.ID]
		if parent, ok := nodes[comp.Parent]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	c.logger.Info("fetched hierarchy from ardoq",
		zap.String("workspace_id", workspaceID),
		zap.Int("components", len(components)),
		zap.Int("roots", len(roots)))
	return roots, nil
}

// TestConnection verifies the base URL and token against the current-user
// endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	var me map[string]any
	if err := c.get(ctx, "/api/v2/me", &me); err != nil {
		return fmt.Errorf("failed to reach ardoq: %w", err)
	}
	return nil
}
