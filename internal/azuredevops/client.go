package azuredevops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

const apiVersion = "7.0"

// Client wraps the Azure DevOps work item tracking REST API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	organization string
	token        string
	logger       *zap.Logger
}

// NewClient creates a new Azure DevOps client authenticating with a personal
// access token.
func NewClient(baseURL, organization, token string, logger *zap.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/"),
		organization: organization,
		token:        token,
		logger:       logger,
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// PAT auth uses basic auth with an empty username.
	req.SetBasicAuth("", c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) orgURL(project, resource string) string {
	return fmt.Sprintf("%s/%s/%s/_apis/%s", c.baseURL, c.organization, url.PathEscape(project), resource)
}

// CreateWorkItem creates one work item from a JSON-patch document and
// returns its identifier, API URL and browse URL.
func (c *Client) CreateWorkItem(ctx context.Context, project string, itemType types.ItemType, patch types.PatchDocument) (*types.WorkItemRef, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch document: %w", err)
	}

	path := fmt.Sprintf("%s?api-version=%s",
		c.orgURL(project, "wit/workitems/$"+url.PathEscape(itemType.DisplayName())), apiVersion)
	resp, err := c.do(ctx, http.MethodPost, path, "application/json-patch+json", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError("create work item", resp)
	}

	var created struct {
		ID    int `json:"id"`
		Links struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"_links"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode work item response: %w", err)
	}

	browseURL := created.Links.HTML.Href
	if browseURL == "" {
		browseURL = created.URL
	}
	c.logger.Debug("created work item",
		zap.String("project", project),
		zap.String("item_type", string(itemType)),
		zap.Int("id", created.ID))
	return &types.WorkItemRef{ID: created.ID, URL: created.URL, BrowseURL: browseURL}, nil
}

// DeleteWorkItems deletes the given work items one call per id. permanent
// destroys them instead of moving them to the recycle bin.
func (c *Client) DeleteWorkItems(ctx context.Context, project string, ids []int, permanent bool) error {
	for _, id := range ids {
		path := fmt.Sprintf("%s?api-version=%s&destroy=%t",
			c.orgURL(project, "wit/workitems/"+strconv.Itoa(id)), apiVersion, permanent)
		resp, err := c.do(ctx, http.MethodDelete, path, "", nil)
		if err != nil {
			return fmt.Errorf("failed to delete work item %d: %w", id, err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			apiErr := apiError(fmt.Sprintf("delete work item %d", id), resp)
			resp.Body.Close()
			return apiErr
		}
		resp.Body.Close()
	}
	return nil
}

// QueryWorkItemIDs returns the ids of every work item in the project, via a
// WIQL query.
func (c *Client) QueryWorkItemIDs(ctx context.Context, project string) ([]int, error) {
	query := map[string]string{
		"query": "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = @project",
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wiql query: %w", err)
	}

	path := fmt.Sprintf("%s?api-version=%s", c.orgURL(project, "wit/wiql"), apiVersion)
	resp, err := c.do(ctx, http.MethodPost, path, "application/json", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("query work items", resp)
	}

	var result struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode wiql response: %w", err)
	}

	ids := make([]int, 0, len(result.WorkItems))
	for _, wi := range result.WorkItems {
		ids = append(ids, wi.ID)
	}
	return ids, nil
}

// GetProjectProcess returns the process template name of a project, used to
// pick a template-level rule set.
func (c *Client) GetProjectProcess(ctx context.Context, project string) (string, error) {
	path := fmt.Sprintf("%s/%s/_apis/projects/%s?includeCapabilities=true&api-version=%s",
		c.baseURL, c.organization, url.PathEscape(project), apiVersion)
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("get project", resp)
	}

	var result struct {
		Capabilities struct {
			ProcessTemplate struct {
				TemplateName string `json:"templateName"`
			} `json:"processTemplate"`
		} `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode project response: %w", err)
	}
	if result.Capabilities.ProcessTemplate.TemplateName == "" {
		return "", fmt.Errorf("project %s has no process template capability", project)
	}
	return result.Capabilities.ProcessTemplate.TemplateName, nil
}

// TestConnection verifies the base URL, organization and token by listing
// projects.
func (c *Client) TestConnection(ctx context.Context) error {
	path := fmt.Sprintf("%s/%s/_apis/projects?api-version=%s", c.baseURL, c.organization, apiVersion)
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return fmt.Errorf("failed to reach azure devops: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("list projects", resp)
	}
	return nil
}

func apiError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s returned %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))
}
