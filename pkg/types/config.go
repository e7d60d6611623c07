package types

import "time"

// Platform names one of the two external systems a configuration targets.
type Platform string

const (
	PlatformArdoq       Platform = "ardoq"
	PlatformAzureDevOps Platform = "azuredevops"
)

// PlatformConfig holds the connection settings for one external platform.
// At most one configuration per platform is active; sync requests that omit
// an explicit configuration id use the active one.
type PlatformConfig struct {
	ID           string    `json:"id"`
	Platform     Platform  `json:"platform"`
	Name         string    `json:"name"`
	BaseURL      string    `json:"baseUrl"`
	Token        string    `json:"-"`
	Organization string    `json:"organization,omitempty"`
	WorkspaceID  string    `json:"workspaceId,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
