package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

const configColumns = `id, platform, name, base_url, token, organization, workspace_id, is_active, created_at, updated_at`

// CreateConfig inserts a platform configuration. The first configuration for
// a platform becomes active automatically.
func (s *Store) CreateConfig(ctx context.Context, cfg *types.PlatformConfig) (*types.PlatformConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM platform_configs WHERE platform = ?`,
		string(cfg.Platform)).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count configs: %w", err)
	}
	if count == 0 {
		cfg.IsActive = true
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_configs (id, platform, name, base_url, token, organization, workspace_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, string(cfg.Platform), cfg.Name, cfg.BaseURL, cfg.Token, cfg.Organization,
		cfg.WorkspaceID, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert config: %w", err)
	}
	return cfg, nil
}

// Config fetches one configuration by id. Not found returns nil, nil.
func (s *Store) Config(ctx context.Context, id string) (*types.PlatformConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM platform_configs WHERE id = ?`, id)
	return scanConfig(row)
}

// ActiveConfig fetches the active configuration for a platform.
func (s *Store) ActiveConfig(ctx context.Context, platform types.Platform) (*types.PlatformConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM platform_configs WHERE platform = ? AND is_active = 1`,
		string(platform))
	return scanConfig(row)
}

// ListConfigs returns every configuration for a platform.
func (s *Store) ListConfigs(ctx context.Context, platform types.Platform) ([]*types.PlatformConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM platform_configs WHERE platform = ? ORDER BY created_at`,
		string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var configs []*types.PlatformConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ActivateConfig makes one configuration the active one for its platform.
func (s *Store) ActivateConfig(ctx context.Context, id string) error {
	cfg, err := s.Config(ctx, id)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("configuration %s not found", id)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE platform_configs SET is_active = 0 WHERE platform = ?`,
		string(cfg.Platform)); err != nil {
		return fmt.Errorf("failed to clear active config: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE platform_configs SET is_active = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to activate config: %w", err)
	}
	return nil
}

// DeleteConfig removes a configuration.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM platform_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("configuration %s not found", id)
	}
	return nil
}

func scanConfig(row rowScanner) (*types.PlatformConfig, error) {
	var cfg types.PlatformConfig
	var platform string
	err := row.Scan(&cfg.ID, &platform, &cfg.Name, &cfg.BaseURL, &cfg.Token,
		&cfg.Organization, &cfg.WorkspaceID, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}
	cfg.Platform = types.Platform(platform)
	return &cfg, nil
}
