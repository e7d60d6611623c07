package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

const ruleSetColumns = `id, name, scope, project_id, template_name, is_default, rules, created_at, updated_at`

// CreateRuleSet inserts a project-scope rule set and returns it with its
// generated id.
func (s *Store) CreateRuleSet(ctx context.Context, set *types.MappingRuleSet) (*types.MappingRuleSet, error) {
	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	set.Scope = types.RuleSetScopeProject
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now

	rules, err := json.Marshal(set.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	if set.IsDefault {
		if err := s.clearDefault(ctx, set.ProjectID); err != nil {
			return nil, err
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rule_sets (id, name, scope, project_id, template_name, is_default, rules, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Name, string(set.Scope), set.ProjectID, set.TemplateName, set.IsDefault,
		string(rules), set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule set: %w", err)
	}
	return set, nil
}

// RuleSet fetches one rule set by id. Not found returns nil, nil.
func (s *Store) RuleSet(ctx context.Context, id string) (*types.MappingRuleSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleSetColumns+` FROM rule_sets WHERE id = ?`, id)
	return scanRuleSet(row)
}

// DefaultRuleSet fetches the rule set marked default for a project.
func (s *Store) DefaultRuleSet(ctx context.Context, projectID string) (*types.MappingRuleSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleSetColumns+` FROM rule_sets
		 WHERE scope = ? AND project_id = ? AND is_default = 1`,
		string(types.RuleSetScopeProject), projectID)
	return scanRuleSet(row)
}

// TemplateRuleSet fetches the read-only rule set seeded for a process
// template.
func (s *Store) TemplateRuleSet(ctx context.Context, templateName string) (*types.MappingRuleSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleSetColumns+` FROM rule_sets
		 WHERE scope = ? AND template_name = ?`,
		string(types.RuleSetScopeTemplate), templateName)
	return scanRuleSet(row)
}

// ListRuleSets returns every rule set, templates first, then project sets by
// name.
func (s *Store) ListRuleSets(ctx context.Context) ([]*types.MappingRuleSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleSetColumns+` FROM rule_sets ORDER BY scope DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer rows.Close()

	var sets []*types.MappingRuleSet
	for rows.Next() {
		set, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// SetDefaultRuleSet marks one project rule set as that project's default,
// clearing any previous default.
func (s *Store) SetDefaultRuleSet(ctx context.Context, id string) error {
	set, err := s.RuleSet(ctx, id)
	if err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("rule set %s not found", id)
	}
	if set.Scope != types.RuleSetScopeProject {
		return fmt.Errorf("rule set %s is not project-scoped", id)
	}
	if err := s.clearDefault(ctx, set.ProjectID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE rule_sets SET is_default = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark rule set default: %w", err)
	}
	return nil
}

func (s *Store) clearDefault(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rule_sets SET is_default = 0 WHERE scope = ? AND project_id = ?`,
		string(types.RuleSetScopeProject), projectID)
	if err != nil {
		return fmt.Errorf("failed to clear project default: %w", err)
	}
	return nil
}

// DeleteRuleSet removes a project rule set. Template sets are read-only.
func (s *Store) DeleteRuleSet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rule_sets WHERE id = ? AND scope = ?`,
		id, string(types.RuleSetScopeProject))
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule set %s not found or not deletable", id)
	}
	return nil
}

func scanRuleSet(row rowScanner) (*types.MappingRuleSet, error) {
	var set types.MappingRuleSet
	var scope, rules string
	err := row.Scan(&set.ID, &set.Name, &scope, &set.ProjectID, &set.TemplateName,
		&set.IsDefault, &rules, &set.CreatedAt, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule set: %w", err)
	}
	set.Scope = types.RuleSetScope(scope)
	if err := json.Unmarshal([]byte(rules), &set.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules for set %s: %w", set.ID, err)
	}
	return &set, nil
}
