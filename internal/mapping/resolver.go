package mapping

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// Store is the rule set lookup surface the resolver needs. A nil result with
// a nil error means not found.
type Store interface {
	RuleSet(ctx context.Context, id string) (*types.MappingRuleSet, error)
	DefaultRuleSet(ctx context.Context, projectID string) (*types.MappingRuleSet, error)
	TemplateRuleSet(ctx context.Context, templateName string) (*types.MappingRuleSet, error)
}

// ProcessLookup fetches the process template name of a target project.
type ProcessLookup interface {
	GetProjectProcess(ctx context.Context, project string) (string, error)
}

// Resolver picks the rule set for a sync run with a fixed fallback order:
// explicit id, project default, process template set, built-in defaults.
// Resolution never fails; every lookup miss is logged and falls through.
type Resolver struct {
	store   Store
	process ProcessLookup
	logger  *zap.Logger
}

// NewResolver creates a new rule set resolver.
func NewResolver(store Store, process ProcessLookup, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, process: process, logger: logger}
}

// Resolve returns the rule set to use for one run. explicitID and
// templateName may be empty; project is the target project name.
func (r *Resolver) Resolve(ctx context.Context, explicitID, templateName, project string) *types.MappingRuleSet {
	if explicitID != "" {
		set, err := r.store.RuleSet(ctx, explicitID)
		if err != nil {
			r.logger.Warn("explicit rule set lookup failed, falling through",
				zap.String("rule_set_id", explicitID), zap.Error(err))
		} else if set != nil {
			r.logger.Info("using explicit rule set", zap.String("rule_set_id", set.ID))
			return set
		} else {
			r.logger.Warn("explicit rule set not found, falling through",
				zap.String("rule_set_id", explicitID))
		}
	}

	set, err := r.store.DefaultRuleSet(ctx, project)
	if err != nil {
		r.logger.Warn("project default rule set lookup failed",
			zap.String("project", project), zap.Error(err))
	} else if set != nil {
		r.logger.Info("using project default rule set",
			zap.String("rule_set_id", set.ID), zap.String("project", project))
		return set
	}

	if templateName == "" {
		templateName, err = r.process.GetProjectProcess(ctx, project)
		if err != nil {
			r.logger.Warn("process template lookup failed",
				zap.String("project", project), zap.Error(err))
			templateName = ""
		}
	}
	if templateName != "" {
		set, err = r.store.TemplateRuleSet(ctx, templateName)
		if err != nil {
			r.logger.Warn("template rule set lookup failed",
				zap.String("template", templateName), zap.Error(err))
		} else if set != nil {
			r.logger.Info("using template rule set",
				zap.String("rule_set_id", set.ID), zap.String("template", templateName))
			return set
		}
	}

	r.logger.Info("using built-in default rule set", zap.String("project", project))
	return BuiltinRuleSet()
}
