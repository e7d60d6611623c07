package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/internal/mapping"
	"github.com/cloudmodeler/ardsync/internal/store"
	"github.com/cloudmodeler/ardsync/internal/sync"
	"github.com/cloudmodeler/ardsync/pkg/types"
)

// TargetClient is the Azure DevOps surface the handlers need: everything the
// orchestrator consumes plus connection testing.
type TargetClient interface {
	sync.WorkItemClient
	TestConnection(ctx context.Context) error
}

// SourceClient is the Ardoq surface the handlers need.
type SourceClient interface {
	FetchHierarchy(ctx context.Context, workspaceID string) ([]*types.HierarchyNode, error)
	TestConnection(ctx context.Context) error
}

// Handler handles REST API requests.
type Handler struct {
	store     *store.Store
	newTarget func(cfg *types.PlatformConfig) TargetClient
	newSource func(cfg *types.PlatformConfig) SourceClient
	logger    *zap.Logger
}

// NewHandler creates a new REST handler. The factories build per-request
// platform clients from a stored configuration.
func NewHandler(st *store.Store, newTarget func(cfg *types.PlatformConfig) TargetClient, newSource func(cfg *types.PlatformConfig) SourceClient, logger *zap.Logger) *Handler {
	return &Handler{store: st, newTarget: newTarget, newSource: newSource, logger: logger}
}

// RegisterRoutes registers REST API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/projects/{project}/sync", h.StreamSync)
	r.Get("/hierarchy", h.FetchHierarchy)

	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)

	r.Post("/rulesets", h.CreateRuleSet)
	r.Get("/rulesets", h.ListRuleSets)
	r.Get("/rulesets/{id}", h.GetRuleSet)
	r.Delete("/rulesets/{id}", h.DeleteRuleSet)
	r.Post("/rulesets/{id}/default", h.SetDefaultRuleSet)

	r.Post("/configurations", h.CreateConfig)
	r.Get("/configurations", h.ListConfigs)
	r.Post("/configurations/{id}/activate", h.ActivateConfig)
	r.Delete("/configurations/{id}", h.DeleteConfig)
	r.Post("/configurations/{id}/test", h.TestConfig)
}

// SyncRequestBody is the POST body of a sync request.
type SyncRequestBody struct {
	Hierarchy        []*types.HierarchyNode `json:"hierarchy"`
	MappingRuleSetID string                 `json:"mappingRuleSetId,omitempty"`
}

// StreamSync handles POST /projects/{project}/sync. Validation failures are
// plain HTTP errors; once the event stream starts, every outcome is an
// event.
func (h *Handler) StreamSync(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	var body SyncRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body.Hierarchy) == 0 {
		http.Error(w, "hierarchy is required and must not be empty", http.StatusBadRequest)
		return
	}

	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))

	targetCfg, err := h.resolveConfig(r.Context(), types.PlatformAzureDevOps, r.URL.Query().Get("targetConfigId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sourceCfg, err := h.resolveConfig(r.Context(), types.PlatformArdoq, r.URL.Query().Get("sourceConfigId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client := h.newTarget(targetCfg)
	resolver := mapping.NewResolver(h.store, client, h.logger)
	transformer := mapping.NewTransformer(h.logger)
	history := sync.NewRecorder(h.store, h.logger)
	orchestrator := sync.NewOrchestrator(client, resolver, transformer, history, h.logger)

	emitter, err := sync.NewSSEEmitter(w, h.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	orchestrator.Run(r.Context(), &sync.Request{
		Project:          project,
		SourceConfigID:   sourceCfg.ID,
		TargetConfigID:   targetCfg.ID,
		Overwrite:        overwrite,
		MappingRuleSetID: body.MappingRuleSetID,
		Hierarchy:        body.Hierarchy,
	}, emitter)
}

// FetchHierarchy handles GET /hierarchy?workspaceId=&sourceConfigId=. It
// pulls the component tree from Ardoq for callers that do not hold one.
func (h *Handler) FetchHierarchy(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.resolveConfig(r.Context(), types.PlatformArdoq, r.URL.Query().Get("sourceConfigId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		workspaceID = cfg.WorkspaceID
	}
	if workspaceID == "" {
		http.Error(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	roots, err := h.newSource(cfg).FetchHierarchy(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error("failed to fetch hierarchy", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"hierarchy": roots})
}

func (h *Handler) resolveConfig(ctx context.Context, platform types.Platform, id string) (*types.PlatformConfig, error) {
	if id != "" {
		cfg, err := h.store.Config(ctx, id)
		if err != nil {
			return nil, err
		}
		if cfg == nil || cfg.Platform != platform {
			return nil, &configError{platform: platform, id: id}
		}
		return cfg, nil
	}
	cfg, err := h.store.ActiveConfig(ctx, platform)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &configError{platform: platform}
	}
	return cfg, nil
}

type configError struct {
	platform types.Platform
	id       string
}

func (e *configError) Error() string {
	if e.id != "" {
		return "no " + string(e.platform) + " configuration with id " + e.id
	}
	return "no active " + string(e.platform) + " configuration"
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /runs/{id}, returning the run and its item rows.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	items, err := h.store.ListRunItems(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"run": run, "items": items})
}

// CreateRuleSet handles POST /rulesets.
func (h *Handler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var set types.MappingRuleSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if set.Name == "" || len(set.Rules) == 0 {
		http.Error(w, "name and rules are required", http.StatusBadRequest)
		return
	}
	created, err := h.store.CreateRuleSet(r.Context(), &set)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// ListRuleSets handles GET /rulesets.
func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListRuleSets(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ruleSets": sets})
}

// GetRuleSet handles GET /rulesets/{id}.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	set, err := h.store.RuleSet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if set == nil {
		http.Error(w, "rule set not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, set)
}

// DeleteRuleSet handles DELETE /rulesets/{id}.
func (h *Handler) DeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRuleSet(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SetDefaultRuleSet handles POST /rulesets/{id}/default.
func (h *Handler) SetDefaultRuleSet(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SetDefaultRuleSet(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CreateConfigRequest is the POST body for a platform configuration.
type CreateConfigRequest struct {
	Platform     types.Platform `json:"platform"`
	Name         string         `json:"name"`
	BaseURL      string         `json:"baseUrl"`
	Token        string         `json:"token"`
	Organization string         `json:"organization,omitempty"`
	WorkspaceID  string         `json:"workspaceId,omitempty"`
}

// CreateConfig handles POST /configurations.
func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Platform != types.PlatformArdoq && req.Platform != types.PlatformAzureDevOps {
		http.Error(w, "platform must be ardoq or azuredevops", http.StatusBadRequest)
		return
	}
	if req.BaseURL == "" || req.Token == "" {
		http.Error(w, "baseUrl and token are required", http.StatusBadRequest)
		return
	}
	created, err := h.store.CreateConfig(r.Context(), &types.PlatformConfig{
		Platform:     req.Platform,
		Name:         req.Name,
		BaseURL:      req.BaseURL,
		Token:        req.Token,
		Organization: req.Organization,
		WorkspaceID:  req.WorkspaceID,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// ListConfigs handles GET /configurations?platform=.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	platform := types.Platform(r.URL.Query().Get("platform"))
	if platform != types.PlatformArdoq && platform != types.PlatformAzureDevOps {
		http.Error(w, "platform query parameter must be ardoq or azuredevops", http.StatusBadRequest)
		return
	}
	configs, err := h.store.ListConfigs(r.Context(), platform)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"configurations": configs})
}

// ActivateConfig handles POST /configurations/{id}/activate.
func (h *Handler) ActivateConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ActivateConfig(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteConfig handles DELETE /configurations/{id}.
func (h *Handler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConfig(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// TestConfig handles POST /configurations/{id}/test.
func (h *Handler) TestConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Config(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cfg == nil {
		http.Error(w, "configuration not found", http.StatusNotFound)
		return
	}

	switch cfg.Platform {
	case types.PlatformArdoq:
		err = h.newSource(cfg).TestConnection(r.Context())
	case types.PlatformAzureDevOps:
		err = h.newTarget(cfg).TestConnection(r.Context())
	}
	if err != nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}
