package api

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/freewebtopdf/filesentry/internal/compiler"
	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/intent"
	"github.com/freewebtopdf/filesentry/internal/validator"
)

// MaxMatchLimit caps GET /v1/matches
const MaxMatchLimit = 10000

// RuleStore is the rule repository plus the durability barrier the API waits on
type RuleStore interface {
	domain.RuleRepository
	Flush(ctx context.Context) error
}

// RuleValidator runs the static and intent-consistency checks
type RuleValidator interface {
	ValidateCompiledRule(rule domain.CompiledRule) validator.ValidationResult
	ValidateWithIntent(rule domain.CompiledRule, condition string) validator.ValidationResult
}

// EventDispatcher evaluates an event and notifies its matches
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.FileEvent) ([]domain.RuleMatch, error)
}

// Handlers contains all HTTP handlers for the filesentry API
type Handlers struct {
	repository    RuleStore
	engine        domain.RuleEvaluator
	compiler      domain.RuleCompiler
	validator     RuleValidator
	dispatcher    EventDispatcher
	healthChecker domain.HealthChecker
	payloads      *govalidator.Validate
}

// NewHandlers creates a new instance of API handlers
func NewHandlers(repository RuleStore, engine domain.RuleEvaluator, compiler domain.RuleCompiler, validator RuleValidator, dispatcher EventDispatcher, healthChecker domain.HealthChecker) *Handlers {
	payloads := govalidator.New()
	payloads.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handlers{
		repository:    repository,
		engine:        engine,
		compiler:      compiler,
		validator:     validator,
		dispatcher:    dispatcher,
		healthChecker: healthChecker,
		payloads:      payloads,
	}
}

// CreateRuleRequest is the payload for creating a rule from natural language
// @Description Natural-language rule creation request
type CreateRuleRequest struct {
	Name        string `json:"name" validate:"max=200" example:"TypeScript churn"`
	Description string `json:"description" validate:"max=2000"`
	Condition   string `json:"condition" validate:"required,max=2000" example:"Alert when 3 or more .ts files in src/ change within 1 minute"`
}

// ManualRuleRequest is the payload for creating a rule without the model
// @Description Structured rule creation request
type ManualRuleRequest struct {
	Name          string             `json:"name" validate:"required,max=200" example:"Deleted migrations"`
	Description   string             `json:"description" validate:"max=2000"`
	Type          domain.RuleType    `json:"type" validate:"required,oneof=pattern threshold" example:"pattern"`
	Match         domain.MatchFilter `json:"match"`
	WindowSeconds *int               `json:"windowSeconds,omitempty" example:"60"`
	Count         *int               `json:"count,omitempty" example:"3"`
}

// CompileRequest is the payload for a compile preview
// @Description Compile preview request
type CompileRequest struct {
	Condition string `json:"condition" validate:"required,max=2000" example:"Alert when any .env file is deleted"`
}

// CompilePreview is the outcome of compiling without storing
// @Description Compile preview result
type CompilePreview struct {
	Result     *domain.CompileResult       `json:"result"`
	Intent     domain.RuleIntent           `json:"intent"`
	Validation *validator.ValidationResult `json:"validation,omitempty"`
}

// UpdateRuleRequest holds the only fields that can change on a stored rule
// @Description Rule patch request
type UpdateRuleRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200" example:"Renamed rule"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Enabled     *bool   `json:"enabled,omitempty" example:"false"`
}

// EventRequest is a synthetic file event
// @Description Synthetic file event
type EventRequest struct {
	Type      domain.EventType `json:"type" validate:"required,oneof=created modified deleted" example:"created"`
	Path      string           `json:"path" validate:"required,max=4096" example:"src/app.ts"`
	Timestamp int64            `json:"timestamp,omitempty" validate:"min=0" example:"1700000000000"`
}

// ErrorResponse represents the standard error response format
// @Description Standard error response format
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Invalid input provided"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
// @Description Standard success response format
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// RuleListResponse represents the response for listing rules
// @Description Response containing list of rules
type RuleListResponse struct {
	Rules []domain.Rule `json:"rules"`
	Count int           `json:"count" example:"5"`
}

// MatchListResponse represents the response for recent matches
// @Description Recent rule matches, newest first
type MatchListResponse struct {
	Matches []domain.RuleMatch `json:"matches"`
	Count   int                `json:"count" example:"2"`
}

// ExportDocument is the exported rule set
// @Description Exported rules
type ExportDocument struct {
	Version    int           `json:"version" yaml:"version" example:"1"`
	ExportedAt time.Time     `json:"exportedAt" yaml:"exportedAt"`
	Rules      []domain.Rule `json:"rules" yaml:"rules"`
}

// CreateRuleHandler handles POST /v1/rules requests
// @Summary      Create a rule from natural language
// @Description  Compiles the condition with the model, checks it against the condition's own wording and stores it
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body CreateRuleRequest true "Rule condition"
// @Success      201 {object} SuccessResponse{data=object{rule=domain.Rule}} "Rule created"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      409 {object} ErrorResponse "Duplicate of an existing rule"
// @Failure      422 {object} ErrorResponse "Compilation rejected or validation failed"
// @Failure      503 {object} ErrorResponse "Model backend unavailable"
// @Router       /v1/rules [post]
func (h *Handlers) CreateRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req CreateRuleRequest
	if appErr := h.parseBody(ctx, c, &req, "create_rule_parsing"); appErr != nil {
		return h.sendError(c, appErr)
	}
	req.Condition = strings.TrimSpace(req.Condition)

	result := h.compiler.Compile(ctx, req.Condition)
	if result.Reject != nil {
		return h.sendError(c, rejectError(result.Reject).WithContext(ctx, "create_rule_compile"))
	}

	compiled := *result.Rule
	if appErr := h.validator.ValidateCompiledRule(compiled).AppError("Compiled rule failed validation"); appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "create_rule_validation"))
	}
	if appErr := h.validator.ValidateWithIntent(compiled, req.Condition).AppError("Compiled rule does not match the condition"); appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "create_rule_intent"))
	}

	return h.storeRule(ctx, c, domain.RuleInput{
		Name:        req.Name,
		Description: req.Description,
		Condition:   req.Condition,
		Compiled:    compiled,
		Source:      domain.SourceLLM,
	})
}

// CreateManualRuleHandler handles POST /v1/rules/manual requests
// @Summary      Create a structured rule
// @Description  Stores a rule given directly as a match filter, bypassing the model
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body ManualRuleRequest true "Structured rule"
// @Success      201 {object} SuccessResponse{data=object{rule=domain.Rule}} "Rule created"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      409 {object} ErrorResponse "Duplicate of an existing rule"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/rules/manual [post]
func (h *Handlers) CreateManualRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req ManualRuleRequest
	if appErr := h.parseBody(ctx, c, &req, "manual_rule_parsing"); appErr != nil {
		return h.sendError(c, appErr)
	}

	compiled := domain.CompiledRule{
		Type:  req.Type,
		Match: req.Match,
	}
	if req.Type == domain.RuleTypeThreshold {
		compiled.WindowSeconds = req.WindowSeconds
		compiled.Count = req.Count
	}

	if appErr := h.validator.ValidateCompiledRule(compiled).AppError("Rule failed validation"); appErr != nil {
		return h.sendError(c, appErr.WithContext(ctx, "manual_rule_validation"))
	}

	return h.storeRule(ctx, c, domain.RuleInput{
		Name:        req.Name,
		Description: req.Description,
		Compiled:    compiled,
		Source:      domain.SourceManual,
	})
}

// storeRule runs the duplicate check, adds the rule and waits for it to reach disk
func (h *Handlers) storeRule(ctx context.Context, c *fiber.Ctx, input domain.RuleInput) error {
	existing, err := h.repository.FindDuplicateRule(ctx, input.Condition, input.Compiled)
	if err != nil {
		return h.sendError(c, asAppError(err, "Failed to check for duplicate rules").WithContext(ctx, "create_rule_duplicate_check"))
	}
	if existing != nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrConflict,
			"An equivalent rule already exists",
			fiber.StatusConflict,
			map[string]any{"rule": existing},
		).WithContext(ctx, "create_rule_duplicate_check"))
	}

	rule, err := h.repository.AddRule(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Failed to add rule")
		return h.sendError(c, asAppError(err, "Failed to create rule").WithContext(ctx, "create_rule_store"))
	}

	if err := h.repository.Flush(ctx); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Str("request_id", requestID(c)).Msg("Rule stored in memory but not persisted")
		return h.sendError(c, asAppError(err, "Failed to persist rule").WithContext(ctx, "create_rule_persist"))
	}

	return c.Status(fiber.StatusCreated).JSON(SuccessResponse{
		Status: "success",
		Data:   fiber.Map{"rule": rule},
	})
}

// CompileRuleHandler handles POST /v1/rules/compile requests
// @Summary      Preview rule compilation
// @Description  Compiles a condition and reports the derived intent and validation outcome without storing anything
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body CompileRequest true "Condition to compile"
// @Success      200 {object} SuccessResponse{data=CompilePreview} "Compilation outcome, including rejects"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Router       /v1/rules/compile [post]
func (h *Handlers) CompileRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req CompileRequest
	if appErr := h.parseBody(ctx, c, &req, "compile_parsing"); appErr != nil {
		return h.sendError(c, appErr)
	}

	preview := CompilePreview{
		Result: h.compiler.Compile(ctx, req.Condition),
		Intent: intent.Extract(req.Condition),
	}
	if preview.Result.Rule != nil {
		validation := h.validator.ValidateCompiledRule(*preview.Result.Rule).
			Merge(h.validator.ValidateWithIntent(*preview.Result.Rule, req.Condition))
		preview.Validation = &validation
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Status: "success", Data: preview})
}

// ListRulesHandler handles GET /v1/rules requests
// @Summary      List all rules
// @Description  Retrieves every stored rule in evaluation order
// @Tags         Rules
// @Produce      json
// @Success      200 {object} SuccessResponse{data=RuleListResponse} "Successfully retrieved rules"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/rules [get]
func (h *Handlers) ListRulesHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	rules, err := h.repository.GetAllRules(ctx)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Failed to retrieve rules")
		return h.sendError(c, asAppError(err, "Failed to retrieve rules").WithContext(ctx, "list_rules_retrieval"))
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "success",
		Data:   RuleListResponse{Rules: rules, Count: len(rules)},
	})
}

// GetRuleHandler handles GET /v1/rules/:id requests
// @Summary      Get a rule
// @Tags         Rules
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Success      200 {object} SuccessResponse{data=object{rule=domain.Rule}} "Rule"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Router       /v1/rules/{id} [get]
func (h *Handlers) GetRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	rule, err := h.repository.GetRule(ctx, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return h.sendError(c, asAppError(err, "Failed to retrieve rule").WithContext(ctx, "get_rule"))
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Status: "success", Data: fiber.Map{"rule": rule}})
}

// UpdateRuleHandler handles PATCH /v1/rules/:id requests
// @Summary      Update a rule
// @Description  Renames, redescribes, enables or disables a rule. Matching semantics cannot be edited.
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Param        rule body UpdateRuleRequest true "Fields to update"
// @Success      200 {object} SuccessResponse{data=object{rule=domain.Rule}} "Successfully updated rule"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/rules/{id} [patch]
func (h *Handlers) UpdateRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)
	ruleID := strings.TrimSpace(c.Params("id"))

	var req UpdateRuleRequest
	if appErr := h.parseBody(ctx, c, &req, "update_rule_parsing"); appErr != nil {
		return h.sendError(c, appErr)
	}
	if req.Name == nil && req.Description == nil && req.Enabled == nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Nothing to update",
			fiber.StatusBadRequest,
			map[string]string{"allowed": "name, description, enabled"},
		).WithContext(ctx, "update_rule_parsing"))
	}

	rule, err := h.repository.UpdateRule(ctx, ruleID, domain.RulePatch{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
	})
	if err != nil {
		return h.sendError(c, asAppError(err, "Failed to update rule").WithContext(ctx, "update_rule_store"))
	}

	if !rule.Enabled {
		h.engine.ForgetRule(rule.ID)
	}

	if err := h.repository.Flush(ctx); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Msg("Rule update not persisted")
		return h.sendError(c, asAppError(err, "Failed to persist rule").WithContext(ctx, "update_rule_persist"))
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Status: "success", Data: fiber.Map{"rule": rule}})
}

// DeleteRuleHandler handles DELETE /v1/rules/:id requests
// @Summary      Delete a rule
// @Tags         Rules
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Success      200 {object} SuccessResponse{data=object{message=string,rule_id=string}} "Successfully deleted rule"
// @Failure      404 {object} ErrorResponse "Rule not found"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/rules/{id} [delete]
func (h *Handlers) DeleteRuleHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)
	ruleID := strings.TrimSpace(c.Params("id"))

	if err := h.repository.DeleteRule(ctx, ruleID); err != nil {
		return h.sendError(c, asAppError(err, "Failed to delete rule").WithContext(ctx, "delete_rule_store"))
	}
	h.engine.ForgetRule(ruleID)

	if err := h.repository.Flush(ctx); err != nil {
		log.Error().Err(err).Str("rule_id", ruleID).Msg("Rule deletion not persisted")
		return h.sendError(c, asAppError(err, "Failed to persist rule deletion").WithContext(ctx, "delete_rule_persist"))
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "success",
		Data: fiber.Map{
			"message": "Rule deleted successfully",
			"rule_id": ruleID,
		},
	})
}

// ExportRulesHandler handles GET /v1/rules/export requests
// @Summary      Export rules
// @Description  Downloads every stored rule as JSON or YAML
// @Tags         Rules
// @Produce      json
// @Produce      application/yaml
// @Param        format query string false "Export format" Enums(json, yaml)
// @Success      200 {object} ExportDocument "Exported rules"
// @Failure      400 {object} ErrorResponse "Unsupported format"
// @Router       /v1/rules/export [get]
func (h *Handlers) ExportRulesHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	format := strings.ToLower(c.Query("format", "json"))
	if format != "json" && format != "yaml" && format != "yml" {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"Unsupported export format",
			fiber.StatusBadRequest,
			map[string]string{"format": format, "supported": "json, yaml"},
		).WithContext(ctx, "export_rules"))
	}

	rules, err := h.repository.GetAllRules(ctx)
	if err != nil {
		return h.sendError(c, asAppError(err, "Failed to retrieve rules").WithContext(ctx, "export_rules"))
	}
	doc := ExportDocument{Version: 1, ExportedAt: time.Now().UTC(), Rules: rules}

	if format == "json" {
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="rules.json"`)
		return c.Status(fiber.StatusOK).JSON(doc)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return h.sendError(c, domain.NewAppErrorWithCause(domain.ErrInternal, "Failed to encode rules", fiber.StatusInternalServerError, err, nil))
	}
	c.Set(fiber.HeaderContentType, "application/yaml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="rules.yaml"`)
	return c.Status(fiber.StatusOK).Send(out)
}

// SubmitEventHandler handles POST /v1/events requests
// @Summary      Submit a synthetic file event
// @Description  Evaluates an event against the rules exactly as if the watcher had reported it
// @Tags         Events
// @Accept       json
// @Produce      json
// @Param        event body EventRequest true "File event"
// @Success      200 {object} SuccessResponse{data=MatchListResponse} "Matches fired by the event"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Router       /v1/events [post]
func (h *Handlers) SubmitEventHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req EventRequest
	if appErr := h.parseBody(ctx, c, &req, "submit_event_parsing"); appErr != nil {
		return h.sendError(c, appErr)
	}

	event := domain.FileEvent{
		Type:      req.Type,
		Path:      domain.NormalizePath(req.Path),
		Timestamp: req.Timestamp,
	}
	if event.Timestamp == 0 {
		event.Timestamp = domain.NowMillis()
	}

	matches, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		return h.sendError(c, asAppError(err, "Failed to evaluate event").WithContext(ctx, "submit_event"))
	}
	if matches == nil {
		matches = []domain.RuleMatch{}
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "success",
		Data:   MatchListResponse{Matches: matches, Count: len(matches)},
	})
}

// ListMatchesHandler handles GET /v1/matches requests
// @Summary      Recent matches
// @Description  Returns the most recent rule matches, newest first
// @Tags         Events
// @Produce      json
// @Param        limit query int false "Maximum number of matches" minimum(0) maximum(10000)
// @Success      200 {object} SuccessResponse{data=MatchListResponse} "Recent matches"
// @Failure      400 {object} ErrorResponse "Invalid limit"
// @Router       /v1/matches [get]
func (h *Handlers) ListMatchesHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	limit := c.QueryInt("limit", 0)
	if limit < 0 || limit > MaxMatchLimit {
		return h.sendError(c, domain.NewAppError(
			domain.ErrInvalidInput,
			"limit must be between 0 and 10000",
			fiber.StatusBadRequest,
			map[string]any{"limit": c.Query("limit")},
		).WithContext(ctx, "list_matches"))
	}

	matches := h.engine.GetRecentMatches(limit)
	if matches == nil {
		matches = []domain.RuleMatch{}
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "success",
		Data:   MatchListResponse{Matches: matches, Count: len(matches)},
	})
}

// StatsHandler handles GET /v1/stats requests
// @Summary      Engine and store statistics
// @Tags         System
// @Produce      json
// @Success      200 {object} SuccessResponse{data=object{engine=domain.EngineStats,storage=object}} "Statistics"
// @Router       /v1/stats [get]
func (h *Handlers) StatsHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Status: "success",
		Data: fiber.Map{
			"engine":  h.engine.GetStats(),
			"storage": h.repository.GetStats(ctx),
		},
	})
}

// HealthHandler handles GET /health requests
// @Summary      Health check
// @Description  Returns the health status of every component
// @Tags         System
// @Produce      json
// @Success      200 {object} domain.SystemHealth "Service is healthy or degraded"
// @Failure      503 {object} domain.SystemHealth "Service is unhealthy"
// @Router       /health [get]
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	ctx := requestContext(c)

	health := h.healthChecker.CheckHealth(ctx)

	// Degraded still serves: rules evaluate without the model
	status := fiber.StatusOK
	if health.Status == domain.HealthStatusUnhealthy {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":         health.Status,
		"timestamp":      health.Timestamp.Format(time.RFC3339),
		"components":     health.Components,
		"metrics":        health.Metrics,
		"uptime_seconds": health.Uptime.Seconds(),
	})
}

// parseBody decodes and validates a JSON payload
func (h *Handlers) parseBody(ctx context.Context, c *fiber.Ctx, out any, operation string) *domain.AppError {
	if err := c.BodyParser(out); err != nil {
		return domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			fiber.StatusBadRequest,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, operation)
	}

	if err := h.payloads.Struct(out); err != nil {
		var verrs govalidator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.NewAppErrorWithCause(domain.ErrInvalidInput, "Invalid payload", fiber.StatusBadRequest, err, nil).WithContext(ctx, operation)
		}
		result := validator.ValidationResult{Valid: true}
		for _, fe := range verrs {
			result.Valid = false
			result.Errors = append(result.Errors, validator.FieldError{
				Field:   fieldPath(fe),
				Message: payloadMessage(fe),
			})
		}
		return result.AppError("Request validation failed").WithContext(ctx, operation)
	}
	return nil
}

// fieldPath drops the request type from the namespace, giving e.g. "match.extensions"
func fieldPath(fe govalidator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func payloadMessage(fe govalidator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}

// rejectError maps a compile reject to its API error
func rejectError(reject *domain.CompileReject) *domain.AppError {
	if reject.Reason == compiler.ReasonUnavailable {
		return domain.NewAppError(
			domain.ErrLLMUnavailable,
			"Rule compiler is unavailable",
			fiber.StatusServiceUnavailable,
			reject,
		)
	}
	return domain.NewAppError(
		domain.ErrCompileRejected,
		"Condition could not be compiled into a rule",
		fiber.StatusUnprocessableEntity,
		reject,
	)
}

// asAppError keeps domain errors as they are and wraps anything else as internal
func asAppError(err error, message string) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return domain.NewAppErrorWithCause(domain.ErrInternal, message, fiber.StatusInternalServerError, err, nil)
}

// requestContext carries the request ID into domain errors
func requestContext(c *fiber.Ctx) context.Context {
	return domain.ContextWithRequestID(c.UserContext(), requestID(c))
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals("requestid").(string); ok {
		return rid
	}
	return ""
}

// sendError sends a standardized error response
func (h *Handlers) sendError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
