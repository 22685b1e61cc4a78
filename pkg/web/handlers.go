// Package web provides the HTTP handlers for definitions, instances and
// tasks.
package web

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/definition"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/tasks"
)

type APIHandlers struct {
	definitions *definition.Store
	engine      *engine.Engine
	tasks       *tasks.Manager
	store       persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *definition.Store,
	eng *engine.Engine,
	taskManager *tasks.Manager,
	store persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		engine:      eng,
		tasks:       taskManager,
		store:       store,
		validator:   validate,
	}
}

// --- Definitions ---

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Create(c.Context(), definition.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	opts := persistence.ListDefinitionsOptions{GroupID: c.Query("group_id")}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.DefinitionStatus(statusStr)
		opts.Status = &status
	}

	definitions, err := h.definitions.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"definitions": definitions})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.definitions.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

// GetGroupDefinition resolves a group to its active version, or to an exact
// version when the query parameter is present.
func (h *APIHandlers) GetGroupDefinition(c fiber.Ctx) error {
	var version *int

	if versionStr := c.Query("version"); versionStr != "" {
		parsed, err := strconv.Atoi(versionStr)
		if err != nil {
			return badRequest(c, "Invalid version: "+versionStr)
		}

		version = &parsed
	}

	def, err := h.definitions.Get(c.Context(), c.Params("groupId"), version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	var req UpdateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.Update(c.Context(), c.Params("id"), definition.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Variables:   req.Variables,
		SLA:         req.SLA,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	if err := h.definitions.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	published, err := h.definitions.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) UnpublishDefinition(c fiber.Ctx) error {
	archived, err := h.definitions.Unpublish(c.Context(), c.Params("groupId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) ArchiveDefinition(c fiber.Ctx) error {
	archived, err := h.definitions.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

// --- Graph authoring ---

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	node, err := h.bindNode(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.definitions.AddNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	node, err := h.bindNode(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	node.ID = c.Params("nodeId")

	def, err := h.definitions.UpdateNode(c.Context(), c.Params("id"), node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	def, err := h.definitions.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) bindNode(c fiber.Ctx) (*models.Node, error) {
	var req NodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, err
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &models.Node{
		ID:        req.ID,
		Type:      models.NodeType(req.Type),
		Name:      req.Name,
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	}, nil
}

func (h *APIHandlers) AddEdge(c fiber.Ctx) error {
	var req EdgeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.definitions.AddEdge(c.Context(), c.Params("id"), &models.Edge{
		ID:        req.ID,
		Source:    req.Source,
		Target:    req.Target,
		Condition: req.Condition,
		Label:     req.Label,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) DeleteEdge(c fiber.Ctx) error {
	def, err := h.definitions.DeleteEdge(c.Context(), c.Params("id"), c.Params("edgeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) AddTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.definitions.AddTrigger(c.Context(), c.Params("id"), &models.Trigger{
		ID:     req.ID,
		Type:   models.TriggerType(req.Type),
		Name:   req.Name,
		Config: req.Config,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	def, err := h.definitions.DeleteTrigger(c.Context(), c.Params("id"), c.Params("triggerId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

// --- Instances ---

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.Start(c.Context(), engine.StartParams{
		GroupID:     req.GroupID,
		Version:     req.Version,
		StartedBy:   req.StartedBy,
		TriggerData: req.TriggerData,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	ctx := c.Context()
	repo := h.store.InstanceRepository()

	var (
		instances []*models.Instance
		err       error
	)

	switch {
	case c.Query("group_id") != "":
		instances, err = repo.ListByDefinition(ctx, c.Query("group_id"))
	case c.Query("status") != "":
		instances, err = repo.ListByStatus(ctx, models.InstanceStatus(c.Query("status")))
	default:
		return badRequest(c, "group_id or status query parameter is required")
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.engine.Cancel(c.Context(), c.Params("id"), req.Actor); err != nil {
		return handleServiceError(c, err)
	}

	return h.GetInstance(c)
}

func (h *APIHandlers) PauseInstance(c fiber.Ctx) error {
	if err := h.engine.Pause(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return h.GetInstance(c)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	var req ResumeInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.Resume(c.Context(), c.Params("id"), req.Input); err != nil {
		return handleServiceError(c, err)
	}

	return h.GetInstance(c)
}

// --- Tasks ---

func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	opts := persistence.ListTasksOptions{
		InstanceID: c.Query("instance_id"),
		Assignee:   c.Query("assignee"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.TaskStatus(statusStr)
		opts.Status = &status
	}

	list, err := h.tasks.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": list})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.tasks.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ClaimTask(c fiber.Ctx) error {
	var req ClaimTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.Claim(c.Context(), c.Params("id"), req.User)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ReleaseTask(c fiber.Ctx) error {
	var req ReleaseTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.Release(c.Context(), c.Params("id"), req.User)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	var req CompleteTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.Complete(c.Context(), c.Params("id"), tasks.CompleteParams{
		CompletedBy: req.CompletedBy,
		Outcome:     req.Outcome,
		Data:        req.Data,
		Comment:     req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) DelegateTask(c fiber.Ctx) error {
	var req DelegateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.Delegate(c.Context(), c.Params("id"), req.DelegatedBy, req.NewAssignee)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CommentTask(c fiber.Ctx) error {
	var req CommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.tasks.AddComment(c.Context(), c.Params("id"), req.Author, req.Text)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

// --- Health ---

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
