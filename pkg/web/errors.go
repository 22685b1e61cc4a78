package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/definition"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/tasks"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps domain errors onto RFC 7807 responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case definition.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, definition.ErrNotDraft):
		return conflict(c, err.Error())

	case errors.Is(err, definition.ErrNodeNotFound):
		return notFound(c, "node not found")

	case errors.Is(err, definition.ErrEdgeNotFound):
		return notFound(c, "edge not found")

	case errors.Is(err, definition.ErrTriggerNotFound):
		return notFound(c, "trigger not found")

	case tasks.IsInvalidState(err):
		return conflict(c, err.Error())

	case tasks.IsNotClaimant(err):
		return forbidden(c, err.Error())

	case engine.IsInstanceState(err):
		return conflict(c, err.Error())

	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "definition not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "instance not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")

	case persistence.IsDecisionTableNotFound(err):
		return notFound(c, "decision table not found")

	default:
		return internalError(c, err)
	}
}
