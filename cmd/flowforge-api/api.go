// Package main provides the FlowForge API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/decision"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/definition"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/notify"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/registry"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/tasks"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: store,
		registry:    reg,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	evaluator := expression.New()

	definitions := definition.NewStore(
		a.persistence.DefinitionRepository(), evaluator, a.registry, a.eventBus, a.logger)
	router := decision.NewRouter(a.persistence.DecisionTableRepository(), a.logger)
	manager := tasks.NewManager(a.persistence.TaskRepository(), a.eventBus, a.logger)

	eng := engine.New(engine.Config{
		Instances:   a.persistence.InstanceRepository(),
		Definitions: a.persistence.DefinitionRepository(),
		Tasks:       manager,
		Invoker:     a.registry,
		Notifier:    notify.NewLogNotifier(a.logger),
		Decisions:   router,
		Evaluator:   evaluator,
		Publisher:   a.eventBus,
		Logger:      a.logger,
	})
	manager.SetCompleter(eng)

	handlers := web.NewAPIHandlers(definitions, eng, manager, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowForge API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Patch("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/publish", handlers.PublishDefinition)
	d.Post("/:id/archive", handlers.ArchiveDefinition)
	d.Get("/groups/:groupId", handlers.GetGroupDefinition)
	d.Post("/groups/:groupId/unpublish", handlers.UnpublishDefinition)

	d.Post("/:id/nodes", handlers.AddNode)
	d.Patch("/:id/nodes/:nodeId", handlers.UpdateNode)
	d.Delete("/:id/nodes/:nodeId", handlers.DeleteNode)
	d.Post("/:id/edges", handlers.AddEdge)
	d.Delete("/:id/edges/:edgeId", handlers.DeleteEdge)
	d.Post("/:id/triggers", handlers.AddTrigger)
	d.Delete("/:id/triggers/:triggerId", handlers.DeleteTrigger)

	i := app.Group("/instances")
	i.Post("/", handlers.StartInstance)
	i.Get("/", handlers.ListInstances)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/pause", handlers.PauseInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)

	t := app.Group("/tasks")
	t.Get("/", handlers.ListTasks)
	t.Get("/:id", handlers.GetTask)
	t.Post("/:id/claim", handlers.ClaimTask)
	t.Post("/:id/release", handlers.ReleaseTask)
	t.Post("/:id/complete", handlers.CompleteTask)
	t.Post("/:id/delegate", handlers.DelegateTask)
	t.Post("/:id/comments", handlers.CommentTask)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
