// Package main provides the FlowForge background monitor: SLA sweeps,
// schedule triggers and the form submission consumer.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/cmd"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/decision"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/log"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/notify"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/sla"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/tasks"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/triggers/queue"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/triggers/schedule"
)

const defaultSweepInterval = time.Minute

func main() {
	command := &cli.Command{
		Name:                  "flowforge-monitor",
		Usage:                 "Run SLA sweeps and start triggered instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the form submission queue; empty disables the consumer",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often the SLA sweep runs",
				Value:   defaultSweepInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("monitor")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing FlowForge monitor")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowforge-monitor", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	registry := cmd.NewRegistry(logger)
	notifier := notify.NewLogNotifier(logger)
	manager := tasks.NewManager(persistence.TaskRepository(), eventBus, logger)

	eng := engine.New(engine.Config{
		Instances:   persistence.InstanceRepository(),
		Definitions: persistence.DefinitionRepository(),
		Tasks:       manager,
		Invoker:     registry,
		Notifier:    notifier,
		Decisions:   decision.NewRouter(persistence.DecisionTableRepository(), logger),
		Evaluator:   expression.New(),
		Publisher:   eventBus,
		Logger:      logger,
	})
	manager.SetCompleter(eng)

	monitor := sla.NewMonitor(
		persistence.InstanceRepository(),
		persistence.TaskRepository(),
		persistence.DefinitionRepository(),
		notifier,
		eventBus,
		logger,
	)

	stopSweep, err := monitor.Schedule(ctx, command.Duration("sweep-interval"))
	if err != nil {
		return err
	}
	defer stopSweep()

	scheduler := schedule.NewScheduler(persistence.DefinitionRepository(), eng, logger)
	if err := scheduler.Reload(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if redisURL := command.String("redis-url"); redisURL != "" {
		options, err := redis.ParseURL(redisURL)
		if err != nil {
			return err
		}

		consumer := queue.NewConsumer(redis.NewClient(options), eng, logger)

		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "Form submission consumer stopped", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "FlowForge monitor running")
	<-ctx.Done()
	logger.Info("Shutting down")

	return nil
}
