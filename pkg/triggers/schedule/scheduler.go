// Package schedule starts instances from cron triggers declared on active
// definitions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// Starter is the slice of the engine the scheduler needs.
type Starter interface {
	Start(ctx context.Context, params engine.StartParams) (*models.Instance, error)
}

// Scheduler registers one cron entry per schedule trigger of every active
// definition. Reload rebuilds the entry set from the store, so publishing or
// unpublishing takes effect on the next reload.
type Scheduler struct {
	definitions persistence.DefinitionRepository
	starter     Starter
	logger      *slog.Logger
	runner      *cron.Cron
}

func NewScheduler(definitions persistence.DefinitionRepository, starter Starter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		definitions: definitions,
		starter:     starter,
		logger:      logger.With("module", "scheduler"),
	}
}

// Reload replaces the running schedule with the triggers currently active in
// the store.
func (s *Scheduler) Reload(ctx context.Context) error {
	active := models.DefinitionStatusActive

	definitions, err := s.definitions.List(ctx, persistence.ListDefinitionsOptions{Status: &active})
	if err != nil {
		return err
	}

	runner := cron.New()
	registered := 0

	for _, def := range definitions {
		for _, trigger := range def.Triggers {
			if trigger.Type != models.TriggerTypeSchedule {
				continue
			}

			spec, ok := trigger.Config["cron"].(string)
			if !ok || spec == "" {
				s.logger.WarnContext(ctx, "Schedule trigger without cron expression",
					"group_id", def.GroupID, "trigger_id", trigger.ID)

				continue
			}

			groupID := def.GroupID
			triggerID := trigger.ID

			_, err := runner.AddFunc(spec, func() {
				s.fire(ctx, groupID, triggerID)
			})
			if err != nil {
				return fmt.Errorf("trigger %s of group %s: invalid cron %q: %w", triggerID, groupID, spec, err)
			}

			registered++
		}
	}

	if s.runner != nil {
		s.runner.Stop()
	}

	s.runner = runner
	s.runner.Start()

	s.logger.InfoContext(ctx, "Schedule triggers loaded", "count", registered)

	return nil
}

func (s *Scheduler) fire(ctx context.Context, groupID, triggerID string) {
	instance, err := s.starter.Start(ctx, engine.StartParams{
		GroupID:     groupID,
		StartedBy:   "scheduler",
		TriggerData: map[string]any{"trigger_id": triggerID},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled start failed",
			"group_id", groupID, "trigger_id", triggerID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled instance started",
		"group_id", groupID, "instance_id", instance.ID)
}

// Stop halts the running schedule.
func (s *Scheduler) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
}
