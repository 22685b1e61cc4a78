package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// advanceRun is the working state of one advance call. It mutates the loaded
// instance copy and buffers events; the caller persists once and publishes
// the buffer afterwards, so observers never see events for state that was
// not saved.
type advanceRun struct {
	engine     *Engine
	instance   *models.Instance
	definition *models.Definition
	pending    []eventbus.Event
}

// maxDispatchesPerAdvance bounds one advance pass. Publish validation does
// not reject cycles (a rework edge may legitimately point back through an
// approval, which suspends), so a cycle made only of side-effect nodes would
// otherwise never reach a fixed point.
const maxDispatchesPerAdvance = 1000

// loop dispatches until no activation is dispatchable. An empty active set
// on a still-running instance means every branch terminated.
func (r *advanceRun) loop(ctx context.Context) {
	dispatched := 0

	for !r.instance.IsTerminal() {
		active := r.nextDispatchable()
		if active == nil {
			break
		}

		dispatched++
		if dispatched > maxDispatchesPerAdvance {
			r.fail(ctx, active.NodeID, fmt.Errorf("advance exceeded %d dispatches without reaching a fixed point",
				maxDispatchesPerAdvance))

			return
		}

		r.dispatch(ctx, active)
	}

	if len(r.instance.ActiveNodes) == 0 && r.instance.Status == models.InstanceStatusRunning {
		now := time.Now().UTC()
		r.instance.Status = models.InstanceStatusCompleted
		r.instance.CompletedAt = &now
		r.instance.DueAt = nil

		r.emit(events.InstanceCompleted{
			BaseEvent: r.engine.baseEvent(events.InstanceCompletedEvent, r.instance.ID),
			Duration:  now.Sub(r.instance.StartedAt),
		})
	}
}

func (r *advanceRun) nextDispatchable() *models.ActiveNode {
	for _, active := range r.instance.ActiveNodes {
		if active.State == models.ActivationDispatchable {
			return active
		}
	}

	return nil
}

func (r *advanceRun) dispatch(ctx context.Context, active *models.ActiveNode) {
	node := r.definition.NodeByID(active.NodeID)
	if node == nil {
		r.fail(ctx, active.NodeID, fmt.Errorf("node %s not found in definition version %d",
			active.NodeID, r.definition.Version))

		return
	}

	switch node.Type {
	case models.NodeTypeStart:
		r.route(ctx, active, node, false)
	case models.NodeTypeEnd:
		r.remove(active.ActivationID)
	case models.NodeTypeAction:
		r.dispatchAction(ctx, active, node)
	case models.NodeTypeEmail:
		r.dispatchEmail(ctx, active, node)
	case models.NodeTypeDecision:
		r.dispatchDecision(ctx, active, node)
	case models.NodeTypeApproval:
		r.dispatchApproval(ctx, active, node)
	default:
		r.fail(ctx, node.ID, fmt.Errorf("unsupported node type %s", node.Type))
	}
}

func (r *advanceRun) dispatchAction(ctx context.Context, active *models.ActiveNode, node *models.Node) {
	cfg, err := node.ActionConfig()
	if err != nil {
		r.fail(ctx, node.ID, err)

		return
	}

	inputs := make(map[string]any, len(cfg.Inputs))

	for name, binding := range cfg.Inputs {
		value, err := r.engine.evaluator.Evaluate(binding, r.evalContext())
		if err != nil {
			r.fail(ctx, node.ID, fmt.Errorf("binding input %s: %w", name, err))

			return
		}

		inputs[name] = value
	}

	outputs, cerr := r.engine.invokeWithRetry(ctx, node, cfg, inputs)
	if cerr != nil {
		r.emit(events.NodeFailed{
			BaseEvent: r.engine.baseEvent(events.NodeFailedEvent, r.instance.ID),
			NodeID:    node.ID,
			Error:     cerr.Error(),
		})

		if cfg.ErrorHandling == models.ErrorHandlingContinue {
			r.engine.logger.WarnContext(ctx, "Connector failed, continuing per node policy",
				"instance_id", r.instance.ID, "node_id", node.ID, "error", cerr)
			r.route(ctx, active, node, false)

			return
		}

		r.fail(ctx, node.ID, cerr)

		return
	}

	if len(outputs) > 0 {
		if r.instance.Variables == nil {
			r.instance.Variables = make(map[string]any)
		}

		for name, value := range outputs {
			r.instance.Variables[name] = value
		}
	}

	r.emit(events.NodeDispatched{
		BaseEvent: r.engine.baseEvent(events.NodeDispatchedEvent, r.instance.ID),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Outputs:   outputs,
	})

	r.route(ctx, active, node, false)
}

func (r *advanceRun) dispatchEmail(ctx context.Context, active *models.ActiveNode, node *models.Node) {
	cfg, err := node.EmailConfig()
	if err != nil {
		r.fail(ctx, node.ID, err)

		return
	}

	if err := r.sendEmail(ctx, node, cfg); err != nil {
		if cfg.Fatal {
			r.fail(ctx, node.ID, err)

			return
		}

		r.engine.logger.WarnContext(ctx, "Email node failed, continuing",
			"instance_id", r.instance.ID, "node_id", node.ID, "error", err)
	}

	r.emit(events.NodeDispatched{
		BaseEvent: r.engine.baseEvent(events.NodeDispatchedEvent, r.instance.ID),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})

	r.route(ctx, active, node, false)
}

func (r *advanceRun) sendEmail(ctx context.Context, node *models.Node, cfg *models.EmailConfig) error {
	recipient, err := r.engine.evaluator.EvaluateString(cfg.Recipient, r.evalContext())
	if err != nil {
		return fmt.Errorf("resolving recipient: %w", err)
	}

	if r.engine.notifier == nil {
		return fmt.Errorf("no notifier configured for email node %s", node.ID)
	}

	return r.engine.notifier.Send(ctx, cfg.Template, recipient, r.instance.Variables)
}

func (r *advanceRun) dispatchDecision(ctx context.Context, active *models.ActiveNode, node *models.Node) {
	cfg, err := node.DecisionConfig()
	if err != nil {
		r.fail(ctx, node.ID, err)

		return
	}

	if cfg.Table != "" {
		if r.engine.decisions == nil {
			r.fail(ctx, node.ID, fmt.Errorf("node %s references table %s but no decision service is configured",
				node.ID, cfg.Table))

			return
		}

		inputs := make(map[string]any, len(cfg.TableInputs))

		for name, binding := range cfg.TableInputs {
			value, err := r.engine.evaluator.Evaluate(binding, r.evalContext())
			if err != nil {
				r.fail(ctx, node.ID, fmt.Errorf("binding table input %s: %w", name, err))

				return
			}

			inputs[name] = value
		}

		outcome, ok, err := r.engine.decisions.Resolve(ctx, cfg.Table, inputs)
		if err != nil {
			r.fail(ctx, node.ID, err)

			return
		}

		if !ok {
			r.fail(ctx, node.ID, &RoutingError{NodeID: node.ID})

			return
		}

		r.instance.Outcome = outcome
	}

	if !r.route(ctx, active, node, true) {
		r.fail(ctx, node.ID, &RoutingError{NodeID: node.ID})

		return
	}

	r.emit(events.NodeDispatched{
		BaseEvent: r.engine.baseEvent(events.NodeDispatchedEvent, r.instance.ID),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})
}

func (r *advanceRun) dispatchApproval(ctx context.Context, active *models.ActiveNode, node *models.Node) {
	cfg, err := node.ApprovalConfig()
	if err != nil {
		r.fail(ctx, node.ID, err)

		return
	}

	// A dispatchable approval activation that already carries a task was
	// resolved by CompleteActivation. Until the configured number of
	// approvals has been collected, each completion opens the next approval
	// round; after that the activation routes onward on the last outcome.
	if active.TaskID != "" {
		if active.ApprovalsLeft > 0 {
			r.createApprovalTask(ctx, active, node, cfg)

			return
		}

		r.emit(events.NodeDispatched{
			BaseEvent: r.engine.baseEvent(events.NodeDispatchedEvent, r.instance.ID),
			NodeID:    node.ID,
			NodeType:  node.Type,
		})

		r.route(ctx, active, node, false)

		return
	}

	active.ApprovalsLeft = cfg.Approvals
	r.createApprovalTask(ctx, active, node, cfg)
}

func (r *advanceRun) createApprovalTask(ctx context.Context, active *models.ActiveNode, node *models.Node, cfg *models.ApprovalConfig) {
	assignee, err := r.engine.evaluator.EvaluateString(cfg.Assignee, r.evalContext())
	if err != nil {
		r.fail(ctx, node.ID, fmt.Errorf("resolving assignee: %w", err))

		return
	}

	var dueAt *time.Time

	if cfg.TimeoutDays > 0 {
		deadline := time.Now().UTC().AddDate(0, 0, cfg.TimeoutDays)
		dueAt = &deadline
	}

	task, err := r.engine.tasks.CreateTask(ctx, TaskParams{
		InstanceID:   r.instance.ID,
		NodeID:       node.ID,
		ActivationID: active.ActivationID,
		Name:         node.Name,
		Assignee:     assignee,
		Priority:     cfg.Priority,
		DueAt:        dueAt,
	})
	if err != nil {
		r.fail(ctx, node.ID, fmt.Errorf("creating approval task: %w", err))

		return
	}

	active.TaskID = task.ID
	active.State = models.ActivationAwaitingTask
	active.ApprovalsLeft--

	if dueAt != nil && (r.instance.DueAt == nil || dueAt.Before(*r.instance.DueAt)) {
		r.instance.DueAt = dueAt
	}
}

// route evaluates the node's outgoing edges and replaces the activation with
// one new activation per taken edge. Non-decision nodes take every matching
// edge, forking the instance; decision nodes take only the first.
// Evaluation errors are logged and treated as non-match.
func (r *advanceRun) route(ctx context.Context, active *models.ActiveNode, node *models.Node, firstOnly bool) bool {
	var targets []string

	for _, edge := range r.definition.OutgoingEdges(node.ID) {
		if !edge.Unconditional() {
			holds, err := r.engine.evaluator.EvaluateBool(edge.Condition, r.evalContext())
			if err != nil {
				r.engine.logger.WarnContext(ctx, "Edge condition failed, treating as non-match",
					"instance_id", r.instance.ID, "edge_id", edge.ID, "error", err)

				continue
			}

			if !holds {
				continue
			}
		}

		targets = append(targets, edge.Target)

		if firstOnly {
			break
		}
	}

	r.remove(active.ActivationID)

	for _, target := range targets {
		r.instance.ActiveNodes = append(r.instance.ActiveNodes, &models.ActiveNode{
			ActivationID: uuid.New().String(),
			NodeID:       target,
			State:        models.ActivationDispatchable,
		})
	}

	return len(targets) > 0
}

func (r *advanceRun) remove(activationID string) {
	remaining := r.instance.ActiveNodes[:0]

	for _, active := range r.instance.ActiveNodes {
		if active.ActivationID != activationID {
			remaining = append(remaining, active)
		}
	}

	r.instance.ActiveNodes = remaining
}

// fail moves the instance to FAILED with the node and reason recorded. The
// failed state is what gets persisted for this advance call.
func (r *advanceRun) fail(ctx context.Context, nodeID string, err error) {
	now := time.Now().UTC()

	r.engine.logger.ErrorContext(ctx, "Instance failed",
		"instance_id", r.instance.ID, "node_id", nodeID, "error", err)

	r.instance.Status = models.InstanceStatusFailed
	r.instance.FailureReason = err.Error()
	r.instance.FailedNodeID = nodeID
	r.instance.CompletedAt = &now
	r.instance.ActiveNodes = nil
	r.instance.DueAt = nil

	r.emit(events.NodeFailed{
		BaseEvent: r.engine.baseEvent(events.NodeFailedEvent, r.instance.ID),
		NodeID:    nodeID,
		Error:     err.Error(),
	})

	r.emit(events.InstanceFailed{
		BaseEvent: r.engine.baseEvent(events.InstanceFailedEvent, r.instance.ID),
		Reason:    err.Error(),
		NodeID:    nodeID,
	})
}

func (r *advanceRun) emit(event eventbus.Event) {
	r.pending = append(r.pending, event)
}

func (r *advanceRun) evalContext() expression.Context {
	return expression.Context{
		Variables: r.instance.Variables,
		Outcome:   r.instance.Outcome,
		Trigger:   r.instance.TriggerData,
	}
}

// invokeWithRetry executes a connector call under the node's retry policy.
// Without a policy the call is made once.
func (e *Engine) invokeWithRetry(ctx context.Context, node *models.Node, cfg *models.ActionConfig, inputs map[string]any) (map[string]any, *ConnectorError) {
	attempts := 1
	if cfg.Retry != nil && cfg.Retry.MaxAttempts > 1 {
		attempts = cfg.Retry.MaxAttempts
	}

	var outputs map[string]any

	operation := func() error {
		out, err := e.invoker.Execute(ctx, cfg.Connector, cfg.Operation, inputs)
		if err != nil {
			return err
		}

		outputs = out

		return nil
	}

	policy := backoff.NewExponentialBackOff()

	if cfg.Retry != nil {
		if cfg.Retry.InitialDelayMs > 0 {
			policy.InitialInterval = time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond
		}

		if cfg.Retry.Multiplier > 1 {
			policy.Multiplier = cfg.Retry.Multiplier
		}
	}

	strategy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	if err := backoff.Retry(operation, strategy); err != nil {
		return nil, &ConnectorError{
			NodeID:    node.ID,
			Connector: cfg.Connector,
			Attempts:  attempts,
			Err:       err,
		}
	}

	return outputs, nil
}
