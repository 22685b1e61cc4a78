package definition

import (
	"fmt"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// validateForPublishing checks every structural invariant and collects all
// violations. The expression compiler runs here too, so that anything
// outside the condition grammar is rejected before publish instead of at
// run time.
func (s *Store) validateForPublishing(def *models.Definition) *ValidationError {
	var violations []string

	if len(def.Nodes) == 0 {
		violations = append(violations, "definition has no nodes")
	}

	nodeIDs := make(map[string]bool)
	startCount := 0

	for _, node := range def.Nodes {
		if node.ID == "" {
			violations = append(violations, "found node with empty ID")

			continue
		}

		if nodeIDs[node.ID] {
			violations = append(violations, fmt.Sprintf("duplicate node ID: %s", node.ID))
		}

		nodeIDs[node.ID] = true

		if node.Type == models.NodeTypeStart {
			startCount++
		}

		violations = append(violations, s.validateNodeConfig(node)...)
	}

	if startCount != 1 {
		violations = append(violations, fmt.Sprintf("definition must have exactly one start node, found %d", startCount))
	}

	for _, edge := range def.Edges {
		if !nodeIDs[edge.Source] {
			violations = append(violations, fmt.Sprintf("edge %s references non-existent source node: %s", edge.ID, edge.Source))
		}

		if !nodeIDs[edge.Target] {
			violations = append(violations, fmt.Sprintf("edge %s references non-existent target node: %s", edge.ID, edge.Target))
		}

		if edge.Condition != "" {
			if err := s.evaluator.Compile(edge.Condition); err != nil {
				violations = append(violations, fmt.Sprintf("edge %s has invalid condition: %v", edge.ID, err))
			}
		}
	}

	for _, node := range def.Nodes {
		if node.Type == models.NodeTypeEnd && len(def.OutgoingEdges(node.ID)) > 0 {
			violations = append(violations, fmt.Sprintf("end node %s has outgoing edges", node.ID))
		}
	}

	violations = append(violations, unreachableNodes(def)...)

	if len(violations) == 0 {
		return nil
	}

	return &ValidationError{DefinitionID: def.ID, Violations: violations}
}

// validateNodeConfig checks the type-specific configuration of one node.
func (s *Store) validateNodeConfig(node *models.Node) []string {
	var violations []string

	switch node.Type {
	case models.NodeTypeAction:
		cfg, err := node.ActionConfig()
		if err != nil {
			return []string{err.Error()}
		}

		if cfg.Connector == "" {
			violations = append(violations, fmt.Sprintf("action node %s has no connector reference", node.ID))
		} else if s.registry != nil {
			if _, err := s.registry.Schema(cfg.Connector); err != nil {
				violations = append(violations, fmt.Sprintf("action node %s: %v", node.ID, err))
			}
		}

		if cfg.Operation == "" {
			violations = append(violations, fmt.Sprintf("action node %s has no operation reference", node.ID))
		}

		for input, binding := range cfg.Inputs {
			if err := s.evaluator.Compile(binding); err != nil {
				violations = append(violations, fmt.Sprintf("action node %s has invalid binding for input %s: %v", node.ID, input, err))
			}
		}

	case models.NodeTypeApproval:
		cfg, err := node.ApprovalConfig()
		if err != nil {
			return []string{err.Error()}
		}

		if cfg.Assignee == "" {
			violations = append(violations, fmt.Sprintf("approval node %s has no assignee expression", node.ID))
		} else if err := s.evaluator.Compile(cfg.Assignee); err != nil {
			violations = append(violations, fmt.Sprintf("approval node %s has invalid assignee expression: %v", node.ID, err))
		}

		if cfg.TimeoutDays < 0 {
			violations = append(violations, fmt.Sprintf("approval node %s has negative timeout", node.ID))
		}

	case models.NodeTypeDecision:
		cfg, err := node.DecisionConfig()
		if err != nil {
			return []string{err.Error()}
		}

		for input, binding := range cfg.TableInputs {
			if err := s.evaluator.Compile(binding); err != nil {
				violations = append(violations, fmt.Sprintf("decision node %s has invalid binding for table input %s: %v", node.ID, input, err))
			}
		}

	case models.NodeTypeEmail:
		cfg, err := node.EmailConfig()
		if err != nil {
			return []string{err.Error()}
		}

		if cfg.Template == "" {
			violations = append(violations, fmt.Sprintf("email node %s has no template", node.ID))
		}

		if cfg.Recipient == "" {
			violations = append(violations, fmt.Sprintf("email node %s has no recipient expression", node.ID))
		} else if err := s.evaluator.Compile(cfg.Recipient); err != nil {
			violations = append(violations, fmt.Sprintf("email node %s has invalid recipient expression: %v", node.ID, err))
		}

	case models.NodeTypeStart, models.NodeTypeEnd:
		// No config.
	}

	return violations
}

// unreachableNodes walks the graph from the start node and reports every
// node the walk never visits.
func unreachableNodes(def *models.Definition) []string {
	start := def.StartNode()
	if start == nil {
		return nil // already reported as a missing start node
	}

	visited := map[string]bool{start.ID: true}
	frontier := []string{start.ID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, edge := range def.OutgoingEdges(current) {
			if !visited[edge.Target] {
				visited[edge.Target] = true
				frontier = append(frontier, edge.Target)
			}
		}
	}

	var violations []string

	for _, node := range def.Nodes {
		if !visited[node.ID] {
			violations = append(violations, fmt.Sprintf("node %s is not reachable from the start node", node.ID))
		}
	}

	return violations
}
