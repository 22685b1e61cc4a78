// Package file provides a file-based persistence implementation. Each entity
// is stored as one JSON document under a per-kind directory, which keeps
// local setups inspectable with nothing but a text editor.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local filesystem.
type Persistence struct {
	root              string
	definitionRepo    *DefinitionRepository
	instanceRepo      *InstanceRepository
	taskRepo          *TaskRepository
	decisionTableRepo *DecisionTableRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" prefix is tolerated so database URLs can be passed
// through unchanged.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:              cleanRoot,
		definitionRepo:    &DefinitionRepository{root: cleanRoot},
		instanceRepo:      &InstanceRepository{root: cleanRoot},
		taskRepo:          &TaskRepository{root: cleanRoot},
		decisionTableRepo: &DecisionTableRepository{root: cleanRoot},
	}
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) DecisionTableRepository() persistence.DecisionTableRepository {
	return p.decisionTableRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeEntity atomically persists one entity as pretty-printed JSON.
func writeEntity(root, kind, id string, entity any) error {
	dir := filepath.Join(root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	raw, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	target := filepath.Join(dir, id+".json")
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return os.Rename(tmp, target)
}

func readEntity(root, kind, id string, target any, notFound error) error {
	raw, err := os.ReadFile(filepath.Join(root, kind, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("GetByID", kind, id, notFound)
		}

		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

func deleteEntity(root, kind, id string, notFound error) error {
	err := os.Remove(filepath.Join(root, kind, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewStoreError("Delete", kind, id, notFound)
	}

	return err
}

// listIDs returns the entity IDs stored under a kind directory.
func listIDs(root, kind string) ([]string, error) {
	dir := filepath.Join(root, kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s directory: %w", kind, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
