package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE definitions (
				id UUID PRIMARY KEY,
				group_id UUID NOT NULL,
				version INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				owner VARCHAR(255),
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (group_id, version)
			);

			CREATE INDEX idx_definitions_group_id ON definitions(group_id);
			CREATE INDEX idx_definitions_status ON definitions(status);

			CREATE TABLE instances (
				id UUID PRIMARY KEY,
				definition_group_id UUID NOT NULL,
				definition_version INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				started_by VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				due_at TIMESTAMP WITH TIME ZONE,
				sla_breached BOOLEAN NOT NULL DEFAULT FALSE,
				document JSONB NOT NULL
			);

			CREATE INDEX idx_instances_definition ON instances(definition_group_id);
			CREATE INDEX idx_instances_status ON instances(status);
			CREATE INDEX idx_instances_due_at ON instances(due_at);

			CREATE TABLE tasks (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				assignee VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				sla_breached BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				document JSONB NOT NULL
			);

			CREATE INDEX idx_tasks_instance_id ON tasks(instance_id);
			CREATE INDEX idx_tasks_assignee ON tasks(assignee);
			CREATE INDEX idx_tasks_status ON tasks(status);
			CREATE INDEX idx_tasks_due_at ON tasks(due_at);

			CREATE TABLE decision_tables (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255),
				document JSONB NOT NULL
			);
		`,
	}
}
