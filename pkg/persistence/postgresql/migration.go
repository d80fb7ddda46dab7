package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				version INTEGER NOT NULL DEFAULT 1,
				body JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL REFERENCES workflow_definitions(id),
				correlation_id VARCHAR(255),
				created_by VARCHAR(255),
				current_step_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('created', 'running', 'waiting', 'suspended', 'completed', 'failed', 'cancelled')),
				status_reason TEXT,
				variables JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_correlation_id ON workflow_instances(correlation_id);
			CREATE INDEX idx_workflow_instances_definition_id ON workflow_instances(definition_id);

			CREATE TABLE step_instances (
				id UUID PRIMARY KEY,
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				assigned_to VARCHAR(255),
				completed_by VARCHAR(255),
				external_task_id VARCHAR(255),
				due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_step_instances_instance ON step_instances(workflow_instance_id);
			CREATE INDEX idx_step_instances_status ON step_instances(status);
			CREATE INDEX idx_step_instances_due_at ON step_instances(status, due_at);
			CREATE INDEX idx_step_instances_assigned_to ON step_instances(assigned_to);
		`,
	}
}
