package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				version INT NOT NULL DEFAULT 1,
				trigger_node_id VARCHAR(255),
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_user_id ON workflows(user_id);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
				position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
				sort_order INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			-- sort_order keeps edges in definition order; the first edge wins for non-branch nodes
			CREATE TABLE workflow_edges (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255),
				target_handle VARCHAR(255),
				condition JSONB,
				data_mapping JSONB,
				sort_order INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_edges_source ON workflow_edges(workflow_id, source_node_id);
		`,
		2: `
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				workflow_version INT NOT NULL DEFAULT 1,
				user_id VARCHAR(255) NOT NULL,
				triggered_by VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				initial_input JSONB,
				metadata JSONB,
				error_code VARCHAR(100),
				error_message TEXT,
				failed_node_id VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);

			CREATE TABLE node_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				input_data JSONB,
				output_data JSONB,
				status VARCHAR(50) NOT NULL,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id, started_at);
		`,
		3: `
			CREATE TABLE time_blocks (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				schedule_type VARCHAR(20) NOT NULL CHECK (schedule_type IN ('CRON', 'INTERVAL', 'ONE_SHOT')),
				cron_expression VARCHAR(255),
				timezone VARCHAR(100),
				interval_seconds INT,
				run_at TIMESTAMP WITH TIME ZONE,
				end_at TIMESTAMP WITH TIME ZONE,
				max_runs INT,
				run_count INT NOT NULL DEFAULT 0,
				status VARCHAR(20) NOT NULL CHECK (status IN ('ACTIVE', 'PAUSED', 'COMPLETED', 'CANCELLED')),
				last_trigger_job_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_time_blocks_status ON time_blocks(status);
		`,
	}
}
