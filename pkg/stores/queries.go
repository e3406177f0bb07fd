package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Queries holds the CRUD statements. It runs against the database or
// against a transaction opened by WithTx.
type Queries struct {
	db DBTX
}

// NewQueries wraps db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

func requireRow(res sql.Result, what, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(what, id)
	}
	return nil
}

// CreateDeployment inserts a deployment.
func (q *Queries) CreateDeployment(ctx context.Context, d *Deployment) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO deployments (id, name, deployed_at) VALUES (?, ?, ?)`,
		d.ID, d.Name, toMillis(d.DeployedAt))
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by ID.
func (q *Queries) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	d := &Deployment{}
	var at int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, deployed_at FROM deployments WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("deployment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	d.DeployedAt = fromMillis(at)
	return d, nil
}

// ListDeployments lists deployments, oldest first.
func (q *Queries) ListDeployments(ctx context.Context) ([]*Deployment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, deployed_at FROM deployments ORDER BY deployed_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	out := []*Deployment{}
	for rows.Next() {
		d := &Deployment{}
		var at int64
		if err := rows.Scan(&d.ID, &d.Name, &at); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		d.DeployedAt = fromMillis(at)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}
	return out, nil
}

// DeleteDeployment deletes a deployment and, through foreign keys,
// everything created from it.
func (q *Queries) DeleteDeployment(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}
	return requireRow(res, "deployment", id)
}

// AddResource stores a deployment resource.
func (q *Queries) AddResource(ctx context.Context, r *DeploymentResource) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO deployment_resources (deployment_id, name, content) VALUES (?, ?, ?)`,
		r.DeploymentID, r.Name, r.Content)
	if err != nil {
		return fmt.Errorf("failed to add resource: %w", err)
	}
	return nil
}

// GetResource retrieves one deployment resource.
func (q *Queries) GetResource(ctx context.Context, deploymentID, name string) (*DeploymentResource, error) {
	r := &DeploymentResource{}
	err := q.db.QueryRowContext(ctx,
		`SELECT deployment_id, name, content FROM deployment_resources WHERE deployment_id = ? AND name = ?`,
		deploymentID, name).Scan(&r.DeploymentID, &r.Name, &r.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("resource", deploymentID+"/"+name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

// ListResourceNames lists the resource names of a deployment.
func (q *Queries) ListResourceNames(ctx context.Context, deploymentID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT name FROM deployment_resources WHERE deployment_id = ? ORDER BY name`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const definitionColumns = `id, process_key, name, version, deployment_id, resource_name, steps`

func scanDefinition(row interface{ Scan(...any) error }) (*Definition, error) {
	d := &Definition{}
	err := row.Scan(&d.ID, &d.Key, &d.Name, &d.Version, &d.DeploymentID, &d.ResourceName, &d.Steps)
	return d, err
}

// CreateDefinition inserts a process definition.
func (q *Queries) CreateDefinition(ctx context.Context, def *Definition) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO process_definitions (`+definitionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Key, def.Name, def.Version, def.DeploymentID, def.ResourceName, def.Steps)
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (q *Queries) GetDefinition(ctx context.Context, id string) (*Definition, error) {
	d, err := scanDefinition(q.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("definition", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return d, nil
}

// LatestDefinition retrieves the highest version of a definition key.
func (q *Queries) LatestDefinition(ctx context.Context, key string) (*Definition, error) {
	d, err := scanDefinition(q.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions WHERE process_key = ? ORDER BY version DESC LIMIT 1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("definition", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return d, nil
}

// MaxDefinitionVersion returns the highest deployed version of key, or 0.
func (q *Queries) MaxDefinitionVersion(ctx context.Context, key string) (int, error) {
	var v int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM process_definitions WHERE process_key = ?`, key).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get definition version: %w", err)
	}
	return v, nil
}

// ListDefinitions lists every definition version by key then version.
func (q *Queries) ListDefinitions(ctx context.Context) ([]*Definition, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM process_definitions ORDER BY process_key, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	out := []*Definition{}
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const instanceColumns = `id, definition_id, definition_key, business_key, status, current_step, started_at, ended_at, reason`

func scanInstance(row interface{ Scan(...any) error }) (*Instance, error) {
	inst := &Instance{}
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.DefinitionKey, &inst.BusinessKey,
		&inst.Status, &inst.CurrentStep, &started, &ended, &inst.Reason)
	if err != nil {
		return nil, err
	}
	inst.StartedAt = fromMillis(started)
	inst.EndedAt = timePtr(ended)
	return inst, nil
}

// CreateInstance inserts a process instance.
func (q *Queries) CreateInstance(ctx context.Context, inst *Instance) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO process_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.DefinitionID, inst.DefinitionKey, inst.BusinessKey, inst.Status,
		inst.CurrentStep, toMillis(inst.StartedAt), nullMillis(inst.EndedAt), inst.Reason)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (q *Queries) GetInstance(ctx context.Context, id string) (*Instance, error) {
	inst, err := scanInstance(q.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM process_instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("instance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// UpdateInstance stores the mutable fields of an instance.
func (q *Queries) UpdateInstance(ctx context.Context, inst *Instance) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE process_instances SET status = ?, current_step = ?, ended_at = ?, reason = ? WHERE id = ?`,
		inst.Status, inst.CurrentStep, nullMillis(inst.EndedAt), inst.Reason, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return requireRow(res, "instance", inst.ID)
}

// ListActiveInstances lists running instances, optionally for one key.
func (q *Queries) ListActiveInstances(ctx context.Context, definitionKey string) ([]*Instance, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM process_instances
		 WHERE status = 'active' AND (? = '' OR definition_key = ?)
		 ORDER BY started_at ASC, id ASC`, definitionKey, definitionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	out := []*Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// CountActiveInstancesByDeployment counts running instances of a deployment.
func (q *Queries) CountActiveInstancesByDeployment(ctx context.Context, deploymentID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM process_instances pi
		 JOIN process_definitions pd ON pd.id = pi.definition_id
		 WHERE pd.deployment_id = ? AND pi.status = 'active'`, deploymentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return n, nil
}

const taskColumns = `id, instance_id, definition_id, element_id, name, assignee, priority, created_at, due_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{}
	var created int64
	var due, completed sql.NullInt64
	err := row.Scan(&t.ID, &t.InstanceID, &t.DefinitionID, &t.ElementID, &t.Name,
		&t.Assignee, &t.Priority, &created, &due, &completed)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(created)
	t.DueAt = timePtr(due)
	t.CompletedAt = timePtr(completed)
	return t, nil
}

// CreateTask inserts a task.
func (q *Queries) CreateTask(ctx context.Context, t *Task) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.InstanceID, t.DefinitionID, t.ElementID, t.Name, t.Assignee, t.Priority,
		toMillis(t.CreatedAt), nullMillis(t.DueAt), nullMillis(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queries) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// MarkTaskCompleted sets the completion time of an open task.
func (q *Queries) MarkTaskCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET completed_at = ? WHERE id = ? AND completed_at IS NULL`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return requireRow(res, "open task", id)
}

// ListOpenTasks lists open tasks, optionally for one instance.
func (q *Queries) ListOpenTasks(ctx context.Context, instanceID string) ([]*Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE completed_at IS NULL AND (? = '' OR instance_id = ?)
		 ORDER BY created_at ASC, id ASC`, instanceID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	out := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteOpenTasks removes the open tasks of an instance.
func (q *Queries) DeleteOpenTasks(ctx context.Context, instanceID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE instance_id = ? AND completed_at IS NULL`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

// SetVariables upserts JSON-encoded variables of an instance.
func (q *Queries) SetVariables(ctx context.Context, instanceID string, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO variables (instance_id, name, value) VALUES (?, ?, ?)
			 ON CONFLICT(instance_id, name) DO UPDATE SET value = excluded.value`,
			instanceID, name, values[name])
		if err != nil {
			return fmt.Errorf("failed to set variable %s: %w", name, err)
		}
	}
	return nil
}

// GetVariables returns the JSON-encoded variables of an instance.
func (q *Queries) GetVariables(ctx context.Context, instanceID string) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT name, value FROM variables WHERE instance_id = ?`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variables: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

const historyColumns = `id, definition_id, definition_key, business_key, started_at, ended_at, outcome, reason`

func scanHistory(row interface{ Scan(...any) error }) (*HistoricInstance, error) {
	h := &HistoricInstance{}
	var started, ended int64
	err := row.Scan(&h.ID, &h.DefinitionID, &h.DefinitionKey, &h.BusinessKey, &started, &ended, &h.Outcome, &h.Reason)
	if err != nil {
		return nil, err
	}
	h.StartedAt = fromMillis(started)
	h.EndedAt = fromMillis(ended)
	return h, nil
}

// CreateHistory inserts the history record of a finished instance. A second
// record for the same instance fails.
func (q *Queries) CreateHistory(ctx context.Context, h *HistoricInstance) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO historic_process_instances (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.DefinitionID, h.DefinitionKey, h.BusinessKey,
		toMillis(h.StartedAt), toMillis(h.EndedAt), h.Outcome, h.Reason)
	if err != nil {
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

// GetHistory retrieves the history record of an instance.
func (q *Queries) GetHistory(ctx context.Context, id string) (*HistoricInstance, error) {
	h, err := scanHistory(q.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM historic_process_instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("history", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return h, nil
}

// ListHistory lists finished instances, optionally for one key.
func (q *Queries) ListHistory(ctx context.Context, definitionKey string) ([]*HistoricInstance, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM historic_process_instances
		 WHERE (? = '' OR definition_key = ?)
		 ORDER BY ended_at ASC, id ASC`, definitionKey, definitionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []*HistoricInstance{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SnapshotVariables copies the current variables of an instance into its
// history record. The history record must already exist.
func (q *Queries) SnapshotVariables(ctx context.Context, instanceID string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO historic_variables (instance_id, name, value)
		 SELECT instance_id, name, value FROM variables WHERE instance_id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to snapshot variables: %w", err)
	}
	return nil
}

// GetHistoricVariables returns the JSON-encoded final variables of a
// finished instance.
func (q *Queries) GetHistoricVariables(ctx context.Context, instanceID string) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT name, value FROM historic_variables WHERE instance_id = ?`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get historic variables: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan historic variable: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// DeleteHistoryByDeployment removes the history of every instance started
// from a definition of the deployment. History is otherwise never deleted,
// so this must run before the deployment row itself is removed.
func (q *Queries) DeleteHistoryByDeployment(ctx context.Context, deploymentID string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM historic_process_instances
		 WHERE definition_id IN (SELECT id FROM process_definitions WHERE deployment_id = ?)`, deploymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return n, nil
}
