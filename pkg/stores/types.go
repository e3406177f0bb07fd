package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Instance statuses as stored.
const (
	InstanceStatusActive     = "active"
	InstanceStatusCompleted  = "completed"
	InstanceStatusTerminated = "terminated"
)

// Deployment is an uploaded bundle of process resources.
type Deployment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DeployedAt time.Time `json:"deployed_at"`
}

// DeploymentResource is one file of a deployment.
type DeploymentResource struct {
	DeploymentID string `json:"deployment_id"`
	Name         string `json:"name"`
	Content      []byte `json:"-"`
}

// Definition is a parsed process definition.
type Definition struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Version      int    `json:"version"`
	DeploymentID string `json:"deployment_id"`
	ResourceName string `json:"resource_name"`
	Steps        string `json:"steps"` // JSON blob
}

// Instance is a process instance row.
type Instance struct {
	ID            string     `json:"id"`
	DefinitionID  string     `json:"definition_id"`
	DefinitionKey string     `json:"definition_key"`
	BusinessKey   string     `json:"business_key"`
	Status        string     `json:"status"`
	CurrentStep   int        `json:"current_step"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// Task is a user task row.
type Task struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	DefinitionID string     `json:"definition_id"`
	ElementID    string     `json:"element_id"`
	Name         string     `json:"name"`
	Assignee     string     `json:"assignee"`
	Priority     int        `json:"priority"`
	CreatedAt    time.Time  `json:"created_at"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// HistoricInstance is the write-once record of a finished instance.
type HistoricInstance struct {
	ID            string    `json:"id"`
	DefinitionID  string    `json:"definition_id"`
	DefinitionKey string    `json:"definition_key"`
	BusinessKey   string    `json:"business_key"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// WithTx runs fn inside a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(q *Queries) error) error

	// Deployment operations
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	ListDeployments(ctx context.Context) ([]*Deployment, error)
	DeleteDeployment(ctx context.Context, id string) error
	AddResource(ctx context.Context, r *DeploymentResource) error
	GetResource(ctx context.Context, deploymentID, name string) (*DeploymentResource, error)
	ListResourceNames(ctx context.Context, deploymentID string) ([]string, error)

	// Definition operations
	CreateDefinition(ctx context.Context, def *Definition) error
	GetDefinition(ctx context.Context, id string) (*Definition, error)
	LatestDefinition(ctx context.Context, key string) (*Definition, error)
	MaxDefinitionVersion(ctx context.Context, key string) (int, error)
	ListDefinitions(ctx context.Context) ([]*Definition, error)

	// Instance operations
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	UpdateInstance(ctx context.Context, inst *Instance) error
	ListActiveInstances(ctx context.Context, definitionKey string) ([]*Instance, error)
	CountActiveInstancesByDeployment(ctx context.Context, deploymentID string) (int, error)

	// Task operations
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	MarkTaskCompleted(ctx context.Context, id string, at time.Time) error
	ListOpenTasks(ctx context.Context, instanceID string) ([]*Task, error)
	DeleteOpenTasks(ctx context.Context, instanceID string) error

	// Variable operations
	SetVariables(ctx context.Context, instanceID string, values map[string]string) error
	GetVariables(ctx context.Context, instanceID string) (map[string]string, error)

	// History operations
	CreateHistory(ctx context.Context, h *HistoricInstance) error
	GetHistory(ctx context.Context, id string) (*HistoricInstance, error)
	ListHistory(ctx context.Context, definitionKey string) ([]*HistoricInstance, error)
	SnapshotVariables(ctx context.Context, instanceID string) error
	GetHistoricVariables(ctx context.Context, instanceID string) (map[string]string, error)
	DeleteHistoryByDeployment(ctx context.Context, deploymentID string) (int64, error)
}
