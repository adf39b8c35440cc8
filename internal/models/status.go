package models

// WorkflowStatus tracks a generation session through the agent pipeline.
type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "not_started"
	WorkflowStarted    WorkflowStatus = "started"
	WorkflowAnalyzing  WorkflowStatus = "analyzing"
	WorkflowGenerating WorkflowStatus = "generating"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

// Terminal reports whether the status is final.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// DeploymentStatus tracks the provisioning state of a project's
// infrastructure, kept consistent with operation terminal transitions.
type DeploymentStatus string

const (
	DeploymentNotStarted DeploymentStatus = "not_started"
	DeploymentImageBuilt DeploymentStatus = "image_built"
	DeploymentPlanned    DeploymentStatus = "planned"
	DeploymentDeployed   DeploymentStatus = "deployed"
	DeploymentDestroyed  DeploymentStatus = "destroyed"
	DeploymentFailed     DeploymentStatus = "failed"
)
