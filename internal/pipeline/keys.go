package pipeline

// Memory keys written and consumed by the fixed stage sequence. Producers
// declare their keys via Stage.Produces; consumers via Stage.Requires.
const (
	KeyRepositoryContext = "repository_context"
	KeyValidationReport  = "validation_report"
	KeyDockerfile        = "dockerfile"
	KeyTerraformFiles    = "terraform_files"
	KeyQualityReport     = "quality_report"
)

// Stage names in execution order.
const (
	StageAnalysis      = "analysis"
	StageValidation    = "validation"
	StageDockerfileGen = "dockerfile_generation"
	StageTerraformGen  = "terraform_generation"
	StageQualityCheck  = "quality_check"
	StageDelivery      = "delivery"
)
