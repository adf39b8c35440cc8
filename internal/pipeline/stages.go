package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"infraforge/internal/events"
	"infraforge/internal/llm"
	"infraforge/internal/memory"
)

// Stage is one step of the fixed generation sequence. Requires lists the
// memory keys that must exist before Run may be invoked; a missing key is a
// hard ordering violation, not a retryable failure.
type Stage interface {
	Name() string
	Agent() string
	Requires() []string
	Run(ctx context.Context, sc *StageContext) error
}

// StageContext is the per-stage view handed to Run. Memory access is bound
// to the session and the executing agent so every read and write lands in
// the attribution trail under the right name.
type StageContext struct {
	SessionID     string
	ProjectID     uint
	RepositoryURL string
	TemplateKind  string
	WorkDir       string

	store     *memory.Store
	agent     string
	log       func(message string, level events.Level)
	addFile   func(name, content string)
	files     func() map[string]string
	setBranch func(branch string)
}

func (sc *StageContext) ReadKey(key string) (string, bool) {
	return sc.store.Read(sc.SessionID, key, sc.agent)
}

func (sc *StageContext) WriteKey(key, value string) error {
	return sc.store.Write(sc.SessionID, key, value, sc.agent)
}

func (sc *StageContext) Logf(level events.Level, format string, args ...any) {
	sc.log(fmt.Sprintf(format, args...), level)
}

// AddFile records a generated artifact for the session's final file set.
func (sc *StageContext) AddFile(name, content string) {
	sc.addFile(name, content)
}

// Files returns a snapshot of the artifacts generated so far.
func (sc *StageContext) Files() map[string]string {
	return sc.files()
}

// SetDeliveryBranch records the branch the delivery stage committed to.
func (sc *StageContext) SetDeliveryBranch(branch string) {
	sc.setBranch(branch)
}

// DefaultStages returns the production stage sequence.
func DefaultStages(gen llm.Generator, git *GitWorkspace) []Stage {
	return []Stage{
		&analysisStage{git: git, gen: gen},
		&validationStage{},
		&dockerfileStage{gen: gen},
		&terraformStage{gen: gen},
		&qualityStage{},
		&deliveryStage{git: git},
	}
}

const analysisSystemPrompt = `You are a repository analyst. Given an inventory of a code repository, describe in two or three sentences what the application does, how it is built, and what it needs at runtime. Respond with plain text only.`

type analysisStage struct {
	git *GitWorkspace
	gen llm.Generator
}

func (s *analysisStage) Name() string { return StageAnalysis }
func (s *analysisStage) Agent() string { return "repository_analyzer" }
func (s *analysisStage) Requires() []string { return nil }

func (s *analysisStage) Run(ctx context.Context, sc *StageContext) error {
	if err := s.git.Ensure(ctx, sc.RepositoryURL, sc.WorkDir); err != nil {
		return err
	}

	inv, err := AnalyzeRepository(sc.WorkDir)
	if err != nil {
		return err
	}
	sc.Logf(events.LevelInfo, "indexed %d files, language %q, framework %q",
		inv.FileCount, inv.Language, inv.Framework)

	invJSON, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}

	notes, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System: analysisSystemPrompt,
		Prompt: string(invJSON),
	})
	if err != nil {
		return fmt.Errorf("repository analysis failed: %w", err)
	}

	repoCtx := map[string]any{
		"language":       inv.Language,
		"framework":      inv.Framework,
		"file_count":     inv.FileCount,
		"entry_point":    inv.EntryPoint,
		"manifests":      inv.Manifests,
		"has_dockerfile": inv.HasDockerfile,
		"template_kind":  sc.TemplateKind,
		"notes":          strings.TrimSpace(notes),
	}
	payload, err := json.Marshal(repoCtx)
	if err != nil {
		return fmt.Errorf("failed to encode repository context: %w", err)
	}
	return sc.WriteKey(KeyRepositoryContext, string(payload))
}

type validationStage struct{}

func (s *validationStage) Name() string { return StageValidation }
func (s *validationStage) Agent() string { return "context_validator" }
func (s *validationStage) Requires() []string { return []string{KeyRepositoryContext} }

func (s *validationStage) Run(ctx context.Context, sc *StageContext) error {
	raw, _ := sc.ReadKey(KeyRepositoryContext)

	var repoCtx struct {
		Language  string `json:"language"`
		FileCount int    `json:"file_count"`
	}
	if err := json.Unmarshal([]byte(raw), &repoCtx); err != nil {
		return fmt.Errorf("repository context is not valid JSON: %w", err)
	}
	if repoCtx.FileCount == 0 {
		return fmt.Errorf("repository appears to be empty")
	}
	if repoCtx.Language == "" {
		return fmt.Errorf("could not determine repository language")
	}
	sc.Logf(events.LevelInfo, "repository context validated: %s, %d files",
		repoCtx.Language, repoCtx.FileCount)

	report, err := json.Marshal(map[string]any{
		"valid":    true,
		"language": repoCtx.Language,
	})
	if err != nil {
		return err
	}
	return sc.WriteKey(KeyValidationReport, string(report))
}

const dockerfileSystemPrompt = `You are a senior platform engineer. Generate a production Dockerfile for the described repository. Use multi-stage builds where the language supports them, run as a non-root user, and EXPOSE the application port. Respond with only the Dockerfile content, no explanation and no markdown fences.`

type dockerfileStage struct {
	gen llm.Generator
}

func (s *dockerfileStage) Name() string { return StageDockerfileGen }
func (s *dockerfileStage) Agent() string { return "dockerfile_generator" }
func (s *dockerfileStage) Requires() []string {
	return []string{KeyRepositoryContext, KeyValidationReport}
}

func (s *dockerfileStage) Run(ctx context.Context, sc *StageContext) error {
	repoCtx, _ := sc.ReadKey(KeyRepositoryContext)

	content, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System: dockerfileSystemPrompt,
		Prompt: fmt.Sprintf("Repository context:\n%s\n\nDeployment template: %s", repoCtx, sc.TemplateKind),
	})
	if err != nil {
		return fmt.Errorf("dockerfile generation failed: %w", err)
	}
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "FROM ") {
		return fmt.Errorf("generated Dockerfile has no FROM instruction")
	}

	sc.AddFile("Dockerfile", content+"\n")
	sc.Logf(events.LevelInfo, "generated Dockerfile (%d lines)", strings.Count(content, "\n")+1)
	return sc.WriteKey(KeyDockerfile, content)
}

const terraformSystemPrompt = `You are a senior infrastructure engineer. Generate Terraform for deploying the described containerized application to AWS. Respond with a single JSON object mapping file names (main.tf, variables.tf, outputs.tf) to complete file contents. Respond with only the JSON object, no explanation and no markdown fences.`

type terraformStage struct {
	gen llm.Generator
}

func (s *terraformStage) Name() string { return StageTerraformGen }
func (s *terraformStage) Agent() string { return "terraform_generator" }
func (s *terraformStage) Requires() []string {
	return []string{KeyRepositoryContext, KeyDockerfile}
}

func (s *terraformStage) Run(ctx context.Context, sc *StageContext) error {
	repoCtx, _ := sc.ReadKey(KeyRepositoryContext)

	raw, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System: terraformSystemPrompt,
		Prompt: fmt.Sprintf("Repository context:\n%s\n\nDeployment template: %s", repoCtx, sc.TemplateKind),
	})
	if err != nil {
		return fmt.Errorf("terraform generation failed: %w", err)
	}

	var files map[string]string
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return fmt.Errorf("terraform response is not a JSON file map: %w", err)
	}

	tfCount := 0
	for name, content := range files {
		if strings.HasSuffix(name, ".tf") {
			tfCount++
		}
		sc.AddFile(name, content)
	}
	if tfCount == 0 {
		return fmt.Errorf("terraform response contains no .tf files")
	}

	normalized, err := json.Marshal(files)
	if err != nil {
		return err
	}
	sc.Logf(events.LevelInfo, "generated %d terraform files", tfCount)
	return sc.WriteKey(KeyTerraformFiles, string(normalized))
}

type qualityStage struct{}

func (s *qualityStage) Name() string { return StageQualityCheck }
func (s *qualityStage) Agent() string { return "quality_checker" }
func (s *qualityStage) Requires() []string {
	return []string{KeyDockerfile, KeyTerraformFiles}
}

func (s *qualityStage) Run(ctx context.Context, sc *StageContext) error {
	dockerfile, _ := sc.ReadKey(KeyDockerfile)
	terraformFiles, _ := sc.ReadKey(KeyTerraformFiles)

	report := &QualityReport{}
	CheckDockerfile(dockerfile, report)
	CheckTerraform(terraformFiles, report)
	report.Passed = len(report.Errors) == 0

	for _, w := range report.Warnings {
		sc.Logf(events.LevelWarn, "quality check: %s", w)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := sc.WriteKey(KeyQualityReport, string(payload)); err != nil {
		return err
	}

	if !report.Passed {
		return fmt.Errorf("quality check failed: %s", strings.Join(report.Errors, "; "))
	}
	sc.Logf(events.LevelInfo, "quality check passed with %d warnings", len(report.Warnings))
	return nil
}

type deliveryStage struct {
	git *GitWorkspace
}

func (s *deliveryStage) Name() string { return StageDelivery }
func (s *deliveryStage) Agent() string { return "delivery" }
func (s *deliveryStage) Requires() []string { return []string{KeyQualityReport} }

func (s *deliveryStage) Run(ctx context.Context, sc *StageContext) error {
	files := sc.Files()
	if len(files) == 0 {
		return fmt.Errorf("no artifacts to deliver")
	}

	branch := "infra/" + strings.TrimPrefix(sc.SessionID, "sess_")
	hash, err := s.git.CommitArtifacts(sc.WorkDir, branch, "Add generated infrastructure", files)
	if err != nil {
		return fmt.Errorf("failed to deliver artifacts: %w", err)
	}

	sc.SetDeliveryBranch(branch)
	sc.Logf(events.LevelInfo, "committed %d files to %s (%s)", len(files), branch, shortHash(hash))
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
