package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QualityReport collects the findings of the quality check stage. Errors
// fail the stage; warnings are recorded but do not block delivery.
type QualityReport struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *QualityReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *QualityReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// CheckDockerfile applies structural checks to generated Dockerfile content.
func CheckDockerfile(content string, report *QualityReport) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		report.errorf("Dockerfile is empty")
		return
	}

	hasFrom, hasCmd := false, false
	for _, line := range strings.Split(trimmed, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "FROM":
			hasFrom = true
		case "CMD", "ENTRYPOINT":
			hasCmd = true
		}
	}
	if !hasFrom {
		report.errorf("Dockerfile has no FROM instruction")
	}
	if !hasCmd {
		report.errorf("Dockerfile has no CMD or ENTRYPOINT instruction")
	}
	if !strings.Contains(strings.ToUpper(trimmed), "EXPOSE") {
		report.warnf("Dockerfile does not EXPOSE a port")
	}
}

// CheckTerraform applies structural checks to the generated Terraform file
// set, given as the terraform_files memory payload (JSON map of file name to
// content).
func CheckTerraform(filesJSON string, report *QualityReport) {
	var files map[string]string
	if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
		report.errorf("terraform file set is not valid JSON: %v", err)
		return
	}
	if len(files) == 0 {
		report.errorf("terraform file set is empty")
		return
	}

	hasTf, hasResource, hasProvider := false, false, false
	for name, content := range files {
		if !strings.HasSuffix(name, ".tf") {
			report.warnf("unexpected non-terraform file %s", name)
			continue
		}
		hasTf = true
		if strings.TrimSpace(content) == "" {
			report.errorf("%s is empty", name)
		}
		if strings.Contains(content, "resource ") {
			hasResource = true
		}
		if strings.Contains(content, "provider ") {
			hasProvider = true
		}
	}
	if !hasTf {
		report.errorf("no .tf files were generated")
	}
	if hasTf && !hasResource {
		report.errorf("terraform files declare no resources")
	}
	if hasTf && !hasProvider {
		report.warnf("terraform files declare no provider block")
	}
}
