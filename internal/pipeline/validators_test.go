package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDockerfile_Valid(t *testing.T) {
	report := &QualityReport{}
	CheckDockerfile("FROM golang:1.22\nEXPOSE 8080\nCMD [\"./app\"]\n", report)

	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestCheckDockerfile_MultiStageWithBlankLines(t *testing.T) {
	report := &QualityReport{}
	CheckDockerfile("FROM golang:1.22 AS build\nRUN go build -o /app ./...\n\nFROM alpine\n   \nCOPY --from=build /app /app\nEXPOSE 8080\nCMD [\"/app\"]\n", report)

	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestCheckDockerfile_MissingFromAndCmd(t *testing.T) {
	report := &QualityReport{}
	CheckDockerfile("RUN apt-get update\n", report)

	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0], "FROM")
	assert.Contains(t, report.Errors[1], "CMD or ENTRYPOINT")
}

func TestCheckDockerfile_MissingExposeIsWarning(t *testing.T) {
	report := &QualityReport{}
	CheckDockerfile("FROM alpine\nENTRYPOINT [\"/app\"]\n", report)

	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "EXPOSE")
}

func TestCheckDockerfile_Empty(t *testing.T) {
	report := &QualityReport{}
	CheckDockerfile("   \n", report)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "empty")
}

func terraformJSON(t *testing.T, files map[string]string) string {
	t.Helper()
	data, err := json.Marshal(files)
	require.NoError(t, err)
	return string(data)
}

func TestCheckTerraform_Valid(t *testing.T) {
	report := &QualityReport{}
	CheckTerraform(terraformJSON(t, map[string]string{
		"main.tf": `provider "aws" {}` + "\n" + `resource "aws_ecs_service" "app" {}`,
	}), report)

	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestCheckTerraform_NoResources(t *testing.T) {
	report := &QualityReport{}
	CheckTerraform(terraformJSON(t, map[string]string{
		"variables.tf": `variable "region" {}`,
	}), report)

	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "no resources")
}

func TestCheckTerraform_InvalidJSON(t *testing.T) {
	report := &QualityReport{}
	CheckTerraform("not json at all", report)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "not valid JSON")
}

func TestCheckTerraform_NonTerraformFileIsWarning(t *testing.T) {
	report := &QualityReport{}
	CheckTerraform(terraformJSON(t, map[string]string{
		"main.tf":   `provider "aws" {}` + "\n" + `resource "x" "y" {}`,
		"README.md": "docs",
	}), report)

	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "README.md")
}

func TestCheckTerraform_EmptyFileSet(t *testing.T) {
	report := &QualityReport{}
	CheckTerraform("{}", report)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "empty")
}
