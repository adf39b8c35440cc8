package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	filepathx "github.com/yargevad/filepathx"
)

// RepoInventory summarizes a checked-out repository for the generation
// stages: detected language and framework, file counts, and the manifests
// that drove the detection.
type RepoInventory struct {
	Language      string         `json:"language"`
	Framework     string         `json:"framework"`
	FileCount     int            `json:"file_count"`
	Extensions    map[string]int `json:"extensions"`
	Manifests     []string       `json:"manifests"`
	EntryPoint    string         `json:"entry_point,omitempty"`
	HasDockerfile bool           `json:"has_dockerfile"`
}

// manifestLanguages maps well-known build manifests to their language.
var manifestLanguages = map[string]string{
	"package.json":     "javascript",
	"go.mod":           "go",
	"requirements.txt": "python",
	"pyproject.toml":   "python",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Cargo.toml":       "rust",
	"Gemfile":          "ruby",
	"composer.json":    "php",
}

// AnalyzeRepository walks the checkout at root and builds an inventory.
// Vendored and VCS directories are skipped.
func AnalyzeRepository(root string) (*RepoInventory, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("repository checkout not found: %w", err)
	}

	matches, err := filepathx.Glob(filepath.Join(root, "**", "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	inv := &RepoInventory{Extensions: map[string]int{}}
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil || skippedPath(rel) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}

		inv.FileCount++
		base := filepath.Base(rel)
		if base == "Dockerfile" {
			inv.HasDockerfile = true
		}
		if lang, ok := manifestLanguages[base]; ok {
			inv.Manifests = append(inv.Manifests, rel)
			if inv.Language == "" {
				inv.Language = lang
			}
		}
		if ext := filepath.Ext(base); ext != "" {
			inv.Extensions[ext]++
		}
	}

	if inv.Language == "" {
		inv.Language = dominantLanguage(inv.Extensions)
	}
	inv.Framework = detectFramework(root, inv)
	inv.EntryPoint = detectEntryPoint(root, inv.Language)
	sort.Strings(inv.Manifests)
	return inv, nil
}

func skippedPath(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		switch part {
		case ".git", "node_modules", "vendor", "__pycache__", ".terraform":
			return true
		}
	}
	return false
}

var extLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "javascript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".php":  "php",
}

func dominantLanguage(exts map[string]int) string {
	best, bestCount := "", 0
	for ext, count := range exts {
		lang, ok := extLanguages[ext]
		if !ok {
			continue
		}
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	return best
}

// detectFramework reads the primary manifest and looks for framework
// dependencies by name. Detection is best effort; an empty string is a
// valid answer.
func detectFramework(root string, inv *RepoInventory) string {
	probes := map[string][]string{
		"package.json":     {"express", "next", "react", "fastify"},
		"requirements.txt": {"flask", "django", "fastapi"},
		"pyproject.toml":   {"flask", "django", "fastapi"},
		"go.mod":           {"gin-gonic", "echo", "fiber", "chi"},
		"pom.xml":          {"spring-boot"},
	}
	for _, manifest := range inv.Manifests {
		names, ok := probes[filepath.Base(manifest)]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, manifest))
		if err != nil {
			continue
		}
		content := strings.ToLower(string(data))
		for _, name := range names {
			if strings.Contains(content, name) {
				return name
			}
		}
	}
	return ""
}

func detectEntryPoint(root, language string) string {
	candidates := map[string][]string{
		"go":         {"main.go", "cmd"},
		"python":     {"app.py", "main.py", "manage.py"},
		"javascript": {"index.js", "server.js", "src/index.js"},
	}
	for _, c := range candidates[language] {
		if _, err := os.Stat(filepath.Join(root, c)); err == nil {
			return c
		}
	}
	return ""
}
