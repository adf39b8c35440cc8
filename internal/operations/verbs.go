package operations

import (
	"fmt"
	"time"
)

const (
	initTimeout    = 5 * time.Minute
	planTimeout    = 5 * time.Minute
	applyTimeout   = 10 * time.Minute
	destroyTimeout = 10 * time.Minute
	buildTimeout   = 10 * time.Minute
)

// ProjectContext carries everything a verb needs to assemble its command
// sequence. RoleRef and ExternalID identify the opaque credential to assume;
// WorkDir holds the project's generated artifacts.
type ProjectContext struct {
	ProjectID  uint
	Name       string
	WorkDir    string
	RoleRef    string
	ExternalID string
	Region     string
	ImageTag   string
}

// commandsFor assembles the verb-specific command sequence. The content of
// each script is deliberately plain shell handed to the opaque sandbox; the
// orchestration core only cares about labels, ordering and timeouts.
func commandsFor(verb Verb, pctx ProjectContext) ([]Command, error) {
	switch verb {
	case VerbBuildImage:
		tag := pctx.ImageTag
		if tag == "" {
			tag = fmt.Sprintf("%s:latest", pctx.Name)
		}
		return []Command{
			{Label: "docker build", Script: fmt.Sprintf("docker build -t %s .", tag), Timeout: buildTimeout},
			{Label: "docker push", Script: fmt.Sprintf("docker push %s", tag), Timeout: buildTimeout},
		}, nil
	case VerbPlan:
		return []Command{
			{Label: "terraform init", Script: "terraform init -no-color -input=false", Timeout: initTimeout},
			{Label: "terraform plan", Script: "terraform plan -no-color -input=false", Timeout: planTimeout},
		}, nil
	case VerbApply:
		return []Command{
			{Label: "terraform init", Script: "terraform init -no-color -input=false", Timeout: initTimeout},
			{Label: "terraform apply", Script: "terraform apply -auto-approve -no-color -input=false", Timeout: applyTimeout},
		}, nil
	case VerbDestroy:
		return []Command{
			{Label: "terraform init", Script: "terraform init -no-color -input=false", Timeout: initTimeout},
			{Label: "terraform destroy", Script: "terraform destroy -auto-approve -no-color -input=false", Timeout: destroyTimeout},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
}
