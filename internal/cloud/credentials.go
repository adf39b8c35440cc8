package cloud

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credentials are the temporary keys obtained by assuming a role in the
// user's account. They are injected into the sandbox environment and must
// never be logged.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// Env renders the credentials as environment variable assignments for the
// sandbox process.
func (c Credentials) Env() []string {
	env := []string{
		fmt.Sprintf("AWS_ACCESS_KEY_ID=%s", c.AccessKeyID),
		fmt.Sprintf("AWS_SECRET_ACCESS_KEY=%s", c.SecretAccessKey),
	}
	if c.SessionToken != "" {
		env = append(env, fmt.Sprintf("AWS_SESSION_TOKEN=%s", c.SessionToken))
	}
	if c.Region != "" {
		env = append(env, fmt.Sprintf("AWS_DEFAULT_REGION=%s", c.Region))
	}
	return env
}

// CredentialBroker assumes a role identified by an opaque credential
// reference. IAM mechanics live entirely behind this seam.
type CredentialBroker interface {
	Assume(ctx context.Context, roleRef, externalID string) (Credentials, error)
}

// EnvBroker resolves credentials from the process environment. It serves
// local runs and tests; a real deployment swaps in an STS-backed broker.
type EnvBroker struct {
	Region string
}

func (b EnvBroker) Assume(_ context.Context, roleRef, _ string) (Credentials, error) {
	if strings.TrimSpace(roleRef) == "" {
		return Credentials{}, errors.New("deployment role is not configured")
	}
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return Credentials{}, errors.New("cloud credentials are not available in the environment")
	}
	return Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Region:          b.Region,
	}, nil
}

// StaticBroker returns fixed credentials; used in tests.
type StaticBroker struct {
	Creds Credentials
	Err   error
}

func (b StaticBroker) Assume(context.Context, string, string) (Credentials, error) {
	return b.Creds, b.Err
}
