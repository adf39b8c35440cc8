package operations

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// Command is one step of a verb's command sequence.
type Command struct {
	Label   string
	Script  string
	Timeout time.Duration
}

// Sandbox is the opaque isolated-execution capability: run one command,
// stream its output lines, return the exit code. Everything else about the
// execution environment is the implementation's business.
type Sandbox interface {
	Run(ctx context.Context, workDir string, env []string, cmd Command, onLine func(string)) (int, error)
}

// LocalSandbox executes commands as child processes on the host. It is the
// development implementation of the Sandbox capability; production swaps in
// a remote isolated executor behind the same interface.
type LocalSandbox struct {
	Shell string
}

func NewLocalSandbox() *LocalSandbox {
	return &LocalSandbox{Shell: "bash"}
}

func (s *LocalSandbox) Run(ctx context.Context, workDir string, env []string, cmd Command, onLine func(string)) (int, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, s.Shell, "-c", cmd.Script)
	proc.Dir = workDir
	proc.Env = env

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := proc.Start(); err != nil {
		return -1, err
	}

	// Both streams feed the same ordered sink; the mutex keeps whole lines
	// intact without buffering beyond one line.
	var mu sync.Mutex
	emit := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		onLine(line)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			emit(scanner.Text())
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			emit(scanner.Text())
		}
	}()
	wg.Wait()

	err = proc.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}
