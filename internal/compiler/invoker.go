package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pendergraft/verifactory/internal/observability/metrics"
)

// Invoker compiles a single standard-json input.
type Invoker interface {
	Compile(ctx context.Context, inv Invocation) (*Output, error)
}

// BinaryResolver finds the executable for a compiler version.
type BinaryResolver interface {
	Lookup(t Toolchain, v Version) (string, error)
}

// ExecInvoker runs installed compiler binaries in --standard-json mode.
// Each run gets its own temporary working directory, and the number of
// concurrent runs is bounded.
type ExecInvoker struct {
	resolver BinaryResolver
	sem      *semaphore.Weighted
	tempDir  string
	logger   *slog.Logger
}

// ExecOption configures an ExecInvoker.
type ExecOption func(*ExecInvoker)

// WithTempDir sets the parent directory for per-compilation workspaces.
func WithTempDir(dir string) ExecOption {
	return func(e *ExecInvoker) {
		e.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExecOption {
	return func(e *ExecInvoker) {
		e.logger = logger
	}
}

// NewExecInvoker creates an invoker. maxConcurrency <= 0 means one
// compilation per CPU.
func NewExecInvoker(resolver BinaryResolver, maxConcurrency int, opts ...ExecOption) *ExecInvoker {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}
	e := &ExecInvoker{
		resolver: resolver,
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile implements Invoker.
func (e *ExecInvoker) Compile(ctx context.Context, inv Invocation) (*Output, error) {
	bin, err := e.resolver.Lookup(inv.Toolchain, inv.Version)
	if err != nil {
		return nil, err
	}
	payload, err := inv.Input.Encode(inv.Toolchain)
	if err != nil {
		return nil, fmt.Errorf("encoding compiler input: %w", err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	workDir, err := os.MkdirTemp(e.tempDir, "compile-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	done := metrics.CompilationStarted(string(inv.Toolchain))
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--standard-json")
	cmd.Dir = workDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		done("canceled")
		return nil, ctx.Err()
	}
	// Compilers report input errors inside the JSON output, sometimes with a
	// non-zero exit code, so only fail here when there is nothing to parse.
	if runErr != nil && stdout.Len() == 0 {
		done("error")
		return nil, fmt.Errorf("running %s %s: %w: %s", inv.Toolchain, inv.Version, runErr, strings.TrimSpace(stderr.String()))
	}

	out, err := ParseOutput(stdout.Bytes(), inv.Input)
	if err != nil {
		var compileErr *CompilationError
		if runErr != nil && !errors.As(err, &compileErr) {
			// A failed run that printed plain text instead of JSON.
			err = &CompilationError{Messages: crashMessages(runErr, stdout.String(), stderr.String())}
		}
		done(statusOf(err))
		return nil, err
	}
	done("ok")

	e.logger.Debug("compiled",
		"toolchain", inv.Toolchain,
		"version", inv.Version.String(),
		"language", inv.Input.Language,
		"artifacts", len(out.Artifacts),
		"duration", time.Since(start),
	)
	return out, nil
}

func statusOf(err error) string {
	var compileErr *CompilationError
	if errors.As(err, &compileErr) {
		return "compile_error"
	}
	return "error"
}

func crashMessages(runErr error, stdout, stderr string) []string {
	messages := []string{runErr.Error()}
	for _, text := range []string{stdout, stderr} {
		if text = strings.TrimSpace(text); text != "" {
			messages = append(messages, text)
		}
	}
	return messages
}
