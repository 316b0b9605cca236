// Package process runs external database tools and classifies their failures.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// maxStderr bounds how much diagnostic output is kept per run.
const maxStderr = 64 * 1024

// Spec describes one invocation.
type Spec struct {
	Path string
	Args []string
	// Env is appended to the parent environment. Secrets go here, never in Args.
	Env []string
	// StdoutFile, when set, is created exclusively and receives stdout.
	StdoutFile string
	// StdinFile, when set, is opened and fed to stdin.
	StdinFile string
}

type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Start launches the process and returns without waiting for it.
func (r *Runner) Start(ctx context.Context, spec Spec) (*Handle, error) {
	tool := toolName(spec.Path)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = 5 * time.Second

	stderr := &boundedBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if spec.StdoutFile != "" {
		out, err := os.OpenFile(spec.StdoutFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
		if err != nil {
			return nil, domain.NewError(domain.KindFileSystem, tool, "failed to create output file", err)
		}
		files = append(files, out)
		cmd.Stdout = out
	} else {
		cmd.Stdout = stderr
	}

	if spec.StdinFile != "" {
		in, err := os.Open(spec.StdinFile)
		if err != nil {
			closeFiles()
			return nil, domain.NewError(domain.KindFileSystem, tool, "failed to open input file", err)
		}
		files = append(files, in)
		cmd.Stdin = in
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		closeFiles()
		if spec.StdoutFile != "" {
			_ = os.Remove(spec.StdoutFile)
		}
		return nil, classifyStartError(ctx, tool, err)
	}

	h := &Handle{done: make(chan struct{})}
	go func() {
		waitErr := cmd.Wait()
		closeFiles()

		res := domain.ProcessResult{
			ExitCode: cmd.ProcessState.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
			Duration: time.Since(started),
		}
		h.result, h.err = res, classifyWaitError(ctx, tool, res, waitErr)
		close(h.done)
	}()

	return h, nil
}

// Run starts the process and waits for it.
func (r *Runner) Run(ctx context.Context, spec Spec) (domain.ProcessResult, error) {
	h, err := r.Start(ctx, spec)
	if err != nil {
		return domain.ProcessResult{ExitCode: -1}, err
	}
	return h.Wait()
}

// Handle is a started process. It implements domain.Process.
type Handle struct {
	done   chan struct{}
	result domain.ProcessResult
	err    error
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Wait() (domain.ProcessResult, error) {
	<-h.done
	return h.result, h.err
}

func classifyStartError(ctx context.Context, tool string, err error) error {
	if ctx.Err() != nil {
		return domain.NewError(domain.KindToolExecutionFailed, tool, "cancelled before start", err)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return domain.NewError(domain.KindToolNotFound, tool, "executable not found", err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return domain.NewError(domain.KindToolNotFound, tool, "executable is not runnable", err)
	}
	return domain.NewError(domain.KindToolNotFound, tool, "failed to start", err)
}

func classifyWaitError(ctx context.Context, tool string, res domain.ProcessResult, err error) error {
	if err == nil {
		return nil
	}

	msg := res.Stderr
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = strings.TrimSpace("timed out " + msg)
	case errors.Is(ctx.Err(), context.Canceled):
		msg = strings.TrimSpace("cancelled " + msg)
	case msg == "":
		msg = fmt.Sprintf("exited with code %d", res.ExitCode)
	}
	return domain.NewError(domain.KindToolExecutionFailed, tool, msg, err)
}

func toolName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
