// Package command runs an external inference program for each job.
//
// The program receives the job as JSON on stdin and runs inside the job's
// scratch directory. It reports back with JSON lines on stdout:
//
//	{"progress": 40}
//	{"artifact": "output.png", "contentType": "image/png", "metadata": {"width": 1024}}
//	{"error": "CUDA out of memory"}
//
// Lines that are not JSON objects are logged and otherwise ignored. A relative
// artifact path is resolved against the scratch directory.
package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/errors"
)

var commandContext = exec.CommandContext

// requiredInputs lists the payload fields each model cannot run without
var requiredInputs = map[string][]string{
	"zimage":  {"prompt"},
	"wav2lip": {"videoUrl", "audioUrl"},
	"ltx2":    {"imageUrl"},
}

// RequiredInputs returns the payload fields a queue's jobs must carry
func RequiredInputs(queue string) []string {
	return requiredInputs[core.ModelName(queue)]
}

// Options configures the command executor
type Options struct {
	// Command is the program and its arguments
	Command []string
	// ModelPath is exported to the program as MODEL_PATH and must exist
	// when it looks like a local path
	ModelPath string
	// Env holds extra KEY=VALUE entries for the program
	Env []string
	// Required overrides the model's required payload fields
	Required []string
	// WaitDelay bounds how long output pipes are drained after the program
	// is killed
	WaitDelay time.Duration
}

// Executor runs Options.Command once per job
type Executor struct {
	queue   string
	options Options
}

// New creates an executor for jobs of the given queue
func New(queue string, options Options) *Executor {
	if options.Required == nil {
		options.Required = RequiredInputs(queue)
	}
	if options.WaitDelay == 0 {
		options.WaitDelay = 5 * time.Second
	}
	return &Executor{queue: queue, options: options}
}

// Validate checks that the program resolves and the model path exists
func (e *Executor) Validate() error {
	if len(e.options.Command) == 0 || strings.TrimSpace(e.options.Command[0]) == "" {
		return fmt.Errorf("%w: executor command is empty", errors.ErrInvalidConfig)
	}
	if _, err := exec.LookPath(e.options.Command[0]); err != nil {
		return fmt.Errorf("executor command %q: %w", e.options.Command[0], err)
	}
	if isLocalPath(e.options.ModelPath) {
		if _, err := os.Stat(e.options.ModelPath); err != nil {
			return fmt.Errorf("model path: %w", err)
		}
	}
	return nil
}

// model paths may also be hub identifiers such as "Tongyi-MAI/Z-Image-Turbo"
func isLocalPath(path string) bool {
	return strings.HasPrefix(path, "/") || strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../")
}

type request struct {
	JobID      string                 `json:"jobId"`
	Queue      string                 `json:"queue"`
	Model      string                 `json:"model"`
	ScratchDir string                 `json:"scratchDir"`
	Payload    map[string]interface{} `json:"payload"`
}

type event struct {
	Progress    *float64               `json:"progress"`
	Artifact    string                 `json:"artifact"`
	ContentType string                 `json:"contentType"`
	Metadata    map[string]interface{} `json:"metadata"`
	Error       string                 `json:"error"`
}

// Execute runs the program for one task
func (e *Executor) Execute(ctx context.Context, task *core.Task) (*core.Artifact, error) {
	for _, field := range e.options.Required {
		if !task.Payload.Has(field) {
			return nil, fmt.Errorf("%w: %s", errors.ErrMissingInput, field)
		}
	}
	if len(e.options.Command) == 0 {
		return nil, fmt.Errorf("%w: executor command is empty", errors.ErrInvalidConfig)
	}

	input, err := json.Marshal(request{
		JobID:      task.JobID,
		Queue:      task.Queue,
		Model:      core.ModelName(task.Queue),
		ScratchDir: task.ScratchDir,
		Payload:    task.Payload,
	})
	if err != nil {
		return nil, errors.NewSerializationError("payload", err)
	}

	cmd := commandContext(ctx, e.options.Command[0], e.options.Command[1:]...) //nolint:gosec
	cmd.Dir = task.ScratchDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = e.options.WaitDelay
	cmd.Env = append(cmd.Environ(), e.options.Env...)
	cmd.Env = append(cmd.Env,
		"JOB_ID="+task.JobID,
		"QUEUE_NAME="+task.Queue,
		"SCRATCH_DIR="+task.ScratchDir,
	)
	if e.options.ModelPath != "" {
		cmd.Env = append(cmd.Env, "MODEL_PATH="+e.options.ModelPath)
	}

	var stderr tailBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", filepath.Base(e.options.Command[0]), err)
	}

	artifact := &core.Artifact{}
	var reported string

	skipped, readErr := eachLine(stdout, func(line []byte) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return
		}
		var ev event
		if line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			slog.Debug("Executor output", "job", task.JobID, "line", string(line))
			return
		}
		if ev.Progress != nil {
			task.ReportProgress(int(*ev.Progress))
		}
		if ev.Artifact != "" {
			artifact.Path = ev.Artifact
			artifact.ContentType = ev.ContentType
		}
		if ev.Metadata != nil {
			if artifact.Metadata == nil {
				artifact.Metadata = make(map[string]interface{}, len(ev.Metadata))
			}
			for k, v := range ev.Metadata {
				artifact.Metadata[k] = v
			}
		}
		if ev.Error != "" {
			reported = ev.Error
		}
	})
	if readErr != nil {
		// keep the pipe drained so the program can exit
		_, _ = io.Copy(io.Discard, stdout)
	}
	if skipped > 0 {
		slog.Warn("Executor output line too long", "job", task.JobID, "lines", skipped, "limit", maxLineSize)
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, failure(reported, stderr.LastLine(), err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read executor output: %w", readErr)
	}
	if reported != "" {
		return nil, stdErrors.New(reported)
	}
	if artifact.Path == "" {
		return nil, errors.ErrEmptyArtifactPath
	}
	if !filepath.IsAbs(artifact.Path) {
		artifact.Path = filepath.Join(task.ScratchDir, artifact.Path)
	}

	return artifact, nil
}

const maxLineSize = 1024 * 1024

// eachLine calls fn for every line read from r until EOF. Lines longer than
// maxLineSize are discarded and counted.
func eachLine(r io.Reader, fn func(line []byte)) (int, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var (
		line    []byte
		tooLong bool
		skipped int
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}

		if tooLong {
			skipped++
		} else if len(line) > 0 {
			fn(line)
		}
		line = line[:0]
		tooLong = false

		if err == io.EOF {
			return skipped, nil
		}
		if err != nil {
			return skipped, err
		}
	}
}

func failure(reported, stderr string, err error) error {
	switch {
	case reported != "":
		return fmt.Errorf("%s: %w", reported, err)
	case stderr != "":
		return fmt.Errorf("%s: %w", stderr, err)
	default:
		return err
	}
}

// tailBuffer keeps the last few KiB written to it
type tailBuffer struct {
	buf []byte
}

const tailSize = 4096

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailSize {
		t.buf = t.buf[len(t.buf)-tailSize:]
	}
	return len(p), nil
}

// LastLine returns the last non-empty line written
func (t *tailBuffer) LastLine() string {
	lines := strings.Split(strings.TrimSpace(string(t.buf)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
