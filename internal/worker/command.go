package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/voxlab/agentcore/internal/agent"
	"github.com/voxlab/agentcore/internal/config"
	"github.com/voxlab/agentcore/internal/intent"
)

// CommandWorker runs a configured CLI once per invocation. Stdout lines
// stream out as chunks while the process runs; the final Outcome
// carries the full output. Cancelling the context kills the process
// group.
type CommandWorker struct {
	name    string
	command string
	args    []string
	procMgr *ProcessManager
}

// commandResult is the optional JSON envelope a worker command may emit
// as its last stdout line. Commands that print plain text skip it; the
// whole stdout becomes the payload then.
type commandResult struct {
	Success *bool  `json:"success,omitempty"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewCommandWorker creates a worker backed by the configured command.
// pm is optional; without it subprocesses aren't tracked for shutdown.
func NewCommandWorker(cfg config.WorkerConfig, pm *ProcessManager) *CommandWorker {
	return &CommandWorker{
		name:    cfg.Name,
		command: cfg.Command,
		args:    cfg.Args,
		procMgr: pm,
	}
}

// Name returns the worker's registry name.
func (w *CommandWorker) Name() string {
	return w.name
}

// Execute runs the command without streaming.
func (w *CommandWorker) Execute(ctx context.Context, task agent.Task, snap intent.Snapshot) agent.Outcome {
	return w.ExecuteStream(ctx, task, snap, nil)
}

// ExecuteStream runs the command, emitting each stdout line as a chunk
// before returning the final outcome. The task's input is passed to the
// subprocess as one JSON document on stdin.
func (w *CommandWorker) ExecuteStream(ctx context.Context, task agent.Task, snap intent.Snapshot, progress agent.ProgressFunc) agent.Outcome {
	stdin, err := json.Marshal(map[string]interface{}{
		"step_id":  task.StepID,
		"plan_id":  task.PlanID,
		"type":     string(task.Type),
		"input":    task.Input,
		"attempt":  task.Attempt,
		"language": snap.Language,
	})
	if err != nil {
		return agent.Failure(agent.KindInvalidInput, fmt.Sprintf("encoding task input: %v", err))
	}

	cmd := newCommand(ctx, w.command, w.args...)
	cmd.Stdin = bytes.NewReader(stdin)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return agent.Failure(agent.KindInternal, fmt.Sprintf("stdout pipe: %v", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return agent.Failure(agent.KindInternal, fmt.Sprintf("stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return agent.Failure(agent.KindUnavailable, fmt.Sprintf("command %q not found", w.command))
		}
		return agent.Failure(agent.KindUnavailable, fmt.Sprintf("starting %q: %v", w.command, err))
	}

	if w.procMgr != nil {
		w.procMgr.Track(cmd)
		defer w.procMgr.Untrack(cmd)
	}

	// Drain both pipes concurrently so the subprocess can't deadlock on
	// a full pipe buffer before cmd.Wait.
	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	seq := 0

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			if progress != nil {
				progress(agent.Chunk{Seq: seq, Payload: line})
				seq++
			}
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return agent.Failure(agent.KindTimeout, "command killed at deadline")
			}
			return agent.Failure(agent.KindCancelled, "command cancelled")
		}
		detail := waitErr.Error()
		if stderrBuf.Len() > 0 {
			detail = fmt.Sprintf("%v (stderr: %s)", waitErr, stderrBuf.String())
		}
		return agent.Failure(agent.KindInternal, detail)
	}

	return outcomeFromOutput(stdoutBuf.Bytes())
}

// outcomeFromOutput interprets the command's stdout. If the last line
// is a commandResult envelope it wins; otherwise the raw output is the
// payload.
func outcomeFromOutput(stdout []byte) agent.Outcome {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	last := lines[len(lines)-1]

	var result commandResult
	if err := json.Unmarshal(last, &result); err == nil && result.Success != nil {
		if !*result.Success {
			return agent.Failure(agent.KindInternal, result.Error)
		}
		payload := result.Payload
		if payload == "" {
			payload = string(stdout)
		}
		return agent.Outcome{Success: true, Payload: payload}
	}

	return agent.Outcome{Success: true, Payload: string(stdout)}
}
