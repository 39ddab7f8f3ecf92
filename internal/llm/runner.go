package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// ErrProcessFailed reports a nonzero subprocess exit that was not a
// retryable transport failure. The caller drops the agent session.
var ErrProcessFailed = errors.New("llm subprocess failed")

// transportErrorRe matches stderr diagnostics that warrant exactly one
// silent retry of the turn.
var transportErrorRe = regexp.MustCompile(`(?i)ECONNRESET|connection reset|socket hang up|websocket[: ]+(?:reset|close)`)

// cacheTTLWarningRe matches the provider's prompt-cache TTL warning,
// logged at most once per agent.
var cacheTTLWarningRe = regexp.MustCompile(`(?i)cache.{0,20}ttl`)

// terminationGrace is how long a timed-out subprocess gets between
// SIGTERM and SIGKILL.
const terminationGrace = 2 * time.Second

// maxScanTokenSize bounds one NDJSON line (large tool results).
const maxScanTokenSize = 4 * 1024 * 1024

// Session is the per-agent LLM session handle. The thread id is empty
// until the first subprocess reports one; the active subprocess handle
// is nil between turns.
type Session struct {
	Agent        models.AgentID
	SystemPrompt string
	Model        string

	mu          sync.Mutex
	threadID    string
	cmd         *exec.Cmd
	cacheWarned bool
}

// ThreadID returns the provider thread id, or "" before the first turn.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// DropThread clears the provider thread id so the next turn starts a
// fresh LLM thread (thread compaction).
func (s *Session) DropThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = ""
}

func (s *Session) setThreadID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = id
}

func (s *Session) setCmd(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = cmd
}

// Terminate sends a graceful termination to the active subprocess, if
// any. Used on session stop.
func (s *Session) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

// TurnStats carries per-turn accounting from the subprocess stream.
type TurnStats struct {
	DurationMs int64
	CostUSD    float64
	TimedOut   bool
	Retried    bool
}

// Runner spawns one subprocess per agent turn.
type Runner struct {
	Binary    string        // LLM CLI binary, e.g. "llm"
	Profile   string        // optional --profile for first turns
	Overrides []string      // -c key=val config overrides
	Timeout   time.Duration // per-turn wall clock
}

// NewRunner creates a turn runner with the given CLI settings.
func NewRunner(binary, profile string, overrides []string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = models.AgentTimeout
	}
	return &Runner{Binary: binary, Profile: profile, Overrides: overrides, Timeout: timeout}
}

// RunTurn executes one agent turn: spawn, stream, parse. A recognized
// transport error on stderr triggers exactly one retry. A timeout or a
// response that fails shape validation resolves the turn with a nil
// response and no error; a non-transport subprocess failure returns
// ErrProcessFailed.
func (r *Runner) RunTurn(ctx context.Context, session *Session, prompt string) (*models.AgentResponse, TurnStats, error) {
	response, stats, transportFailure, err := r.runOnce(ctx, session, prompt)
	if transportFailure && ctx.Err() == nil {
		logger.Warn("Transport error from LLM subprocess, retrying turn once", logger.Fields{
			"agent": string(session.Agent),
		})
		response, stats, _, err = r.runOnce(ctx, session, prompt)
		stats.Retried = true
	}
	return response, stats, err
}

// runOnce is one subprocess lifetime. The subprocess never outlives the
// call: on any exit its stdin is closed, stderr drained, and the
// process reaped.
func (r *Runner) runOnce(ctx context.Context, session *Session, prompt string) (*models.AgentResponse, TurnStats, bool, error) {
	var stats TurnStats

	threadID := session.ThreadID()
	args := r.buildArgs(session.Model, threadID)

	cmd := exec.Command(r.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, stats, false, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, stats, false, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, stats, false, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, stats, false, fmt.Errorf("start %s: %w", r.Binary, err)
	}
	session.setCmd(cmd)
	defer session.setCmd(nil)

	// The persona rides on the first prompt of a fresh thread; resumed
	// threads already carry it provider-side.
	fullPrompt := prompt
	if threadID == "" && session.SystemPrompt != "" {
		fullPrompt = session.SystemPrompt + "\n\n" + prompt
	}
	go func() {
		_, _ = io.WriteString(stdin, fullPrompt+"\n")
		_ = stdin.Close()
	}()

	var transportFailure atomic.Bool
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		r.drainStderr(session, stderr, &transportFailure)
	}()

	var timedOut atomic.Bool
	timer := time.AfterFunc(r.Timeout, func() {
		timedOut.Store(true)
		terminate(cmd)
	})
	defer timer.Stop()

	cancelWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			terminate(cmd)
		case <-cancelWatch:
		}
	}()

	text, state, sawDone := r.consumeStdout(session, stdout, &stats)
	close(cancelWatch)
	<-stderrDone
	waitErr := cmd.Wait()

	if state.ThreadID != "" {
		session.setThreadID(state.ThreadID)
	}

	if timedOut.Load() {
		stats.TimedOut = true
		logger.Warn("Agent turn timed out", logger.Fields{
			"agent":      string(session.Agent),
			"timeout_ms": r.Timeout.Milliseconds(),
		})
		return nil, stats, false, nil
	}
	if transportFailure.Load() {
		return nil, stats, true, nil
	}
	if waitErr != nil && !sawDone {
		return nil, stats, false, fmt.Errorf("%w: %v", ErrProcessFailed, waitErr)
	}

	response, parseErr := ParseResponse(text)
	if parseErr != nil {
		logger.Warn("Agent response failed to parse", logger.Fields{
			"agent": string(session.Agent),
			"error": parseErr.Error(),
		})
		return nil, stats, false, nil
	}
	return response, stats, false, nil
}

// consumeStdout streams NDJSON lines through MapEvent, accumulating
// assistant text until a terminal event.
func (r *Runner) consumeStdout(session *Session, stdout io.Reader, stats *TurnStats) (string, ParseState, bool) {
	var text strings.Builder
	var state ParseState
	sawDone := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		events, next, done, fragments := MapEvent(scanner.Bytes(), state)
		state = next
		for _, fragment := range fragments {
			text.WriteString(fragment)
		}
		for _, event := range events {
			switch event.Kind {
			case EventStatusDone:
				if event.DurationMs > 0 {
					stats.DurationMs = event.DurationMs
				}
				if event.CostUSD > 0 {
					stats.CostUSD = event.CostUSD
				}
			case EventError:
				logger.Warn("LLM stream error event", logger.Fields{
					"agent": string(session.Agent),
					"error": event.ErrMessage,
				})
			case EventToolUse:
				logger.Debug("LLM tool call", logger.Fields{
					"agent": string(session.Agent),
					"tool":  event.ToolName,
				})
			}
		}
		if done {
			sawDone = true
			break
		}
	}
	// Drain any remainder so the subprocess can exit.
	_, _ = io.Copy(io.Discard, stdout)

	return text.String(), state, sawDone
}

// drainStderr logs diagnostics and flags recognized transport errors.
func (r *Runner) drainStderr(session *Session, stderr io.Reader, transportFailure *atomic.Bool) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if transportErrorRe.MatchString(line) {
			transportFailure.Store(true)
			continue
		}
		if cacheTTLWarningRe.MatchString(line) {
			session.mu.Lock()
			warned := session.cacheWarned
			session.cacheWarned = true
			session.mu.Unlock()
			if !warned {
				logger.Warn("LLM prompt cache TTL warning", logger.Fields{
					"agent": string(session.Agent),
					"line":  line,
				})
			}
			continue
		}
		logger.Debug("LLM stderr", logger.Fields{
			"agent": string(session.Agent),
			"line":  line,
		})
	}
}

// buildArgs assembles the CLI argument vector:
// exec [--profile P] [--model M] [-c key=val]* [- | resume THREAD_ID -]
func (r *Runner) buildArgs(model, threadID string) []string {
	args := []string{"exec"}
	if threadID == "" && r.Profile != "" {
		args = append(args, "--profile", r.Profile)
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	for _, override := range r.Overrides {
		args = append(args, "-c", override)
	}
	if threadID != "" {
		args = append(args, "resume", threadID, "-")
	} else {
		args = append(args, "-")
	}
	return args
}

// terminate asks the subprocess to exit, escalating to SIGKILL after a
// short grace.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	time.AfterFunc(terminationGrace, func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
		}
	})
}
