// Package summary produces plain-text digests of an objective's progress.
// An external command may generate the text; when it is not configured,
// fails or times out, a deterministic local renderer is used instead.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/okr"
)

// Outcomes reported to the observer passed to NewService.
const (
	OutcomeNoData    = "no_data"
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
	OutcomeDisabled  = "disabled"
)

// Payload is the input handed to a Summarizer.
type Payload struct {
	Objective *okr.Objective `json:"objective"`
	Updates   []*okr.Update  `json:"updates"`
}

// Summarizer generates summary text from a payload.
type Summarizer interface {
	Summarize(ctx context.Context, p Payload) (string, error)
}

// ErrEmptySummary is returned when a summarizer produced no text.
var ErrEmptySummary = errors.New("summarizer returned no summary")

// CommandSummarizer runs an external program that reads the JSON payload on
// stdin and prints {"summary": "...", "error": "..."} on stdout.
type CommandSummarizer struct {
	argv    []string
	timeout time.Duration
}

// NewCommandSummarizer creates a summarizer running argv. argv must not be
// empty.
func NewCommandSummarizer(argv []string, timeout time.Duration) *CommandSummarizer {
	return &CommandSummarizer{argv: argv, timeout: timeout}
}

type commandResult struct {
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

// Summarize runs the command. The process is killed when the timeout or ctx
// expires.
func (c *CommandSummarizer) Summarize(ctx context.Context, p Payload) (string, error) {
	input, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding summarizer payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("summarizer timed out after %s: %w", c.timeout, ctx.Err())
		}
		return "", fmt.Errorf("running summarizer: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var res commandResult
	if out := bytes.TrimSpace(stdout.Bytes()); len(out) > 0 {
		if err := json.Unmarshal(out, &res); err != nil {
			return "", fmt.Errorf("decoding summarizer output: %w", err)
		}
	}
	if res.Error != "" {
		slog.Warn("summarizer reported an error", "error", res.Error)
	}
	if strings.TrimSpace(res.Summary) == "" {
		return "", ErrEmptySummary
	}
	return res.Summary, nil
}

// Service chooses between the external summarizer and the local renderer.
type Service struct {
	summarizer Summarizer
	observe    func(outcome string)
}

// NewService creates a Service. summarizer may be nil, in which case every
// summary is rendered locally. observe, if set, receives one outcome per
// call.
func NewService(summarizer Summarizer, observe func(outcome string)) *Service {
	return &Service{summarizer: summarizer, observe: observe}
}

// Generate returns a summary of the objective and its updates. It never
// fails: problems with the external summarizer are logged and the local
// renderer is used.
func (s *Service) Generate(ctx context.Context, o *okr.Objective, updates []*okr.Update) string {
	if !HasData(o, updates) {
		s.report(OutcomeNoData)
		return NoDataMessage
	}

	if s.summarizer == nil {
		s.report(OutcomeDisabled)
		return RenderFallback(o, updates, ReasonDisabled)
	}

	text, err := s.summarizer.Summarize(ctx, Payload{Objective: o, Updates: updates})
	if err == nil {
		s.report(OutcomeGenerated)
		return text
	}

	slog.Error("summarizer failed, using local renderer", "error", err)
	s.report(OutcomeFallback)
	return RenderFallback(o, updates, ReasonUnavailable)
}

func (s *Service) report(outcome string) {
	if s.observe != nil {
		s.observe(outcome)
	}
}
