package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
)

// ErrNoProgram indicates no speech program could be found.
var ErrNoProgram = errors.New("no speech program found (install espeak-ng, or use say on macOS)")

// Programs tried, in order, when none is configured.
var knownPrograms = []string{"say", "espeak-ng", "espeak", "spd-say"}

// CommandConfig configures a Command synthesizer.
type CommandConfig struct {
	// Program is the executable name or path. Empty means auto-detect.
	Program string `mapstructure:"program" yaml:"program"`
	// BaseWPM is the words-per-minute used for a rate of 1.0.
	BaseWPM int `mapstructure:"base_wpm" yaml:"base_wpm"`
}

// Command speaks by running a command-line speech program.
type Command struct {
	path    string
	name    string
	baseWPM int
	logger  *log.Logger

	mu      sync.Mutex
	current *process
	// paused holds across utterances: a process started while paused is
	// stopped before it gets going.
	paused bool
}

type process struct {
	cmd       *exec.Cmd
	cancelled bool
	stopped   bool
}

// NewCommand locates the speech program and returns a synthesizer for it.
func NewCommand(cfg CommandConfig, logger *log.Logger) (*Command, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.BaseWPM <= 0 {
		cfg.BaseWPM = 175
	}

	candidates := knownPrograms
	if cfg.Program != "" {
		candidates = []string{cfg.Program}
	}

	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		name := c
		if i := strings.LastIndexAny(name, `/\`); i >= 0 {
			name = name[i+1:]
		}
		logger.Debug("using speech program", "program", name, "path", path)
		return &Command{path: path, name: name, baseWPM: cfg.BaseWPM, logger: logger}, nil
	}

	if cfg.Program != "" {
		return nil, fmt.Errorf("speech program %q not found: %w", cfg.Program, ErrNoProgram)
	}
	return nil, ErrNoProgram
}

// Program returns the name of the program in use.
func (c *Command) Program() string { return c.name }

// args returns the argument list and whether text goes to stdin.
func (c *Command) args(u Utterance) ([]string, bool) {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(math.Round(float64(c.baseWPM) * rate)))

	switch c.name {
	case "say":
		args := []string{"-r", wpm}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return args, true
	case "spd-say":
		// spd-say takes a relative rate in [-100, 100] and must be told
		// to wait for the utterance to finish.
		rel := int(math.Round((rate - 1) * 100))
		rel = max(-100, min(100, rel))
		args := []string{"-w", "-r", strconv.Itoa(rel)}
		if u.Voice != "" {
			args = append(args, "-y", u.Voice)
		}
		return append(args, "--", u.Text), false
	default: // espeak, espeak-ng
		args := []string{"-s", wpm, "--stdin"}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return args, true
	}
}

// Speak implements Synthesizer.
func (c *Command) Speak(ctx context.Context, u Utterance) <-chan narration.Outcome {
	if strings.TrimSpace(u.Text) == "" {
		return done(narration.Succeeded())
	}

	args, stdin := c.args(u)
	cmd := exec.Command(c.path, args...) //nolint:gosec
	if stdin {
		cmd.Stdin = strings.NewReader(u.Text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return done(narration.Failed(narration.NewError(narration.KindSynthesis, "failed to start "+c.name, err)))
	}

	p := &process{cmd: cmd}
	c.mu.Lock()
	if prev := c.current; prev != nil {
		c.stopLocked(prev)
	}
	c.current = p
	if c.paused {
		if err := stopProcess(cmd.Process); err != nil {
			c.logger.Debug("pause new speech process", "err", err)
		} else {
			p.stopped = true
		}
	}
	c.mu.Unlock()

	out := make(chan narration.Outcome, 1)
	waited := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopLocked(p)
			c.mu.Unlock()
		case <-waited:
		}
	}()

	go func() {
		err := cmd.Wait()
		close(waited)

		c.mu.Lock()
		cancelled := p.cancelled
		if c.current == p {
			c.current = nil
		}
		c.mu.Unlock()

		switch {
		case cancelled:
			out <- narration.Cancelled()
		case err != nil:
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = c.name + " exited with an error"
			}
			out <- narration.Failed(narration.NewError(narration.KindSynthesis, msg, err))
		default:
			out <- narration.Succeeded()
		}
	}()

	return out
}

// Pause stops the running speech process, and any started before Resume.
func (c *Command) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
	p := c.current
	if p == nil || p.stopped {
		return nil
	}
	if err := stopProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("pause %s: %w", c.name, err)
	}
	p.stopped = true
	return nil
}

// Resume continues a paused speech process.
func (c *Command) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	p := c.current
	if p == nil || !p.stopped {
		return nil
	}
	if err := continueProcess(p.cmd.Process); err != nil {
		return fmt.Errorf("resume %s: %w", c.name, err)
	}
	p.stopped = false
	return nil
}

// Cancel kills the running utterance, if any, and clears a pause.
func (c *Command) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	if c.current != nil {
		c.stopLocked(c.current)
	}
}

func (c *Command) stopLocked(p *process) {
	if p.cancelled {
		return
	}
	p.cancelled = true
	if p.stopped {
		_ = continueProcess(p.cmd.Process)
		p.stopped = false
	}
	if err := p.cmd.Process.Kill(); err != nil {
		c.logger.Debug("kill speech process", "err", err)
	}
}

var _ Synthesizer = (*Command)(nil)
