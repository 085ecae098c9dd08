package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoPlayer indicates no audio player command could be found.
var ErrNoPlayer = errors.New("no audio player available")

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

type playerCommand struct {
	name string
	args []string
}

func candidatePlayers(goos string) []playerCommand {
	switch goos {
	case "darwin":
		return []playerCommand{{name: "afplay"}}
	case "windows":
		return []playerCommand{
			{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
			{name: "mpv", args: []string{"--no-video", "--really-quiet"}},
		}
	default:
		return []playerCommand{
			{name: "paplay"},
			{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
			{name: "mpg123", args: []string{"-q"}},
			{name: "mpv", args: []string{"--no-video", "--really-quiet"}},
			{name: "aplay", args: []string{"-q"}},
		}
	}
}

// ExecPlayer plays audio through an external command.
type ExecPlayer struct {
	command string
	args    []string
}

// NewExecPlayer uses command (split on whitespace) or, when empty, the first
// known player found on PATH.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		path, err := exec.LookPath(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoPlayer, fields[0], err)
		}
		return &ExecPlayer{command: path, args: fields[1:]}, nil
	}

	for _, candidate := range candidatePlayers(runtime.GOOS) {
		if path, err := exec.LookPath(candidate.name); err == nil {
			return &ExecPlayer{command: path, args: candidate.args}, nil
		}
	}
	return nil, ErrNoPlayer
}

// Command returns the resolved executable path.
func (p *ExecPlayer) Command() string {
	return p.command
}

// Play runs the player and waits for it to exit.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string{}, p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("play %s: %w: %s", path, err, msg)
		}
		return fmt.Errorf("play %s: %w", path, err)
	}
	return nil
}
