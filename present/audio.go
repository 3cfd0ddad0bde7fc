package present

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CueNewOrder is the audio cue played when an order is placed.
const CueNewOrder = "new-order"

// Player plays a named audio cue.
type Player interface {
	Play(ctx context.Context, cue string) error
}

// NopPlayer is a Player for hosts without audio.
type NopPlayer struct{}

// Play does nothing.
func (NopPlayer) Play(context.Context, string) error { return nil }

// CommandPlayer plays cues by running an external command. Each occurrence of
// "{cue}" in the arguments is replaced by the cue name, so
// "paplay /usr/share/sounds/{cue}.wav" plays new-order.wav.
type CommandPlayer struct {
	name string
	args []string
}

// NewCommandPlayer parses a command line such as "paplay {cue}.wav".
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty audio command")
	}
	return &CommandPlayer{name: fields[0], args: fields[1:]}, nil
}

// Play runs the command and waits for it to finish.
func (p *CommandPlayer) Play(ctx context.Context, cue string) error {
	args := make([]string, len(p.args))
	for i, a := range p.args {
		args[i] = strings.ReplaceAll(a, "{cue}", cue)
	}
	out, err := exec.CommandContext(ctx, p.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("play %s: %w (output: %s)", cue, err, strings.TrimSpace(string(out)))
	}
	return nil
}
