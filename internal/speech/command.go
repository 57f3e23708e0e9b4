package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrNothingToSay = errors.New("nothing to say")

// CommandSpeaker reads text aloud through a text-to-speech CLI such as
// espeak-ng or say. The text is passed as the last argument.
type CommandSpeaker struct {
	command string
	args    []string
}

func NewCommandSpeaker(commandLine string) *CommandSpeaker {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		fields = []string{"espeak-ng"}
	}
	return &CommandSpeaker{command: fields[0], args: fields[1:]}
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNothingToSay
	}

	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("speech command failed: %w: %s", err, detail)
		}
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}
