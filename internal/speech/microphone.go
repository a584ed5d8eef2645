package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voicechat/internal/audio"
)

const defaultCaptureDuration = 8 * time.Second

// CommandMicrophone captures from the host's default input by running an
// external recorder that writes raw PCM16LE mono to stdout. With no Command
// it runs `arecord`.
type CommandMicrophone struct {
	Command    string
	Args       []string
	SampleRate int
	Duration   time.Duration
}

func (m CommandMicrophone) Open(ctx context.Context) (io.ReadCloser, int, error) {
	rate := m.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	duration := m.Duration
	if duration <= 0 {
		duration = defaultCaptureDuration
	}
	command := strings.TrimSpace(m.Command)
	args := m.Args
	if command == "" {
		command = "arecord"
		args = []string{
			"-q", "-t", "raw", "-f", "S16_LE", "-c", "1",
			"-r", strconv.Itoa(rate),
			"-d", strconv.Itoa(int((duration + time.Second - 1) / time.Second)),
		}
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, 0, fmt.Errorf("microphone command %q: %w", command, err)
	}

	cctx, cancel := context.WithTimeout(ctx, duration+time.Second)
	cmd := exec.CommandContext(cctx, command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, 0, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, 0, fmt.Errorf("start microphone command: %w", err)
	}
	return &captureStream{ReadCloser: stdout, cmd: cmd, cancel: cancel}, rate, nil
}

type captureStream struct {
	io.ReadCloser
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *captureStream) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		waitErr := c.cmd.Wait()
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			err = waitErr
		}
	})
	return err
}
