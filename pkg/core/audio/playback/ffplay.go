package playback

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// FFPlay plays clips by piping them into an ffplay process.
type FFPlay struct {
	Path     string // default "ffplay"
	LogLevel string // default "error"
	Volume   int    // 0-100, default 80
	Logger   *slog.Logger
}

// Prepare implements Player. The process is not spawned until Start.
func (p FFPlay) Prepare(clip Clip) (Handle, error) {
	if len(clip.Audio) == 0 {
		return nil, fmt.Errorf("playback: empty clip")
	}
	path := strings.TrimSpace(p.Path)
	if path == "" {
		path = "ffplay"
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ffplayHandle{path: path, args: p.args(clip), audio: clip.Audio, logger: logger}, nil
}

func (p FFPlay) args(clip Clip) []string {
	level := strings.TrimSpace(p.LogLevel)
	if level == "" {
		level = "error"
	}
	vol := p.Volume
	if vol <= 0 {
		vol = 80
	}
	args := []string{
		"-hide_banner",
		"-loglevel", level,
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", strconv.Itoa(vol),
	}
	if clip.Format == "pcm" {
		rate := clip.SampleRate
		if rate <= 0 {
			rate = 24000
		}
		// ffplay takes -ch_layout rather than ffmpeg's -ac.
		args = append(args, "-f", "s16le", "-ch_layout", "mono", "-ar", strconv.Itoa(rate))
	}
	return append(args, "-i", "-")
}

type ffplayHandle struct {
	path   string
	args   []string
	audio  []byte
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool
	stopped bool
}

func (h *ffplayHandle) Start(onComplete func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrStopped
	}
	if h.started {
		return nil
	}

	cmd := exec.Command(h.path, h.args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL may otherwise pick a dummy backend with no sound.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	cmd.Stdin = bytes.NewReader(h.audio)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	h.cmd = cmd
	h.started = true

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		stopped := h.stopped
		h.stopped = true
		h.mu.Unlock()
		if stopped {
			return
		}
		if err != nil {
			h.logger.Warn("ffplay exited", "error", err)
		}
		if onComplete != nil {
			onComplete()
		}
	}()
	return nil
}

func (h *ffplayHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}
