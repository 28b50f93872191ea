package frames

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"perch/internal/logging"
)

// FFmpegSource decodes a camera URL into an MJPEG stream by running an
// ffmpeg subprocess and splitting its stdout on JPEG frame markers.
type FFmpegSource struct {
	binary    string
	url       string
	frameRate float64
	logger    *slog.Logger
}

// NewFFmpegSource builds a source for the given camera URL. frameRate is the
// decode rate in frames per second.
func NewFFmpegSource(binary, url string, frameRate float64, logger *slog.Logger) *FFmpegSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegSource{binary: binary, url: url, frameRate: frameRate, logger: logger}
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if strings.HasPrefix(s.url, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", s.url,
		"-vf", fmt.Sprintf("fps=%g", s.frameRate),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	)
	return args
}

// Open starts the ffmpeg subprocess and returns a reader over its MJPEG
// output. The process is killed when the context is cancelled or the reader
// is closed.
func (s *FFmpegSource) Open(ctx context.Context) (Reader, error) {
	cmd := exec.CommandContext(ctx, s.binary, s.args()...)

	var stderr boundedBuffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.binary, err)
	}
	s.logger.Debug("ffmpeg started",
		logging.String("url", s.url),
		logging.Int("pid", cmd.Process.Pid))

	return &mjpegReader{
		cmd:    cmd,
		stdout: stdout,
		br:     bufio.NewReaderSize(stdout, 1<<16),
		stderr: &stderr,
	}, nil
}

// mjpegReader splits a concatenated JPEG stream into frames on the SOI
// (0xFFD8) and EOI (0xFFD9) markers.
type mjpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	br     *bufio.Reader
	stderr *boundedBuffer
	seq    uint64
}

const maxFrameSize = 8 << 20

func (r *mjpegReader) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.readFrame()
	if err != nil {
		if detail := r.stderr.String(); detail != "" {
			return nil, fmt.Errorf("read frame: %w (ffmpeg: %s)", err, detail)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	r.seq++
	frame := &Frame{
		Seq:       r.seq,
		Timestamp: time.Now(),
		Data:      data,
	}
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width = cfg.Width
		frame.Height = cfg.Height
	}
	return frame, nil
}

func (r *mjpegReader) readFrame() ([]byte, error) {
	// Skip to the start-of-image marker.
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xff {
			continue
		}
		next, err := r.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == 0xd8 {
			break
		}
	}

	data := make([]byte, 0, 64<<10)
	data = append(data, 0xff, 0xd8)
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		if b == 0xff {
			next, err := r.br.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xd9 {
				return data, nil
			}
		}
		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes without end marker", maxFrameSize)
		}
	}
}

func (r *mjpegReader) Close() error {
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.stdout.Close()
	_ = r.cmd.Wait()
	return nil
}

// boundedBuffer keeps the tail of ffmpeg's stderr for error context without
// growing unboundedly on a chatty stream. exec writes from its own
// goroutine, so access is locked.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const maxStderrBytes = 4 << 10

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len()+len(p) > maxStderrBytes {
		drop := b.buf.Len() + len(p) - maxStderrBytes
		if drop >= b.buf.Len() {
			b.buf.Reset()
		} else {
			b.buf.Next(drop)
		}
	}
	if len(p) > maxStderrBytes {
		p = p[len(p)-maxStderrBytes:]
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
