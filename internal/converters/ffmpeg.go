package converters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/tendant/simple-media/internal/process"
)

// FFmpeg drives the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a converter using the given binaries. Empty paths fall
// back to looking up "ffmpeg" and "ffprobe" in PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Name returns the converter name
func (f *FFmpeg) Name() string {
	return "ffmpeg"
}

// Probe feeds data to ffprobe on stdin and decodes its JSON report.
func (f *FFmpeg) Probe(ctx context.Context, data []byte) (*ProbeResult, error) {
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	// -v quiet: only the JSON report on stdout
	// -i -: read the container from stdin
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-i", "-",
	}

	out, err := process.Run(ctx, f.ffprobePath, args, data)
	if err != nil {
		return nil, err
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// EncodeIntermediate re-encodes data as lossless WebP. The output is written
// to a temporary file that is removed once ffmpeg has exited and the bytes
// have been read back.
func (f *FFmpeg) EncodeIntermediate(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	var out []byte
	err := process.WithTempFile("media-intermediate-*.webp", func(path string) error {
		// -lossless 1 -quality 0: fastest lossless WebP, keeps every frame
		// -y: the temp file already exists
		args := []string{
			"-hide_banner",
			"-loglevel", "error",
			"-i", "-",
			"-lossless", "1",
			"-quality", "0",
			"-y",
			path,
		}
		if _, err := process.Run(ctx, f.ffmpegPath, args, data); err != nil {
			return err
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read intermediate: %w", err)
		}
		if len(b) == 0 {
			return fmt.Errorf("ffmpeg produced an empty intermediate")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
