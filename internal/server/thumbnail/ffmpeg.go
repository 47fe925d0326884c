package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
)

// FFmpegExtractor grabs a poster frame by running the ffmpeg binary.
type FFmpegExtractor struct {
	// Binary defaults to "ffmpeg" from PATH.
	Binary string
	// At is the seek position, e.g. "00:00:01". Short clips fall back to the
	// first frame.
	At string
}

var execCommand = exec.CommandContext

func (e FFmpegExtractor) ExtractFrame(ctx context.Context, path string) (image.Image, error) {
	at := e.At
	if at == "" {
		at = "00:00:01"
	}

	img, err := e.frameAt(ctx, path, at)
	if err == nil || at == "0" {
		return img, err
	}
	return e.frameAt(ctx, path, "0")
}

func (e FFmpegExtractor) frameAt(ctx context.Context, path, at string) (image.Image, error) {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	var out, stderr bytes.Buffer
	cmd := execCommand(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-ss", at, "-i", path,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if out.Len() == 0 {
		return nil, errors.New("ffmpeg: no frame produced")
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: decode frame: %w", err)
	}
	return img, nil
}
