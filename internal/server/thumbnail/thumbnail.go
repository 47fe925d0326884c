// Package thumbnail derives small JPEG previews from uploaded images and
// video posters. It works on the plaintext spooled to disk during upload and
// knows nothing about encryption or storage.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "other"
	}
}

var (
	imageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	videoExt = map[string]bool{
		".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".mkv": true,
		".avi": true, ".mpeg": true, ".mpg": true, ".3gp": true, ".ogv": true,
	}
)

// KindFromName classifies a file by its extension.
func KindFromName(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExt[ext]:
		return KindImage
	case videoExt[ext]:
		return KindVideo
	default:
		return KindOther
	}
}

var (
	ErrUnsupported = errors.New("thumbnail: unsupported source")
	ErrTooLarge    = errors.New("thumbnail: source too large")
)

// maxPixels guards against decompression bombs.
const maxPixels = 64 << 20

const jpegQuality = 80

// FrameExtractor pulls one representative frame out of a video file.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string) (image.Image, error)
}

type Generator struct {
	width     int
	maxSource int64
	frames    FrameExtractor
}

// New returns a generator producing previews at most width pixels wide.
// Sources larger than maxSource bytes are skipped; zero disables the limit.
// frames may be nil, in which case videos get no poster.
func New(width int, maxSource int64, frames FrameExtractor) *Generator {
	if width <= 0 {
		width = 320
	}
	return &Generator{width: width, maxSource: maxSource, frames: frames}
}

// MaxSource is the largest source the generator accepts, zero meaning any.
func (g *Generator) MaxSource() int64 { return g.maxSource }

// Generate returns a JPEG preview of the file at spoolPath.
func (g *Generator) Generate(ctx context.Context, kind Kind, spoolPath string) ([]byte, error) {
	var (
		src image.Image
		err error
	)

	switch kind {
	case KindImage:
		src, err = g.decodeImage(spoolPath)
	case KindVideo:
		if g.frames == nil {
			return nil, ErrUnsupported
		}
		src, err = g.frames.ExtractFrame(ctx, spoolPath)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, g.scale(src), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("thumbnail: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if g.maxSource > 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if fi.Size() > g.maxSource {
			return nil, ErrTooLarge
		}
	}

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, ErrTooLarge
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, nil
}

// scale keeps the aspect ratio; images narrower than the target are not enlarged.
func (g *Generator) scale(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > g.width {
		h = h * g.width / w
		w = g.width
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
