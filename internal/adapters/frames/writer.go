package frames

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/ghalamif/insightcap/internal/domain"
)

// Writer encodes 8-bit single-channel camera buffers as PNG files.
type Writer struct {
	Width  int
	Height int
	// MaxDimension downscales frames whose larger side exceeds it. Zero keeps
	// the sensor resolution.
	MaxDimension int
	Compression  png.CompressionLevel
}

// Scratch is the reusable pixel buffer owned by a camera stream handle. It must
// not be shared between concurrent writes.
type Scratch struct {
	gray   *image.Gray
	scaled *image.Gray
	buf    bytes.Buffer
	enc    png.Encoder
}

func (w Writer) NewScratch() *Scratch {
	s := &Scratch{gray: image.NewGray(image.Rect(0, 0, w.Width, w.Height))}
	s.enc.CompressionLevel = w.Compression
	return s
}

// FileName is the canonical frame name. Characters in the normalized time that
// are not portable in file names are replaced: ' ' becomes '_' and ':' becomes
// '-'.
func FileName(frameNumber uint64, at string) string {
	safe := strings.NewReplacer(" ", "_", ":", "-").Replace(at)
	return "Frame_" + strconv.FormatUint(frameNumber, 10) + "_At_" + safe + ".png"
}

// WriteFrame encodes pixels and writes them to dir. The file appears
// atomically via rename.
func (w Writer) WriteFrame(s *Scratch, dir string, frameNumber uint64, at string, pixels []byte) (string, error) {
	if want := w.Width * w.Height; len(pixels) != want {
		return "", fmt.Errorf("frame %d: %d bytes for %dx%d image", frameNumber, len(pixels), w.Width, w.Height)
	}
	if s == nil {
		s = w.NewScratch()
	}
	copy(s.gray.Pix, pixels)

	img := w.scale(s)

	s.buf.Reset()
	if err := s.enc.Encode(&s.buf, img); err != nil {
		return "", fmt.Errorf("encode frame %d: %w", frameNumber, err)
	}

	path := filepath.Join(dir, FileName(frameNumber, at))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, s.buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (w Writer) scale(s *Scratch) image.Image {
	if w.MaxDimension <= 0 {
		return s.gray
	}
	maxSide := w.Width
	if w.Height > maxSide {
		maxSide = w.Height
	}
	if maxSide <= w.MaxDimension {
		return s.gray
	}

	nw := w.Width * w.MaxDimension / maxSide
	nh := w.Height * w.MaxDimension / maxSide
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	if s.scaled == nil || s.scaled.Rect.Dx() != nw || s.scaled.Rect.Dy() != nh {
		s.scaled = image.NewGray(image.Rect(0, 0, nw, nh))
	}
	xdraw.CatmullRom.Scale(s.scaled, s.scaled.Bounds(), s.gray, s.gray.Bounds(), xdraw.Src, nil)
	return s.scaled
}

// Write stores the frame of a camera record.
func (w Writer) Write(s *Scratch, dir string, rec *domain.CameraFrameRecord) (string, error) {
	return w.WriteFrame(s, dir, rec.FrameNumber, rec.At, rec.Pixels)
}
