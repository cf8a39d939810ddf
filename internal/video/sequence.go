package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImageFile reports whether name has an extension ImageSequence reads.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// ImageSequence reads a directory of still images as a video, in lexical
// file name order. Frame dimensions are taken from the first file.
type ImageSequence struct {
	fsys   fsutil.FileSystem
	dir    string
	files  []string
	width  int
	height int

	next   int
	first  image.Image
	closed bool
}

var _ pipeline.FrameSource = (*ImageSequence)(nil)

// OpenImageSequence lists dir and decodes the first frame to learn the frame
// size. An empty directory is a *heatmap.ResourceError.
func OpenImageSequence(fsys fsutil.FileSystem, dir string) (*ImageSequence, error) {
	names, err := fsys.ListDir(dir)
	if err != nil {
		return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + dir, Err: err}
	}
	var files []string
	for _, n := range names {
		if IsImageFile(n) {
			files = append(files, filepath.Join(dir, n))
		}
	}
	if len(files) == 0 {
		return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + dir, Err: errors.New("no image frames found")}
	}

	s := &ImageSequence{fsys: fsys, dir: dir, files: files}
	first, err := s.decode(files[0])
	if err != nil {
		return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + dir, Err: err}
	}
	b := first.Bounds()
	s.width, s.height, s.first = b.Dx(), b.Dy(), first
	monitoring.Logf("[video] image sequence %s: %d frames, %dx%d", dir, len(files), s.width, s.height)
	return s, nil
}

func (s *ImageSequence) Width() int      { return s.width }
func (s *ImageSequence) Height() int     { return s.height }
func (s *ImageSequence) FrameCount() int { return len(s.files) }

// Next decodes the next file. It returns io.EOF after the last file.
func (s *ImageSequence) Next(ctx context.Context) (image.Image, error) {
	if s.closed {
		return nil, errors.New("video: image sequence closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	idx := s.next
	s.next++
	if idx == 0 && s.first != nil {
		img := s.first
		s.first = nil
		return img, nil
	}
	return s.decode(s.files[idx])
}

// Close releases the sequence. Further reads fail.
func (s *ImageSequence) Close() error {
	s.closed = true
	s.first = nil
	return nil
}

func (s *ImageSequence) decode(path string) (image.Image, error) {
	f, err := s.fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// PNGSequence writes every frame as <dir>/<prefix>_<index>.png.
type PNGSequence struct {
	fsys    fsutil.FileSystem
	dir     string
	prefix  string
	written int
}

var _ pipeline.FrameSink = (*PNGSequence)(nil)

// NewPNGSequence creates dir if needed.
func NewPNGSequence(fsys fsutil.FileSystem, dir, prefix string) (*PNGSequence, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, &heatmap.ResourceError{Resource: "output", Op: "create " + dir, Err: err}
	}
	if prefix == "" {
		prefix = "frame"
	}
	return &PNGSequence{fsys: fsys, dir: dir, prefix: prefix}, nil
}

// Path returns the file name used for frame index.
func (p *PNGSequence) Path(index int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s_%06d.png", p.prefix, index))
}

// WriteFrame encodes f to its numbered file.
func (p *PNGSequence) WriteFrame(_ context.Context, f pipeline.Frame) error {
	w, err := p.fsys.Create(p.Path(f.Index))
	if err != nil {
		return err
	}
	if err := imaging.Encode(w, f.Image, imaging.PNG); err != nil {
		w.Close()
		return fmt.Errorf("encode frame %d: %w", f.Index, err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	p.written++
	return nil
}

// Written returns the number of frames written.
func (p *PNGSequence) Written() int { return p.written }

func (p *PNGSequence) Close() error {
	monitoring.Logf("[video] wrote %d frames to %s", p.written, p.dir)
	return nil
}
