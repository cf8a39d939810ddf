//go:build gocv
// +build gocv

package gocvio

import (
	"context"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

// Available reports whether OpenCV support is compiled in.
const Available = true

// Capture decodes a video file or stream URL.
type Capture struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	width  int
	height int
	count  int
	fps    float64
	pos    int
}

var _ pipeline.FrameSource = (*Capture)(nil)

// OpenCapture opens path with the default OpenCV backend.
func OpenCapture(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + path, Err: fmt.Errorf("capture not opened")}
	}
	c := &Capture{
		vc:     vc,
		mat:    gocv.NewMat(),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		count:  int(vc.Get(gocv.VideoCaptureFrameCount)),
		fps:    vc.Get(gocv.VideoCaptureFPS),
	}
	if c.count < 0 {
		c.count = 0
	}
	monitoring.Logf("[video] opened %s: %dx%d, %d frames, %.2f fps", path, c.width, c.height, c.count, c.fps)
	return c, nil
}

func (c *Capture) Width() int      { return c.width }
func (c *Capture) Height() int     { return c.height }
func (c *Capture) FrameCount() int { return c.count }

// FPS is the container frame rate, or 0 when the backend does not know it.
func (c *Capture) FPS() float64 { return c.fps }

// FrameInterval is 1/FPS, or 0 when the rate is unknown.
func (c *Capture) FrameInterval() time.Duration {
	if c.fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.fps)
}

// Next reads one frame. A failed or empty read ends the stream, unless the
// container reported more frames than have been read, in which case the
// read is a decode failure.
func (c *Capture) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, readFailure(c.pos, c.count)
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame %d: %w", c.pos, err)
	}
	c.pos++
	return img, nil
}

func (c *Capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

// Window shows each frame in a native window. Pressing q requests a stop.
type Window struct {
	win   *gocv.Window
	delay int // milliseconds passed to WaitKey
}

var _ pipeline.FrameSink = (*Window)(nil)

// DefaultWaitKey is the per-frame key poll, long enough for the window to
// repaint.
const DefaultWaitKey = 10 * time.Millisecond

// OpenWindow creates a window titled name.
func OpenWindow(name string, wait time.Duration) (*Window, error) {
	if wait <= 0 {
		wait = DefaultWaitKey
	}
	return &Window{win: gocv.NewWindow(name), delay: int(wait / time.Millisecond)}, nil
}

func (w *Window) WriteFrame(_ context.Context, f pipeline.Frame) error {
	mat, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return fmt.Errorf("convert frame %d: %w", f.Index, err)
	}
	defer mat.Close()
	w.win.IMShow(mat)
	if key := w.win.WaitKey(w.delay); key == 'q' || key == 'Q' {
		return pipeline.ErrStopRequested
	}
	return nil
}

func (w *Window) Close() error {
	return w.win.Close()
}

// Writer encodes frames to a video file with the MJPG codec.
type Writer struct {
	vw     *gocv.VideoWriter
	path   string
	width  int
	height int
	frames int
}

var _ pipeline.FrameSink = (*Writer)(nil)

// OpenWriter creates path for width x height frames at fps.
func OpenWriter(path string, fps float64, width, height int) (*Writer, error) {
	if fps <= 0 {
		fps = 25
	}
	vw, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return nil, &heatmap.ResourceError{Resource: "output", Op: "open " + path, Err: err}
	}
	return &Writer{vw: vw, path: path, width: width, height: height}, nil
}

func (w *Writer) WriteFrame(_ context.Context, f pipeline.Frame) error {
	if b := f.Image.Bounds(); b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame %d is %dx%d, writer expects %dx%d", f.Index, b.Dx(), b.Dy(), w.width, w.height)
	}
	mat, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return fmt.Errorf("convert frame %d: %w", f.Index, err)
	}
	defer mat.Close()
	if err := w.vw.Write(mat); err != nil {
		return err
	}
	w.frames++
	return nil
}

func (w *Writer) Close() error {
	monitoring.Logf("[video] wrote %d frames to %s", w.frames, w.path)
	return w.vw.Close()
}
