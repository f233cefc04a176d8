// Package media adapts OpenCV video I/O to the pipeline's frame and sink
// contracts. Everything cgo-bound lives here so the domain packages stay
// testable without a codec stack.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/curbsight/curbsight/internal/traffic"
	"github.com/curbsight/curbsight/internal/traffic/clip"
)

// matFrame wraps a gocv.Mat. The wrapper owns the Mat: Close releases it
// and Clone deep-copies the pixel data.
type matFrame struct {
	mat gocv.Mat
}

// NewFrame takes ownership of mat and returns it as a Frame.
func NewFrame(mat gocv.Mat) traffic.Frame {
	return &matFrame{mat: mat}
}

func (f *matFrame) Clone() traffic.Frame {
	return &matFrame{mat: f.mat.Clone()}
}

func (f *matFrame) Close() {
	f.mat.Close()
}

// Mat unwraps a Frame produced by this package.
func Mat(f traffic.Frame) (gocv.Mat, bool) {
	mf, ok := f.(*matFrame)
	if !ok {
		return gocv.Mat{}, false
	}
	return mf.mat, true
}

// VideoSource decodes frames from a video file or capture device.
type VideoSource struct {
	cap  *gocv.VideoCapture
	info traffic.StreamInfo
}

// OpenVideo opens path for decoding. fpsOverride replaces the container's
// frame rate when positive; some streams misreport it.
func OpenVideo(path string, fpsOverride float64) (*VideoSource, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %q: %w", path, err)
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	if fpsOverride > 0 {
		fps = fpsOverride
	}
	if fps <= 0 {
		cap.Close()
		return nil, fmt.Errorf("video %q: frame rate unavailable and no override given", path)
	}

	return &VideoSource{
		cap: cap,
		info: traffic.StreamInfo{
			Width:       int(cap.Get(gocv.VideoCaptureFrameWidth)),
			Height:      int(cap.Get(gocv.VideoCaptureFrameHeight)),
			FPS:         fps,
			TotalFrames: int(cap.Get(gocv.VideoCaptureFrameCount)),
		},
	}, nil
}

// Next decodes the next frame. It returns io.EOF when the stream is
// exhausted. The caller owns the returned frame.
func (s *VideoSource) Next() (traffic.Frame, error) {
	mat := gocv.NewMat()
	if ok := s.cap.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}
	return &matFrame{mat: mat}, nil
}

// Rewind seeks a file source back to the first frame.
func (s *VideoSource) Rewind() error {
	s.cap.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

// Info describes the open stream.
func (s *VideoSource) Info() traffic.StreamInfo { return s.info }

// Close releases the capture.
func (s *VideoSource) Close() error { return s.cap.Close() }

// writerSink writes clip frames through a gocv.VideoWriter.
type writerSink struct {
	w    *gocv.VideoWriter
	path string
}

func (s *writerSink) Write(f traffic.Frame) error {
	mat, ok := Mat(f)
	if !ok {
		return errors.New("frame is not a media frame")
	}
	return s.w.Write(mat)
}

func (s *writerSink) Close() error { return s.w.Close() }

func (s *writerSink) Path() string { return s.path }

// FileSinkFactory returns a clip.SinkFactory writing mp4 files named after
// the clip id under dir, sized to the stream geometry.
func FileSinkFactory(dir string, info traffic.StreamInfo) (clip.SinkFactory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory %q: %w", dir, err)
	}
	return func(clipID string) (clip.Sink, error) {
		path := filepath.Join(dir, clipID+".mp4")
		w, err := gocv.VideoWriterFile(path, "mp4v", info.FPS, info.Width, info.Height, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open clip writer %q: %w", path, err)
		}
		return &writerSink{w: w, path: path}, nil
	}, nil
}
