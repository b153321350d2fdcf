// Package mjpegencoder writes step clips as Motion JPEG in fragmented MP4.
//
// It needs no external tools. Each frame is compressed to JPEG as it arrives
// and samples are flushed to disk in small fragments, so a clip interrupted by
// a crash still holds everything up to the last fragment.
package mjpegencoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/stepcast/pkg/pixconv"
	"github.com/user/stepcast/pkg/ports"
	"golang.org/x/image/draw"
)

const (
	timescale = 90000

	// samplesPerFragment bounds how many frames sit in memory before a flush.
	samplesPerFragment = 12

	defaultQuality = 75
)

var (
	// ErrFinished is returned when frames are sent after Finish or Abort.
	ErrFinished = errors.New("mjpegencoder: encoder already finished")

	// ErrFrameSize is returned when a frame buffer does not match the encoder size.
	ErrFrameSize = errors.New("mjpegencoder: frame size mismatch")
)

// Factory creates MJPEG encoders. It implements ports.EncoderFactory.
type Factory struct {
	Options ports.EncoderOptions
	Logger  ports.Logger
}

// NewFactory creates a factory.
func NewFactory(opts ports.EncoderOptions, logger ports.Logger) *Factory {
	return &Factory{Options: opts, Logger: logger}
}

// Create opens path+".partial" and writes the init segment.
func (f *Factory) Create(width, height int, path string) (ports.VideoEncoder, error) {
	outW, outH := width, height
	if f.Options.MaxWidth > 0 && width > f.Options.MaxWidth {
		outW = f.Options.MaxWidth
		outH = height * f.Options.MaxWidth / width
		if outH < 1 {
			outH = 1
		}
	}

	fps := f.Options.FPS
	if fps <= 0 {
		fps = 30
	}
	quality := f.Options.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	if quality > 100 {
		quality = 100
	}

	partial := path + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	e := &Encoder{
		path:    path,
		partial: partial,
		width:   width,
		height:  height,
		outW:    outW,
		outH:    outH,
		fps:     fps,
		quality: quality,
		file:    file,
		w:       bufio.NewWriter(file),
		logger:  f.Logger.WithComponent("mjpeg"),
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "en")
	trak := init.Moov.Trak
	e.trackID = trak.Tkhd.TrackID

	jpegEntry := mp4.CreateVisualSampleEntryBox("jpeg", uint16(outW), uint16(outH), nil)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(jpegEntry)
	trak.Tkhd.Width = mp4.Fixed32(outW << 16)
	trak.Tkhd.Height = mp4.Fixed32(outH << 16)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "mp41"})
	if err := ftyp.Encode(e.w); err != nil {
		e.discard()
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(e.w); err != nil {
		e.discard()
		return nil, fmt.Errorf("encode moov: %w", err)
	}

	e.logger.Debug("Opened %s: %dx%d -> %dx%d, quality %d", filepath.Base(path), width, height, outW, outH, quality)
	return e, nil
}

// Extension returns "mp4".
func (f *Factory) Extension() string { return "mp4" }

// Name returns "mjpeg".
func (f *Factory) Name() string { return "mjpeg" }

// Encoder is one MJPEG clip being written.
type Encoder struct {
	path, partial string
	width, height int
	outW, outH    int
	fps, quality  int
	trackID       uint32
	logger        ports.Logger

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	seq     uint32
	pending []mp4.FullSample
	held    *mp4.FullSample // newest sample, waiting for its duration
	frames  int
	failed  error
	done    bool
}

// EncodeFrame compresses one packed BGRA frame.
func (e *Encoder) EncodeFrame(pix []byte, timestamp time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return ErrFinished
	}
	if e.failed != nil {
		return e.failed
	}
	if len(pix) != e.width*e.height*4 {
		return fmt.Errorf("%w: got %d bytes for %dx%d", ErrFrameSize, len(pix), e.width, e.height)
	}

	var img image.Image = pixconv.BGRAToImage(pix, e.width, e.height)
	if e.outW != e.width || e.outH != e.height {
		dst := image.NewRGBA(image.Rect(0, 0, e.outW, e.outH))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}

	decodeTime := toTicks(timestamp)
	if e.held != nil {
		if decodeTime <= e.held.DecodeTime {
			decodeTime = e.held.DecodeTime + 1
		}
		e.held.Dur = uint32(decodeTime - e.held.DecodeTime)
		e.pending = append(e.pending, *e.held)
	}

	data := buf.Bytes()
	e.held = &mp4.FullSample{
		Sample: mp4.Sample{
			Flags: mp4.SyncSampleFlags,
			Size:  uint32(len(data)),
		},
		DecodeTime: decodeTime,
		Data:       data,
	}
	e.frames++

	if len(e.pending) >= samplesPerFragment {
		if err := e.flush(); err != nil {
			e.failed = fmt.Errorf("%w: %v", ports.ErrEncoderFatal, err)
			return e.failed
		}
	}
	return nil
}

// Finish flushes the remaining samples, syncs the file and renames it into place.
func (e *Encoder) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil
	}
	e.done = true

	if e.failed != nil {
		e.discard()
		return e.failed
	}
	if e.held != nil {
		e.held.Dur = uint32(timescale / e.fps)
		e.pending = append(e.pending, *e.held)
		e.held = nil
	}
	if err := e.flush(); err != nil {
		e.discard()
		return err
	}
	if err := e.w.Flush(); err != nil {
		e.discard()
		return fmt.Errorf("write output: %w", err)
	}
	if err := e.file.Sync(); err != nil {
		e.discard()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := e.file.Close(); err != nil {
		os.Remove(e.partial)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(e.partial, e.path); err != nil {
		os.Remove(e.partial)
		return fmt.Errorf("rename output: %w", err)
	}

	e.logger.Debug("Wrote %s: %d frames in %d fragments", filepath.Base(e.path), e.frames, e.seq)
	return nil
}

// Abort closes and removes the partial file.
func (e *Encoder) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil
	}
	e.done = true
	e.discard()
	return nil
}

// flush writes pending samples as one moof/mdat pair.
func (e *Encoder) flush() error {
	if len(e.pending) == 0 {
		return nil
	}

	e.seq++
	frag, err := mp4.CreateFragment(e.seq, e.trackID)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}
	for _, s := range e.pending {
		frag.AddFullSample(s)
	}
	if err := frag.Encode(e.w); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	e.pending = e.pending[:0]
	return nil
}

func (e *Encoder) discard() {
	e.file.Close()
	os.Remove(e.partial)
}

func toTicks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * timescale / uint64(time.Second)
}

var (
	_ ports.EncoderFactory = (*Factory)(nil)
	_ ports.VideoEncoder   = (*Encoder)(nil)
	_ ports.Aborter        = (*Encoder)(nil)
)
