// Package probe reads back recorded clips and reports their video track.
package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

var (
	// ErrNoVideoTrack is returned for files without a video track.
	ErrNoVideoTrack = errors.New("probe: no video track found")
)

// Info describes the video track of one clip.
type Info struct {
	Path       string        `json:"path,omitempty"`
	Codec      string        `json:"codec"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Fragmented bool          `json:"fragmented"`
	Timescale  uint32        `json:"timescale"`
	Samples    int           `json:"samples"`
	Keyframes  int           `json:"keyframes"`
	FirstTime  time.Duration `json:"first_time"`
	LastTime   time.Duration `json:"last_time"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
}

// File probes the clip at path.
func File(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := Reader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info.Path = path
	if st, err := f.Stat(); err == nil {
		info.Size = st.Size()
	}
	return info, nil
}

// Reader probes a clip read from r.
func Reader(r io.Reader) (*Info, error) {
	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	if mp4File.IsFragmented() {
		return probeFragmented(mp4File)
	}
	return probeProgressive(mp4File)
}

// sampleEntry is the codec and coded size of a video track.
type sampleEntry struct {
	codec         string
	width, height int
}

// videoTrack returns the first video track and its sample entry.
func videoTrack(traks []*mp4.TrakBox) (*mp4.TrakBox, sampleEntry) {
	for _, trak := range traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		return trak, readSampleEntry(trak)
	}
	return nil, sampleEntry{}
}

// readSampleEntry reads the first stsd child. Entries mp4ff has no decoder
// for, such as "jpeg", arrive as UnknownBox and are parsed by hand. The track
// header size is used when the entry carries none.
func readSampleEntry(trak *mp4.TrakBox) sampleEntry {
	var e sampleEntry
	if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsd != nil {
	entries:
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			switch box := child.(type) {
			case *mp4.VisualSampleEntryBox:
				e = sampleEntry{codec: box.Type(), width: int(box.Width), height: int(box.Height)}
				break entries
			case *mp4.UnknownBox:
				e.codec = box.Type()
				e.width, e.height = visualEntrySize(box.Payload())
				break entries
			}
		}
	}
	if (e.width == 0 || e.height == 0) && trak.Tkhd != nil {
		e.width = int(uint32(trak.Tkhd.Width) >> 16)
		e.height = int(uint32(trak.Tkhd.Height) >> 16)
	}
	return e
}

// visualEntrySize returns width and height from a VisualSampleEntry body:
// 24 bytes of reserved and predefined fields precede them.
func visualEntrySize(body []byte) (int, int) {
	if len(body) < 28 {
		return 0, 0
	}
	return int(binary.BigEndian.Uint16(body[24:26])), int(binary.BigEndian.Uint16(body[26:28]))
}

func newInfo(trak *mp4.TrakBox, entry sampleEntry) *Info {
	info := &Info{
		Timescale: 1000,
		Codec:     entry.codec,
		Width:     entry.width,
		Height:    entry.height,
	}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		info.Timescale = trak.Mdia.Mdhd.Timescale
	}
	return info
}

func (i *Info) toDuration(ticks uint64) time.Duration {
	return time.Duration(ticks * uint64(time.Second) / uint64(i.Timescale))
}

func probeFragmented(mp4File *mp4.File) (*Info, error) {
	if mp4File.Init == nil || mp4File.Init.Moov == nil {
		return nil, ErrNoVideoTrack
	}
	trak, entry := videoTrack(mp4File.Init.Moov.Traks)
	if trak == nil {
		return nil, ErrNoVideoTrack
	}
	trackID := trak.Tkhd.TrackID

	var trex *mp4.TrexBox
	if mp4File.Init.Moov.Mvex != nil {
		for _, t := range mp4File.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	info := newInfo(trak, entry)
	info.Fragmented = true

	var first, last, end uint64
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil || frag.Moof.Traf == nil || frag.Moof.Traf.Tfhd.TrackID != trackID {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return nil, fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				if info.Samples == 0 {
					first = s.DecodeTime
				}
				info.Samples++
				if s.IsSync() {
					info.Keyframes++
				}
				last = s.DecodeTime
				end = s.DecodeTime + uint64(s.Dur)
			}
		}
	}

	if info.Samples > 0 {
		info.FirstTime = info.toDuration(first)
		info.LastTime = info.toDuration(last)
		info.Duration = info.toDuration(end - first)
	}
	return info, nil
}

func probeProgressive(mp4File *mp4.File) (*Info, error) {
	if mp4File.Moov == nil {
		return nil, ErrNoVideoTrack
	}
	trak, entry := videoTrack(mp4File.Moov.Traks)
	if trak == nil {
		return nil, ErrNoVideoTrack
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsz == nil {
		return nil, fmt.Errorf("no sample table found")
	}
	stbl := trak.Mdia.Minf.Stbl

	info := newInfo(trak, entry)
	info.Samples = int(stbl.Stsz.SampleNumber)
	if stbl.Stss != nil {
		info.Keyframes = len(stbl.Stss.SampleNumber)
	} else {
		// Without stss every sample is a sync sample.
		info.Keyframes = info.Samples
	}

	if info.Samples > 0 && stbl.Stts != nil {
		first, _ := stbl.Stts.GetDecodeTime(1)
		last, dur := stbl.Stts.GetDecodeTime(uint32(info.Samples))
		info.FirstTime = info.toDuration(first)
		info.LastTime = info.toDuration(last)
		info.Duration = info.toDuration(last + uint64(dur) - first)
	}
	return info, nil
}
