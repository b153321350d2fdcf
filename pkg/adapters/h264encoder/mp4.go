package h264encoder

import (
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// timescale is the MP4 track timescale in ticks per second.
const timescale = 90000

// NAL unit types used when splitting the elementary stream.
const (
	nalIDR = 5
	nalSPS = 7
	nalPPS = 8
	nalAUD = 9
)

// accessUnit is one encoded picture.
type accessUnit struct {
	nalus      [][]byte
	isKeyframe bool
}

// splitAccessUnits splits an Annex B stream into access units. Each picture
// starts with an access unit delimiter.
func splitAccessUnits(stream []byte) []accessUnit {
	var aus []accessUnit
	var cur accessUnit
	hasSlice := false

	flush := func() {
		if hasSlice {
			aus = append(aus, cur)
		}
		cur = accessUnit{}
		hasSlice = false
	}

	for _, nalu := range parseAnnexB(stream) {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case nalAUD:
			flush()
			continue
		case nalIDR:
			cur.isKeyframe = true
			hasSlice = true
		case 1, 2, 3, 4:
			hasSlice = true
		}
		cur.nalus = append(cur.nalus, nalu)
	}
	flush()
	return aus
}

// buildMP4 writes a fragmented MP4 holding aus, each presented at the matching
// entry of timestamps.
func buildMP4(w io.Writer, width, height int, aus []accessUnit, timestamps []time.Duration, fps int) error {
	if len(aus) == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		fps = 30
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "en")
	trak := init.Moov.Trak

	sps, pps, err := extractSPSPPS(aus)
	if err != nil {
		return fmt.Errorf("extract SPS/PPS: %w", err)
	}
	avcC, err := mp4.CreateAvcC([][]byte{sps}, [][]byte{pps}, true)
	if err != nil {
		return fmt.Errorf("create avcC: %w", err)
	}

	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(width), uint16(height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	frag, err := mp4.CreateFragment(1, trak.Tkhd.TrackID)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}

	defaultDur := uint32(timescale / fps)
	for i, au := range aus {
		decodeTime := toTicks(timestamps[i])

		dur := defaultDur
		if i < len(aus)-1 {
			if next := toTicks(timestamps[i+1]); next > decodeTime {
				dur = uint32(next - decodeTime)
			} else {
				// Same presentation time as the next picture.
				dur = 1
			}
		}

		flags := mp4.NonSyncSampleFlags
		if au.isKeyframe {
			flags = mp4.SyncSampleFlags
		}

		data := toAVCC(au.nalus)
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(data)),
				Dur:   dur,
			},
			DecodeTime: decodeTime,
			Data:       data,
		})
	}

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(w); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(w); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	if err := frag.Encode(w); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	return nil
}

func toTicks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * timescale / uint64(time.Second)
}

// extractSPSPPS returns the first SPS and PPS found in keyframes.
func extractSPSPPS(aus []accessUnit) (sps, pps []byte, err error) {
	for _, au := range aus {
		if !au.isKeyframe {
			continue
		}
		for _, nalu := range au.nalus {
			switch nalu[0] & 0x1F {
			case nalSPS:
				if sps == nil {
					sps = append([]byte(nil), nalu...)
				}
			case nalPPS:
				if pps == nil {
					pps = append([]byte(nil), nalu...)
				}
			}
		}
		if sps != nil && pps != nil {
			return sps, pps, nil
		}
	}

	if sps == nil {
		return nil, nil, fmt.Errorf("SPS not found")
	}
	return nil, nil, fmt.Errorf("PPS not found")
}

// parseAnnexB parses Annex B byte stream into individual NAL units.
func parseAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0

	for i < len(data) {
		// Look for start code (0x00 0x00 0x01 or 0x00 0x00 0x00 0x01)
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 {
			startCodeLen := 0
			if data[i+2] == 1 {
				startCodeLen = 3
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				startCodeLen = 4
			}

			if startCodeLen > 0 {
				if i > start {
					nalus = append(nalus, data[start:i])
				}
				i += startCodeLen
				start = i
				continue
			}
		}
		i++
	}

	if start < len(data) {
		nalus = append(nalus, data[start:])
	}

	return nalus
}

// toAVCC length-prefixes NAL units. Parameter sets live in avcC and are skipped.
func toAVCC(nalus [][]byte) []byte {
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}

	out := make([]byte, 0, size)
	for _, nalu := range nalus {
		switch nalu[0] & 0x1F {
		case nalSPS, nalPPS, nalAUD:
			continue
		}
		n := len(nalu)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, nalu...)
	}
	return out
}
