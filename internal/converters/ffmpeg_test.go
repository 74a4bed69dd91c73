package converters

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"testing"
)

func TestProbeResultJSON(t *testing.T) {
	raw := `{
		"streams": [
			{"index": 0, "codec_type": "audio", "codec_name": "aac"},
			{"index": 1, "codec_type": "video", "codec_name": "apng", "width": 64, "height": 32}
		],
		"format": {"format_name": "apng", "duration": "1.0"}
	}`
	var r ProbeResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s, ok := r.FirstVideoStream()
	if !ok {
		t.Fatal("expected a video stream")
	}
	if s.CodecName != "apng" || s.Width != 64 || s.Height != 32 {
		t.Fatalf("unexpected stream: %+v", s)
	}
	if r.Format.FormatName != "apng" {
		t.Fatalf("unexpected container: %s", r.Format.FormatName)
	}
}

func TestFirstVideoStreamNone(t *testing.T) {
	var nilResult *ProbeResult
	if _, ok := nilResult.FirstVideoStream(); ok {
		t.Fatal("nil result must not report a stream")
	}
	r := &ProbeResult{Streams: []Stream{{CodecType: "audio", CodecName: "mp3"}}}
	if _, ok := r.FirstVideoStream(); ok {
		t.Fatal("audio-only result must not report a video stream")
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	f := NewFFmpeg("no-such-ffmpeg-binary", "no-such-ffprobe-binary")
	if _, err := f.Probe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected probe error for missing binary")
	}
	if _, err := f.EncodeIntermediate(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected encode error for missing binary")
	}
}

func TestFFmpegProbeAndEncode(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}

	m := image.NewNRGBA(image.Rect(0, 0, 24, 12))
	for x := 0; x < 24; x++ {
		for y := 0; y < 12; y++ {
			m.Set(x, y, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	f := NewFFmpeg("", "")
	res, err := f.Probe(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	s, ok := res.FirstVideoStream()
	if !ok || s.CodecName != "png" || s.Width != 24 || s.Height != 12 {
		t.Fatalf("unexpected probe result: %+v", res)
	}

	out, err := f.EncodeIntermediate(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("EncodeIntermediate returned error: %v", err)
	}
	if len(out) < 12 || string(out[0:4]) != "RIFF" || string(out[8:12]) != "WEBP" {
		t.Fatalf("intermediate is not a WebP file")
	}
}
