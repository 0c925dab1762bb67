package segmenter_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"vidscale/internal/media/ffprobe"
	"vidscale/internal/mediatool"
	"vidscale/internal/segmenter"
	"vidscale/internal/services"
	"vidscale/internal/workspace"
)

type fakeFFmpeg struct {
	segments     int
	failSplit    bool
	failAudio    bool
	failSubtitle bool
	calls        [][]string
}

func (f *fakeFFmpeg) Run(_ context.Context, _ string, args ...string) (mediatool.ExecResult, error) {
	f.calls = append(f.calls, args)
	out := args[len(args)-1]
	switch {
	case slices.Contains(args, "segment"):
		if f.failSplit {
			return mediatool.ExecResult{ExitCode: 1, Stderr: "invalid data"}, errors.New("exit status 1: invalid data")
		}
		for i := 0; i < f.segments; i++ {
			if err := os.WriteFile(fmt.Sprintf(out, i), []byte("seg"), 0o644); err != nil {
				return mediatool.ExecResult{}, err
			}
		}
	case slices.Contains(args, "0:a"):
		if f.failAudio {
			_ = os.WriteFile(out, []byte("partial"), 0o644)
			return mediatool.ExecResult{ExitCode: 1}, errors.New("exit status 1")
		}
		return mediatool.ExecResult{}, os.WriteFile(out, []byte("aac"), 0o644)
	case slices.Contains(args, "0:s:0"):
		if f.failSubtitle {
			_ = os.WriteFile(out, []byte("partial"), 0o644)
			return mediatool.ExecResult{ExitCode: 1}, errors.New("exit status 1: bitmap subtitles")
		}
		return mediatool.ExecResult{}, os.WriteFile(out, []byte("1\n"), 0o644)
	}
	return mediatool.ExecResult{}, nil
}

func newSegmenter(t *testing.T, fake *fakeFFmpeg) (*segmenter.Segmenter, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "tmp"))
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if _, err := ws.Reset(""); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return segmenter.New(ws, "ffmpeg", segmenter.WithRunner(fake)), ws
}

func TestSegmentSeconds(t *testing.T) {
	tests := []struct {
		duration float64
		parallel int
		want     int
	}{
		{10, 2, 6},
		{10, 3, 5},
		{9.2, 1, 11},
		{0.5, 4, 2},
	}
	for _, tt := range tests {
		got, err := segmenter.SegmentSeconds(tt.duration, tt.parallel)
		if err != nil {
			t.Fatalf("SegmentSeconds(%v, %d): %v", tt.duration, tt.parallel, err)
		}
		if got != tt.want {
			t.Fatalf("SegmentSeconds(%v, %d) = %d, want %d", tt.duration, tt.parallel, got, tt.want)
		}
	}

	for _, bad := range []struct {
		duration float64
		parallel int
	}{{10, 0}, {0, 2}, {-1, 2}, {math.NaN(), 2}} {
		if _, err := segmenter.SegmentSeconds(bad.duration, bad.parallel); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("SegmentSeconds(%v, %d) = %v, want validation error", bad.duration, bad.parallel, err)
		}
	}
}

func TestDescribeCoversDurationWithoutGaps(t *testing.T) {
	for _, tc := range []struct {
		duration float64
		parallel int
	}{{10, 2}, {37.4, 3}, {600, 8}, {1, 5}} {
		seconds, err := segmenter.SegmentSeconds(tc.duration, tc.parallel)
		if err != nil {
			t.Fatalf("SegmentSeconds: %v", err)
		}
		descs := segmenter.Describe(tc.duration, tc.parallel, seconds, func(i int) (string, string) { return "", "" })
		if len(descs) != tc.parallel {
			t.Fatalf("got %d descriptors, want %d", len(descs), tc.parallel)
		}
		if descs[0].Start != 0 {
			t.Fatalf("first span starts at %v", descs[0].Start)
		}
		for i := 1; i < len(descs); i++ {
			if descs[i].Start != descs[i-1].End {
				t.Fatalf("gap between %d and %d: %v != %v", i-1, i, descs[i-1].End, descs[i].Start)
			}
		}
		if last := descs[len(descs)-1].End; last != tc.duration {
			t.Fatalf("last span ends at %v, want %v", last, tc.duration)
		}
	}
}

func TestSplitTenSecondsTwoWorkers(t *testing.T) {
	fake := &fakeFFmpeg{segments: 2}
	seg, ws := newSegmenter(t, fake)

	descs, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 10, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors", len(descs))
	}
	if descs[0].Start != 0 || descs[0].End != 6 || descs[1].Start != 6 || descs[1].End != 10 {
		t.Fatalf("unexpected spans: %+v", descs)
	}
	for i, d := range descs {
		if !d.Present || d.Index != i {
			t.Fatalf("descriptor %d: %+v", i, d)
		}
		if d.InputPath != ws.SegmentPath(i, "mp4") || d.OutputPath != ws.ResultPath(i, "mp4") {
			t.Fatalf("descriptor %d paths: %+v", i, d)
		}
	}
	args := strings.Join(fake.calls[0], " ")
	if !strings.Contains(args, "-segment_time 6") || !strings.Contains(args, "-an") {
		t.Fatalf("unexpected split args: %s", args)
	}
}

func TestSplitMarksMissingTrailingSegments(t *testing.T) {
	fake := &fakeFFmpeg{segments: 2}
	seg, _ := newSegmenter(t, fake)

	descs, err := seg.Split(context.Background(), "/in/clip.mkv", "mkv", 12, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
	if !descs[0].Present || !descs[1].Present || descs[2].Present {
		t.Fatalf("unexpected presence: %+v", descs)
	}
	if got := segmenter.PresentOnly(descs); len(got) != 2 {
		t.Fatalf("PresentOnly = %d", len(got))
	}
}

func TestSplitFailures(t *testing.T) {
	t.Run("ffmpeg error", func(t *testing.T) {
		seg, _ := newSegmenter(t, &fakeFFmpeg{failSplit: true})
		_, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 10, 2)
		if !errors.Is(err, services.ErrSegmentation) {
			t.Fatalf("expected segmentation error, got %v", err)
		}
		if !strings.Contains(err.Error(), "invalid data") {
			t.Fatalf("expected stderr in error, got %v", err)
		}
	})
	t.Run("no segments", func(t *testing.T) {
		seg, _ := newSegmenter(t, &fakeFFmpeg{segments: 0})
		if _, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 10, 2); !errors.Is(err, services.ErrSegmentation) {
			t.Fatalf("expected segmentation error, got %v", err)
		}
	})
	t.Run("too many segments", func(t *testing.T) {
		seg, _ := newSegmenter(t, &fakeFFmpeg{segments: 3})
		if _, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 10, 2); !errors.Is(err, services.ErrSegmentation) {
			t.Fatalf("expected segmentation error, got %v", err)
		}
	})
	t.Run("gap", func(t *testing.T) {
		seg, ws := newSegmenter(t, &fakeFFmpeg{segments: 0})
		for _, i := range []int{0, 2} {
			if err := os.WriteFile(ws.SegmentPath(i, "mp4"), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 12, 3); !errors.Is(err, services.ErrSegmentation) {
			t.Fatalf("expected segmentation error, got %v", err)
		}
	})
	t.Run("invalid parallel", func(t *testing.T) {
		fake := &fakeFFmpeg{segments: 1}
		seg, _ := newSegmenter(t, fake)
		if _, err := seg.Split(context.Background(), "/in/clip.mp4", "mp4", 10, 0); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(fake.calls) != 0 {
			t.Fatal("ffmpeg must not run for invalid input")
		}
	})
}

func withStreams(types ...string) ffprobe.Result {
	var r ffprobe.Result
	for _, typ := range types {
		r.Streams = append(r.Streams, ffprobe.Stream{CodecType: typ})
	}
	return r
}

func TestExtractAudio(t *testing.T) {
	fake := &fakeFFmpeg{}
	seg, ws := newSegmenter(t, fake)

	ok, err := seg.ExtractAudio(context.Background(), "/in/clip.mp4", withStreams("video", "audio"))
	if err != nil || !ok {
		t.Fatalf("ExtractAudio = %v, %v", ok, err)
	}
	if _, err := os.Stat(ws.AudioPath()); err != nil {
		t.Fatalf("expected audio file: %v", err)
	}
}

func TestExtractAudioEncodesAAC(t *testing.T) {
	fake := &fakeFFmpeg{}
	seg, _ := newSegmenter(t, fake)
	probe := ffprobe.Result{Streams: []ffprobe.Stream{
		{CodecType: "video", CodecName: "vp9"},
		{CodecType: "audio", CodecName: "opus"},
		{CodecType: "audio", CodecName: "flac"},
	}}

	ok, err := seg.ExtractAudio(context.Background(), "/in/clip.mkv", probe)
	if err != nil || !ok {
		t.Fatalf("ExtractAudio = %v, %v", ok, err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(fake.calls))
	}
	args := fake.calls[0]
	if slices.Contains(args, "copy") {
		t.Fatalf("audio must not be stream copied into m4a: %v", args)
	}
	i := slices.Index(args, "-c:a")
	if i < 0 || i+1 >= len(args) || args[i+1] != mediatool.AudioCodecAAC {
		t.Fatalf("expected -c:a aac, got %v", args)
	}
}

func TestExtractAudioSkipsSilentSource(t *testing.T) {
	fake := &fakeFFmpeg{}
	seg, ws := newSegmenter(t, fake)

	ok, err := seg.ExtractAudio(context.Background(), "/in/clip.mp4", withStreams("video"))
	if err != nil || ok {
		t.Fatalf("ExtractAudio = %v, %v", ok, err)
	}
	if len(fake.calls) != 0 {
		t.Fatal("ffmpeg must not run without an audio stream")
	}
	if _, err := os.Stat(ws.AudioPath()); !os.IsNotExist(err) {
		t.Fatalf("expected no audio file, stat err = %v", err)
	}
}

func TestExtractAudioFailure(t *testing.T) {
	seg, ws := newSegmenter(t, &fakeFFmpeg{failAudio: true})
	_, err := seg.ExtractAudio(context.Background(), "/in/clip.mp4", withStreams("video", "audio"))
	if !errors.Is(err, services.ErrSegmentation) {
		t.Fatalf("expected segmentation error, got %v", err)
	}
	if _, err := os.Stat(ws.AudioPath()); !os.IsNotExist(err) {
		t.Fatal("partial audio file should be removed")
	}
}

func TestExtractSubtitle(t *testing.T) {
	seg, ws := newSegmenter(t, &fakeFFmpeg{})
	if !seg.ExtractSubtitle(context.Background(), "/in/clip.mkv", withStreams("video", "subtitle")) {
		t.Fatal("expected subtitle extracted")
	}
	if _, err := os.Stat(ws.SubtitlePath()); err != nil {
		t.Fatalf("expected subtitle file: %v", err)
	}

	none, _ := newSegmenter(t, &fakeFFmpeg{})
	if none.ExtractSubtitle(context.Background(), "/in/clip.mkv", withStreams("video")) {
		t.Fatal("no subtitle stream should yield false")
	}
}

func TestExtractSubtitleRunsOnlyWithSubtitleStream(t *testing.T) {
	fake := &fakeFFmpeg{failAudio: true}
	seg, ws := newSegmenter(t, fake)
	if _, err := seg.ExtractAudio(context.Background(), "/in/clip.mkv", withStreams("video", "audio", "subtitle")); err == nil {
		t.Fatal("expected audio failure")
	}
	if !seg.ExtractSubtitle(context.Background(), "/in/clip.mkv", withStreams("video", "audio", "subtitle")) {
		t.Fatal("subtitle extraction should not depend on the audio outcome")
	}
	if _, err := os.Stat(ws.SubtitlePath()); err != nil {
		t.Fatalf("expected subtitle file: %v", err)
	}

	bare := &fakeFFmpeg{}
	none, _ := newSegmenter(t, bare)
	none.ExtractSubtitle(context.Background(), "/in/clip.mkv", withStreams("video", "audio"))
	if len(bare.calls) != 0 {
		t.Fatalf("expected no ffmpeg invocation without a subtitle stream, got %v", bare.calls)
	}
}

func TestExtractSubtitleFailureIsNotFatal(t *testing.T) {
	seg, ws := newSegmenter(t, &fakeFFmpeg{failSubtitle: true})
	if seg.ExtractSubtitle(context.Background(), "/in/clip.mkv", withStreams("video", "subtitle")) {
		t.Fatal("failed extraction should report false")
	}
	if _, err := os.Stat(ws.SubtitlePath()); !os.IsNotExist(err) {
		t.Fatal("partial subtitle file should be removed")
	}
}
