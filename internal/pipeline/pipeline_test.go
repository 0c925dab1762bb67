package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"vidscale/internal/config"
	"vidscale/internal/history"
	"vidscale/internal/media/ffprobe"
	"vidscale/internal/mediatool"
	"vidscale/internal/pipeline"
	"vidscale/internal/services"
	"vidscale/internal/testsupport"
	"vidscale/internal/workspace"
)

// fakeFFmpeg creates the files each ffmpeg invocation would produce.
type fakeFFmpeg struct {
	mu         sync.Mutex
	segments   int
	failConcat bool
	calls      [][]string
}

func (f *fakeFFmpeg) Run(_ context.Context, _ string, args ...string) (mediatool.ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	out := args[len(args)-1]
	switch {
	case slices.Contains(args, "segment"):
		for i := 0; i < f.segments; i++ {
			if err := os.WriteFile(fmt.Sprintf(out, i), []byte("segment"), 0o644); err != nil {
				return mediatool.ExecResult{ExitCode: 1}, err
			}
		}
	case slices.Contains(args, "concat") && f.failConcat:
		return mediatool.ExecResult{ExitCode: 1, Stderr: "concat failed"}, errors.New("exit status 1")
	default:
		if err := os.WriteFile(out, []byte("media"), 0o644); err != nil {
			return mediatool.ExecResult{ExitCode: 1}, err
		}
	}
	return mediatool.ExecResult{}, nil
}

func (f *fakeFFmpeg) called(flag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if slices.Contains(call, flag) {
			return true
		}
	}
	return false
}

func (f *fakeFFmpeg) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func probeResult(width, height int, duration string, audio, subtitle bool) ffprobe.Result {
	streams := []ffprobe.Stream{{Index: 0, CodecType: "video", CodecName: "h264", Width: width, Height: height}}
	if audio {
		streams = append(streams, ffprobe.Stream{Index: len(streams), CodecType: "audio", CodecName: "aac"})
	}
	if subtitle {
		streams = append(streams, ffprobe.Stream{Index: len(streams), CodecType: "subtitle", CodecName: "subrip"})
	}
	return ffprobe.Result{Streams: streams, Format: ffprobe.Format{Duration: duration}}
}

func staticProber(result ffprobe.Result) pipeline.Prober {
	return func(context.Context, string, string) (ffprobe.Result, error) {
		return result, nil
	}
}

const copyWorker = `#!/bin/sh
[ "$1" = worker ] || exit 9
out=$(grep 'output_path' "$3" | sed -e "s/^[^=]*= *//" -e "s/^[\"']//" -e "s/[\"']\$//")
cp "$3" "$out"
`

type fixture struct {
	cfg    *config.Config
	input  string
	output string
	ffmpeg *fakeFFmpeg
	worker string
}

func newFixture(t *testing.T, workerScript string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithParallel(2),
		testsupport.WithArtifacts(
			"unet_trt_weight_fp16_1280X720_v1.pth",
			"unet_trt_weight_fp16_1280X243_v1.pth",
		),
	)
	base := testsupport.BaseDir(cfg)
	input := filepath.Join(base, "media", "clip.mp4")
	testsupport.WriteFile(t, input, 64)
	return &fixture{
		cfg:    cfg,
		input:  input,
		output: filepath.Join(base, "media", "clip_2x.mp4"),
		ffmpeg: &fakeFFmpeg{segments: 2},
		worker: testsupport.WriteExecutable(t, filepath.Join(base, "bin", "fake-worker"), workerScript),
	}
}

func (f *fixture) pipeline(probe ffprobe.Result, opts ...pipeline.Option) *pipeline.Pipeline {
	base := []pipeline.Option{
		pipeline.WithRunner(f.ffmpeg),
		pipeline.WithProber(staticProber(probe)),
		pipeline.WithWorkerBinary(f.worker),
		pipeline.WithPreflight(func(context.Context, *config.Config) error { return nil }),
	}
	return pipeline.New(f.cfg, append(base, opts...)...)
}

func (f *fixture) request() pipeline.Request {
	return pipeline.Request{InputPath: f.input, OutputPath: f.output}
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, copyWorker)
	store := testsupport.MustOpenHistory(t, f.cfg)
	p := f.pipeline(probeResult(1280, 720, "10.0", true, true), pipeline.WithHistory(store))

	result, err := p.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(f.output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if result.Format != "mp4" || result.Params.VideoFormat != "mp4" {
		t.Fatalf("unexpected format: %q / %q", result.Format, result.Params.VideoFormat)
	}
	if result.Params.FullFrameArtifact != "1280X720" || result.Params.PartitionFrameArtifact != "1280X243" {
		t.Fatalf("plan not applied to params: %#v", result.Params)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Segments[0].Start != 0 || result.Segments[0].End != 6 || result.Segments[1].Start != 6 || result.Segments[1].End != 10 {
		t.Fatalf("unexpected spans: %#v", result.Segments)
	}
	if len(result.Workers.Results) != 2 {
		t.Fatalf("expected 2 worker results, got %d", len(result.Workers.Results))
	}
	if !result.AudioAttached || !result.SubtitleAttached {
		t.Fatalf("expected audio and subtitle attached: %#v", result)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}

	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != history.StatusSucceeded || run.Parallel != 2 || run.VideoFormat != "mp4" {
		t.Fatalf("unexpected history row: %#v", run)
	}
	segments, err := store.Segments(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 2 || segments[0].Status != history.StatusSucceeded {
		t.Fatalf("unexpected segment rows: %#v", segments)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, copyWorker)
	p := f.pipeline(probeResult(1280, 720, "10.0", true, false))

	if _, err := p.Run(context.Background(), f.request()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := p.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !second.RemovedOutput {
		t.Fatal("expected second run to replace the previous output")
	}
	if _, err := os.Stat(f.output); err != nil {
		t.Fatalf("expected output after second run: %v", err)
	}
}

func TestRunWithoutAudio(t *testing.T) {
	f := newFixture(t, copyWorker)
	p := f.pipeline(probeResult(1280, 720, "10.0", false, false))

	result, err := p.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.AudioAttached || result.SubtitleAttached {
		t.Fatalf("expected no audio or subtitle: %#v", result)
	}
	if f.ffmpeg.called("0:a") {
		t.Fatal("audio demux should be skipped for a silent source")
	}
}

func TestRunOversizeFailsBeforeSegmenting(t *testing.T) {
	f := newFixture(t, copyWorker)
	store := testsupport.MustOpenHistory(t, f.cfg)
	p := f.pipeline(probeResult(2000, 1200, "10.0", true, false), pipeline.WithHistory(store))

	result, err := p.Run(context.Background(), f.request())
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if services.ExitCode(err) != services.ExitPrecondition {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
	if f.ffmpeg.callCount() != 0 {
		t.Fatalf("expected no ffmpeg calls, got %d", f.ffmpeg.callCount())
	}
	if result.FailedStage != pipeline.StagePlan {
		t.Fatalf("failed stage = %q, want %q", result.FailedStage, pipeline.StagePlan)
	}
	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != history.StatusFailed || run.ErrorMessage == "" {
		t.Fatalf("expected failed history row, got %#v", run)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, req *pipeline.Request)
		marker error
	}{
		{
			name: "missing input",
			mutate: func(t *testing.T, f *fixture, req *pipeline.Request) {
				req.InputPath = filepath.Join(filepath.Dir(f.input), "absent.mp4")
			},
			marker: services.ErrPrecondition,
		},
		{
			name: "unsupported format",
			mutate: func(t *testing.T, f *fixture, req *pipeline.Request) {
				flv := strings.TrimSuffix(f.input, ".mp4") + ".flv"
				if err := os.Rename(f.input, flv); err != nil {
					t.Fatalf("rename input: %v", err)
				}
				req.InputPath = flv
			},
			marker: services.ErrValidation,
		},
		{
			name: "unknown override",
			mutate: func(_ *testing.T, _ *fixture, req *pipeline.Request) {
				req.Overrides = []string{"sharpness=3"}
			},
			marker: services.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, copyWorker)
			req := f.request()
			tt.mutate(t, f, &req)
			_, err := f.pipeline(probeResult(1280, 720, "10.0", true, false)).Run(context.Background(), req)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if f.ffmpeg.callCount() != 0 {
				t.Fatalf("expected no ffmpeg calls, got %d", f.ffmpeg.callCount())
			}
		})
	}
}

func TestRunRefusesOutputThatIsTheInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, req *pipeline.Request)
	}{
		{
			name: "output override",
			mutate: func(_ *testing.T, f *fixture, req *pipeline.Request) {
				req.Overrides = []string{"output_path=" + f.input}
			},
		},
		{
			name: "unclean path",
			mutate: func(_ *testing.T, f *fixture, req *pipeline.Request) {
				req.OutputPath = filepath.Join(filepath.Dir(f.input), ".", filepath.Base(f.input))
			},
		},
		{
			name: "symlink to input",
			mutate: func(t *testing.T, f *fixture, req *pipeline.Request) {
				link := filepath.Join(filepath.Dir(f.input), "link.mp4")
				if err := os.Symlink(f.input, link); err != nil {
					t.Fatalf("symlink: %v", err)
				}
				req.OutputPath = link
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, copyWorker)
			req := f.request()
			tt.mutate(t, f, &req)

			result, err := f.pipeline(probeResult(1280, 720, "10.0", true, false)).Run(context.Background(), req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if result.RemovedOutput {
				t.Fatal("reset must not run")
			}
			if info, err := os.Stat(f.input); err != nil || info.Size() != 64 {
				t.Fatalf("input must survive, stat err = %v", err)
			}
			if f.ffmpeg.callCount() != 0 {
				t.Fatalf("expected no ffmpeg calls, got %d", f.ffmpeg.callCount())
			}
		})
	}
}

func TestRunValidatesInputBeforeRemovingOutput(t *testing.T) {
	f := newFixture(t, copyWorker)
	testsupport.WriteFile(t, f.output, 8)
	req := f.request()
	req.InputPath = filepath.Join(filepath.Dir(f.input), "absent.mp4")

	result, err := f.pipeline(probeResult(1280, 720, "10.0", true, false)).Run(context.Background(), req)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if result.FailedStage != pipeline.StageValidate {
		t.Fatalf("failed stage = %q, want %q", result.FailedStage, pipeline.StageValidate)
	}
	if _, err := os.Stat(f.output); err != nil {
		t.Fatalf("existing output must be kept when validation fails: %v", err)
	}
}

func TestRunOverridesScale(t *testing.T) {
	f := newFixture(t, copyWorker)
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.ArtifactDir, "unet_trt_weight_fp16_960X540_v1.pth"), 1)
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.ArtifactDir, "unet_trt_weight_fp16_960X183_v1.pth"), 1)
	req := f.request()
	req.Overrides = []string{"scale=1.5"}

	result, err := f.pipeline(probeResult(1280, 720, "10.0", false, false)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Plan.EffectiveWidth != 960 || result.Plan.EffectiveHeight != 540 {
		t.Fatalf("unexpected effective resolution %dx%d", result.Plan.EffectiveWidth, result.Plan.EffectiveHeight)
	}
	if result.Params.Scale != 1.5 {
		t.Fatalf("scale override not applied: %v", result.Params.Scale)
	}
}

func TestRunWorkerFailure(t *testing.T) {
	f := newFixture(t, "#!/bin/sh\nexit 3\n")
	store := testsupport.MustOpenHistory(t, f.cfg)
	p := f.pipeline(probeResult(1280, 720, "10.0", true, false), pipeline.WithHistory(store))

	result, err := p.Run(context.Background(), f.request())
	if !errors.Is(err, services.ErrWorker) {
		t.Fatalf("expected worker error, got %v", err)
	}
	if services.ExitCode(err) != services.ExitWorker {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
	if result.FailedStage != pipeline.StageUpscale {
		t.Fatalf("failed stage = %q, want %q", result.FailedStage, pipeline.StageUpscale)
	}
	if _, statErr := os.Stat(f.output); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output after worker failure, stat err = %v", statErr)
	}
	if f.ffmpeg.called("concat") {
		t.Fatal("recombination should not run after a worker failure")
	}
	segments, err := store.Segments(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) == 0 {
		t.Fatal("expected worker outcomes in history")
	}
	for _, seg := range segments {
		if seg.Status == history.StatusSucceeded {
			t.Fatalf("unexpected succeeded segment: %#v", seg)
		}
	}
}

func TestRunRecombinationFailure(t *testing.T) {
	f := newFixture(t, copyWorker)
	f.ffmpeg.failConcat = true

	_, err := f.pipeline(probeResult(1280, 720, "10.0", false, false)).Run(context.Background(), f.request())
	if !errors.Is(err, services.ErrRecombination) {
		t.Fatalf("expected recombination error, got %v", err)
	}
	if services.ExitCode(err) != services.ExitRecombination {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
}

func TestRunFailsWhenWorkspaceBusy(t *testing.T) {
	f := newFixture(t, copyWorker)
	holder, err := workspace.New(f.cfg.Paths.WorkspaceDir)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer holder.Unlock()

	_, err = f.pipeline(probeResult(1280, 720, "10.0", false, false)).Run(context.Background(), f.request())
	if !errors.Is(err, workspace.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRunRequiresInferenceCommand(t *testing.T) {
	f := newFixture(t, copyWorker)
	f.cfg.Inference.Command = ""

	_, err := f.pipeline(probeResult(1280, 720, "10.0", false, false)).Run(context.Background(), f.request())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "/media/a.mp4", want: "mp4"},
		{path: "/media/a.MKV", want: "mkv"},
		{path: "clip.webm", want: "webm"},
		{path: "clip.m4v", want: "m4v"},
		{path: "clip.flv", wantErr: true},
		{path: "clip", wantErr: true},
	}
	for _, tt := range tests {
		got, err := pipeline.DetectFormat(tt.path)
		if tt.wantErr {
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("DetectFormat(%q) expected validation error, got %v", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DetectFormat(%q): %v", tt.path, err)
		}
		if got != tt.want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestBaseParamsUsesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Run.Scale = 1.5
	cfg.Run.Adjust = 3
	cfg.Run.PartitionOffsets = []int{4, 0, -2}

	params, err := pipeline.BaseParams(cfg, pipeline.Request{InputPath: " in.mp4 ", OutputPath: "out.mp4", Overrides: []string{"adjust=5"}})
	if err != nil {
		t.Fatalf("BaseParams: %v", err)
	}
	if params.InputPath != "in.mp4" || params.Scale != 1.5 || params.Adjust != 5 || params.PartitionOffsets != [3]int{4, 0, -2} {
		t.Fatalf("unexpected params: %#v", params)
	}

	if _, err := pipeline.BaseParams(cfg, pipeline.Request{InputPath: "in.mp4"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without output, got %v", err)
	}
	if _, err := pipeline.BaseParams(cfg, pipeline.Request{InputPath: "in.mp4", OutputPath: "out.mp4", Overrides: []string{"output_path=./in.mp4"}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for output naming the input, got %v", err)
	}
}
