package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vidscale/internal/config"
	"vidscale/internal/history"
	"vidscale/internal/runconfig"
	"vidscale/internal/services"
	"vidscale/internal/testsupport"
	"vidscale/internal/worker"
)

func TestRootHelpListsCommands(t *testing.T) {
	out, _, err := runCLI(t, []string{"--help"}, "")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"run", "plan", "catalog", "history", "doctor", "config"} {
		requireContains(t, out, name)
	}
}

func TestCatalogCommandListsResolutions(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithArtifacts(
		"cunet_weight.pth",
		"unet_trt_weight_fp16_1280X720_v1.pth",
		"unet_trt_weight_fp16_1280X243_v1.pth",
		"unet_trt_weight_fp16_1920X1080_v1.pth",
		"short_name.pth",
	))

	out, _, err := runCLI(t, []string{"catalog"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	requireContains(t, out, env.cfg.Paths.ArtifactDir)
	requireContains(t, out, "1280")
	requireContains(t, out, "243, 720")
	requireContains(t, out, "1920")
	requireContains(t, out, "Skipped 1 file(s)")
	requireContains(t, out, "short_name.pth")
}

func TestCatalogCommandEmptyDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"catalog"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	requireContains(t, out, "No resolution artifacts found.")
}

func TestPlanCommandWithExplicitDimensions(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithArtifacts(
		"unet_trt_weight_fp16_1280X720_v1.pth",
		"unet_trt_weight_fp16_1280X243_v1.pth",
	))

	out, _, err := runCLI(t, []string{"plan", "--width", "1280", "--height", "720"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "1280x720")
	requireContains(t, out, "1280X720 (present)")
	requireContains(t, out, "1280X243 (present)")
	requireContains(t, out, "243")

	out, _, err = runCLI(t, []string{"plan", "--width", "1280", "--height", "720", "--scale", "1.5"}, env.configPath)
	if err != nil {
		t.Fatalf("plan --scale: %v", err)
	}
	requireContains(t, out, "960x540")
	requireContains(t, out, "960X540 (missing)")
}

func TestPlanCommandReportsGeneratorLimit(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"plan", "--width", "2000", "--height", "1200"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "exceeds the generator limit of 1920x1080")
}

func TestPlanCommandRequiresSource(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"plan"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDoctorReportsMissingInference(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	requireContains(t, out, "== Tools ==")
	requireContains(t, out, "== Paths ==")
	requireContains(t, out, "FFmpeg:")
	requireContains(t, out, "[OK]")
	requireContains(t, out, "Inference:")
	requireContains(t, out, "[ERROR] binary \"upscale-stub\" not found")
}

func TestRunCommandRejectsUnsupportedContainer(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	input := filepath.Join(env.baseDir, "media", "clip.flv")
	testsupport.WriteFile(t, input, 32)
	output := filepath.Join(env.baseDir, "media", "clip_2x.mp4")

	out, _, err := runCLI(t, []string{"run", input, output}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if code := services.ExitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	requireContains(t, out, "Validate stage failed (exit 2)")

	store := testsupport.MustOpenHistory(t, env.cfg)
	runs, err := store.ListRuns(t.Context(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != history.StatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	requireContains(t, out, "Run ID: "+runs[0].ID)
}

func TestRunCommandRejectsSameInputAndOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "clip.mp4")

	_, _, err := runCLI(t, []string{"run", input, input}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWorkerCommandRunsJob(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "part0.mp4")
	output := filepath.Join(dir, "part0_res.mp4")
	testsupport.WriteFile(t, input, 16)
	script := testsupport.WriteExecutable(t, filepath.Join(dir, "bin", "upscale"), "#!/bin/sh\ncp \"$2\" \"$4\"\n")

	job := worker.Job{
		Index:       0,
		RunID:       "run-1",
		ArtifactDir: dir,
		Params: runconfig.Params{
			InputPath:        input,
			OutputPath:       output,
			Scale:            2,
			Adjust:           1,
			PartitionOffsets: [3]int{2, -1, -1},
			VideoFormat:      "mp4",
		},
		Inference: worker.Command{Command: script, Args: []string{"--input", "{input}", "--output", "{output}"}},
		Logging:   worker.LogSettings{Format: "json", Level: "error"},
	}
	jobPath := filepath.Join(dir, "part0.job.toml")
	if err := worker.WriteJob(jobPath, job); err != nil {
		t.Fatalf("WriteJob: %v", err)
	}

	out, _, err := runCLI(t, []string{"worker", "--job", jobPath}, "")
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	requireContains(t, out, "segment 0 upscaled")
	if info, err := os.Stat(output); err != nil || info.Size() != 16 {
		t.Fatalf("expected copied output, stat err=%v", err)
	}
}

func TestWorkerCommandMissingJob(t *testing.T) {
	_, _, err := runCLI(t, []string{"worker", "--job", filepath.Join(t.TempDir(), "absent.toml")}, "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestResolveRunPathsExpands(t *testing.T) {
	dir := t.TempDir()
	in, out, err := resolveRunPaths(filepath.Join(dir, "a", "..", "in.mp4"), filepath.Join(dir, "out.mp4"))
	if err != nil {
		t.Fatalf("resolveRunPaths: %v", err)
	}
	if in != filepath.Join(dir, "in.mp4") || out != filepath.Join(dir, "out.mp4") {
		t.Fatalf("unexpected paths %q %q", in, out)
	}
	if expanded, _ := config.ExpandPath(in); expanded != in {
		t.Fatalf("expected stable expansion, got %q", expanded)
	}
}
