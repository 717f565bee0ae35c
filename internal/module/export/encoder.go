package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reelforge/server/internal/shared/storage"
)

// Encoder renders an export job into a finished file in owned storage and
// returns the output key. The progress callback receives 0-100.
type Encoder interface {
	Encode(ctx context.Context, job *Job, onProgress func(int)) (string, error)
}

// FFmpegEncoder shells out to ffmpeg to concatenate and transcode clips. It
// downloads sources from object storage into a scratch directory, renders,
// and uploads the result.
type FFmpegEncoder struct {
	store        storage.ObjectStore
	ffmpegPath   string
	ffprobePath  string
	workDir      string
	outputPrefix string
	logger       *zap.Logger
}

// NewFFmpegEncoder creates a new ffmpeg encoder. ffprobe is resolved next to
// the configured ffmpeg binary.
func NewFFmpegEncoder(store storage.ObjectStore, ffmpegPath, workDir, outputPrefix string, logger *zap.Logger) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := "ffprobe"
	if dir := filepath.Dir(ffmpegPath); dir != "." {
		ffprobePath = filepath.Join(dir, "ffprobe")
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	if outputPrefix == "" {
		outputPrefix = "exports"
	}
	return &FFmpegEncoder{
		store:        store,
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		workDir:      workDir,
		outputPrefix: outputPrefix,
		logger:       logger,
	}
}

// Encode implements Encoder.
func (e *FFmpegEncoder) Encode(ctx context.Context, job *Job, onProgress func(int)) (string, error) {
	scratch, err := os.MkdirTemp(e.workDir, "export-"+job.ID.String()+"-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	localPaths, totalSize, err := e.download(ctx, job, scratch)
	if err != nil {
		return "", err
	}
	e.logger.Debug("export sources staged",
		zap.String("job_id", job.ID.String()),
		zap.Int("clips", len(localPaths)),
		zap.Int64("bytes", totalSize))
	onProgress(10)

	listPath := filepath.Join(scratch, "concat.txt")
	if err := writeConcatList(listPath, localPaths); err != nil {
		return "", err
	}

	format := job.Options.Format
	if format == "" {
		format = "mp4"
	}
	outPath := filepath.Join(scratch, "output."+format)

	totalUs := e.probeTotalMicros(localPaths)
	if err := e.run(ctx, job, listPath, outPath, totalUs, onProgress); err != nil {
		return "", err
	}
	onProgress(90)

	outputKey := e.outputKeyFor(job, format)
	if err := e.upload(ctx, outPath, outputKey, format); err != nil {
		return "", err
	}
	onProgress(100)

	return outputKey, nil
}

// outputKeyFor honors a caller-supplied output key and otherwise derives one
// from the project and job IDs.
func (e *FFmpegEncoder) outputKeyFor(job *Job, format string) string {
	if job.OutputKey != "" {
		return job.OutputKey
	}
	return fmt.Sprintf("%s/%s/%s.%s", e.outputPrefix, job.ProjectID, job.ID.String(), format)
}

func (e *FFmpegEncoder) download(ctx context.Context, job *Job, scratch string) ([]string, int64, error) {
	paths := make([]string, 0, len(job.SourceKeys))
	var total int64

	for i, key := range job.SourceKeys {
		body, size, err := e.store.Get(ctx, key)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch source %s: %w", key, err)
		}

		local := filepath.Join(scratch, fmt.Sprintf("clip_%03d%s", i, filepath.Ext(key)))
		f, err := os.Create(local)
		if err != nil {
			body.Close()
			return nil, 0, fmt.Errorf("create local clip: %w", err)
		}
		if _, err := f.ReadFrom(body); err != nil {
			f.Close()
			body.Close()
			return nil, 0, fmt.Errorf("write local clip: %w", err)
		}
		f.Close()
		body.Close()

		paths = append(paths, local)
		total += size
	}

	return paths, total, nil
}

func (e *FFmpegEncoder) run(ctx context.Context, job *Job, listPath, outPath string, totalUs int64, onProgress func(int)) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	if job.Options.AudioRef != "" {
		args = append(args, "-i", job.Options.AudioRef, "-shortest")
	}

	codec := job.Options.Codec
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-c:v", codec, "-pix_fmt", "yuv420p")
	if job.Options.Preset != "" {
		args = append(args, "-preset", job.Options.Preset)
	}
	if job.Options.Quality != "" {
		args = append(args, "-crf", job.Options.Quality)
	}
	if job.Options.Resolution != "" {
		args = append(args, "-s", job.Options.Resolution)
	}
	if job.Options.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(job.Options.FrameRate))
	}
	if job.Options.VideoBitrateKbps > 0 {
		args = append(args, "-b:v", strconv.Itoa(job.Options.VideoBitrateKbps)+"k")
	}
	if job.Options.AudioCodec != "" {
		args = append(args, "-c:a", job.Options.AudioCodec)
	}
	if job.Options.AudioBitrateKbps > 0 {
		args = append(args, "-b:a", strconv.Itoa(job.Options.AudioBitrateKbps)+"k")
	}
	args = append(args, "-progress", "pipe:1", "-nostats", outPath)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		// ffmpeg -progress emits key=value lines; out_time_us tracks the
		// encode position.
		if v, ok := strings.CutPrefix(line, "out_time_us="); ok && totalUs > 0 {
			if us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				// Map the encode phase onto 10-90.
				p := 10 + int(us*80/totalUs)
				if p > 90 {
					p = 90
				}
				onProgress(p)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		e.logger.Error("ffmpeg failed",
			zap.String("job_id", job.ID.String()),
			zap.String("stderr", tail(stderr.String(), 2000)))
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) upload(ctx context.Context, outPath, outputKey, format string) error {
	f, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}

	contentType := "video/mp4"
	if format == "webm" {
		contentType = "video/webm"
	}

	if err := e.store.Put(ctx, outputKey, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("upload output: %w", err)
	}
	return nil
}

// writeConcatList writes the ffmpeg concat demuxer file list.
func writeConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&b, "file '%s'\n", clip)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// probeTotalMicros sums clip durations via ffprobe for progress mapping.
// Zero means unknown; progress then only moves on phase boundaries.
func (e *FFmpegEncoder) probeTotalMicros(clips []string) int64 {
	var total float64
	for _, clip := range clips {
		out, err := exec.Command(e.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			clip).Output()
		if err != nil {
			e.logger.Debug("ffprobe failed", zap.String("clip", clip), zap.Error(err))
			return 0
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return 0
		}
		total += seconds
	}
	return int64(total * 1e6)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
