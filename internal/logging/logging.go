// Package logging provides structured, run-scoped logging for the pipeline
// coordinator. Every record is a JSON line carrying the fixed field set
// required to reconstruct a run: subdomain, run_id, stage, job_id and
// parent_job_id, plus caller-supplied domain fields.
package logging

import (
	"context"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxJobID       ctxKey = "job_id"
	ctxParentJobID ctxKey = "parent_job_id"
	ctxRunID       ctxKey = "run_id"
	ctxSubdomain   ctxKey = "subdomain"
	ctxStage       ctxKey = "stage"
)

// Logger wraps a *zap.Logger scoped to one subsystem (e.g. "worker",
// "scheduler", "ocr-page"). All methods emit a JSON record via the
// wrapped core; callers reach for WithJob/FromContext to get run identity
// attached automatically instead of threading it through every call site.
type Logger struct {
	z *zap.Logger
}

var base *zap.Logger

func init() {
	base = newBase()
}

func newBase() *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "level"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	level := zapcore.InfoLevel
	if lv := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); lv != "" {
		_ = level.UnmarshalText([]byte(lv))
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), level)
	return zap.New(core)
}

// New returns a Logger scoped to the given subsystem name.
func New(subsystem string) *Logger {
	return &Logger{z: base.With(zap.String("subsystem", subsystem))}
}

// WithJob attaches job identity to ctx and returns a Logger pre-populated
// with the same fields, mirroring the entry-point's log_with_context
// behavior: any log call made through the returned Logger carries job_id,
// parent_job_id, run_id, subdomain and stage without the caller repeating
// them.
func WithJob(ctx context.Context, subsystem, jobID, parentJobID, runID, subdomain, stage string) (*Logger, context.Context) {
	ctx = context.WithValue(ctx, ctxJobID, jobID)
	ctx = context.WithValue(ctx, ctxParentJobID, parentJobID)
	ctx = context.WithValue(ctx, ctxRunID, runID)
	ctx = context.WithValue(ctx, ctxSubdomain, subdomain)
	ctx = context.WithValue(ctx, ctxStage, stage)

	fields := []zap.Field{zap.String("subsystem", subsystem)}
	if jobID != "" {
		fields = append(fields, zap.String("job_id", jobID))
	}
	if parentJobID != "" {
		fields = append(fields, zap.String("parent_job_id", parentJobID))
	}
	if runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if subdomain != "" {
		fields = append(fields, zap.String("subdomain", subdomain))
	}
	if stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}

	return &Logger{z: base.With(fields...)}, ctx
}

// FromContext recovers the job-scoped logger that WithJob placed into ctx.
// If ctx carries no job identity, it falls back to a bare subsystem
// logger so call sites never need a nil check.
func FromContext(ctx context.Context, subsystem string) *Logger {
	jobID, _ := ctx.Value(ctxJobID).(string)
	parentJobID, _ := ctx.Value(ctxParentJobID).(string)
	runID, _ := ctx.Value(ctxRunID).(string)
	subdomain, _ := ctx.Value(ctxSubdomain).(string)
	stage, _ := ctx.Value(ctxStage).(string)

	if jobID == "" && runID == "" {
		return New(subsystem)
	}

	l, _ := WithJob(ctx, subsystem, jobID, parentJobID, runID, subdomain, stage)
	return l
}

func toFields(kv map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv))
	for k, v := range kv {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func (l *Logger) Debug(msg string, kv map[string]any) { l.z.Debug(msg, toFields(kv)...) }
func (l *Logger) Info(msg string, kv map[string]any)  { l.z.Info(msg, toFields(kv)...) }
func (l *Logger) Warn(msg string, kv map[string]any)  { l.z.Warn(msg, toFields(kv)...) }
func (l *Logger) Error(msg string, err error, kv map[string]any) {
	fields := toFields(kv)
	if err != nil {
		fields = append(fields, zap.String("error_message", err.Error()))
	}
	l.z.Error(msg, fields...)
}

// StageStarted emits the mandatory "{stage}_started" milestone (spec §4.2):
// config fields only, no volume counts yet.
func (l *Logger) StageStarted(stage string, config map[string]any) {
	l.Info(stage+"_started", config)
}

// StageCompleted emits the mandatory "{stage}_completed" milestone,
// requiring a duration and the stage's volume counts.
func (l *Logger) StageCompleted(stage string, duration time.Duration, counts map[string]any) {
	kv := map[string]any{"duration_seconds": duration.Seconds()}
	for k, v := range counts {
		kv[k] = v
	}
	l.Info(stage+"_completed", kv)
}

// StageFailed emits the mandatory "{stage}_failed" milestone, requiring a
// duration, an error, and an error_type classification plus any
// domain-specific reproduction context (pdf_path, page_number, ...).
func (l *Logger) StageFailed(stage string, duration time.Duration, errType string, err error, context map[string]any) {
	kv := map[string]any{
		"duration_seconds": duration.Seconds(),
		"error_type":       errType,
		"traceback":        string(debug.Stack()),
	}
	for k, v := range context {
		kv[k] = v
	}
	l.Error(stage+"_failed", err, kv)
}

// Sync flushes buffered log entries; call before process exit.
func Sync() error {
	return base.Sync()
}
