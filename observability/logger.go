// Package observability wires zap logging for the serialization engine.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alexanderfedin/orleans/config"
)

// NewLogger builds the logger that is injected into serialization.NewManager.
// The engine never logs through globals, so nothing process-wide is touched;
// each configured output becomes its own core, and a bad output path is an
// error rather than a silent redirect. Only unrotated file outputs are opened
// here; with rotation enabled lumberjack opens the file on first write, so a
// bad rotated path does not fail construction. The caller should defer Sync.
func NewLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	cores := make([]zapcore.Core, 0, len(outputs))
	for _, out := range outputs {
		sink, err := newSink(out, c.Rotation)
		if err != nil {
			return nil, fmt.Errorf("log output %q: %w", out, err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder(c), sink, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.AddCaller(), zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...).Named("serialization"), nil
}

func newEncoder(c config.LogConfig) zapcore.Encoder {
	if strings.EqualFold(c.Format, "json") {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	if c.Development {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// newSink maps one configured output to a write syncer. File outputs rotate
// through lumberjack when rotation is enabled; otherwise the file is opened
// for append, creating parent directories as needed.
func newSink(out string, r config.RotationConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}
	if r.Enable {
		name := out
		if strings.TrimSpace(r.Filename) != "" {
			name = r.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
		}), nil
	}
	if dir := filepath.Dir(out); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}
