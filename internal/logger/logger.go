package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thaitype/monguard-sub000/internal/conf"
)

// NewLogger builds the application logger. When a filename is configured the
// log is written to a rotating file, otherwise to stderr. The returned cleanup
// flushes buffered entries and also resets zap's global logger.
func NewLogger(cfg *conf.LogConfig) (*zap.Logger, func(), error) {
	level := zapcore.InfoLevel
	if cfg != nil && cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, nil, err
		}
	}

	var sink zapcore.WriteSyncer
	if cfg != nil && cfg.Filename != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
	log := zap.New(core, zap.AddCaller())

	undo := zap.ReplaceGlobals(log)
	cleanup := func() {
		undo()
		_ = log.Sync()
	}

	return log, cleanup, nil
}
