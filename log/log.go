package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Plugin = zapcore.Core

// NewLogger builds a logger on top of plugin. Caller and stacktrace options
// from DefaultOption are always applied first.
func NewLogger(plugin Plugin, options ...zap.Option) *zap.Logger {
	return zap.New(plugin, append(DefaultOption(), options...)...)
}

func NewPlugin(writer zapcore.WriteSyncer, enabler zapcore.LevelEnabler) Plugin {
	return zapcore.NewCore(DefaultEncoder(), writer, enabler)
}

func NewStdoutPlugin(enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(os.Stdout)), enabler)
}

func NewStderrPlugin(enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(os.Stderr)), enabler)
}

// NewFilePlugin writes to a rotated file. lumberjack does not expose Sync,
// so the returned closer must be closed before exit to flush the file.
func NewFilePlugin(
	filePath string, enabler zapcore.LevelEnabler) (Plugin, io.Closer) {
	var writer = DefaultLumberjackLogger()
	writer.Filename = filePath

	return NewPlugin(zapcore.AddSync(writer), enabler), writer
}

// NewTee fans every entry out to all plugins.
func NewTee(plugins ...Plugin) Plugin {
	return zapcore.NewTee(plugins...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds the process logger from a level name and an optional log
// file. The logger is installed as the zap global.
func Setup(level string, filePath string) (*zap.Logger, io.Closer, error) {
	if level == "" {
		level = "INFO"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	plugin := NewStdoutPlugin(lvl)
	if filePath != "" {
		var filePlugin Plugin
		filePlugin, closer = NewFilePlugin(filePath, lvl)
		plugin = NewTee(plugin, filePlugin)
	}

	logger := NewLogger(plugin)
	zap.ReplaceGlobals(logger)

	return logger, closer, nil
}
