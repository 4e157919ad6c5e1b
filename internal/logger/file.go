package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes a rotating log file.
type FileConfig struct {
	// Path is the log file to write to.
	Path string
	// MaxSizeMB is the size a file may reach before rotation.
	MaxSizeMB int
	// MaxFiles is how many rotated files to retain.
	MaxFiles int
}

// NewFileWriter returns a writer that rotates by size via lumberjack
// and gzips the rotated files.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
