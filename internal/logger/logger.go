// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the structured logging surface every other package
// calls into: a package-level slog.Logger configured from cfg.LoggingConfig,
// writing text or JSON lines at TRACE/DEBUG/INFO/WARNING/ERROR severity,
// optionally rotated to disk with lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// traceLevel sits below slog.LevelDebug, the lowest level this binding's
// severity ladder (TRACE/DEBUG/INFO/WARNING/ERROR/OFF) can express in
// log/slog's level space.
const traceLevel = slog.Level(-8)

// offLevel is above slog.LevelError, used to silence every log line when
// severity is configured to OFF.
const offLevel = slog.Level(12)

var severityToSlogLevel = map[cfg.LogSeverity]slog.Level{
	cfg.TraceLogSeverity:   traceLevel,
	cfg.DebugLogSeverity:   slog.LevelDebug,
	cfg.InfoLogSeverity:    slog.LevelInfo,
	cfg.WarningLogSeverity: slog.LevelWarn,
	cfg.ErrorLogSeverity:   slog.LevelError,
	cfg.OffLogSeverity:     offLevel,
}

var levelNames = map[slog.Leveler]string{
	traceLevel:       "TRACE",
	slog.LevelDebug:  "DEBUG",
	slog.LevelInfo:   "INFO",
	slog.LevelWarn:   "WARNING",
	slog.LevelError:  "ERROR",
}

type loggerFactory struct {
	format string
	level  *slog.LevelVar
	writer io.Writer
	closer io.Closer
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl, _ := a.Value.Any().(slog.Level)
				name, ok := levelNames[lvl]
				if !ok {
					name = lvl.String()
				}
				return slog.String("severity", name)
			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())
			case slog.TimeKey:
				if f.format == "json" {
					t := a.Value.Time()
					return slog.Group("timestamp",
						slog.Int64("seconds", t.Unix()),
						slog.Int("nanos", t.Nanosecond()))
				}
				return slog.String("time", a.Value.Time().Format("01/02/2006 15:04:05.000000"))
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var (
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  &slog.LevelVar{},
		writer: os.Stderr,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
)

func init() {
	defaultLoggerFactory.level.Set(slog.LevelInfo)
}

func setLoggingLevel(severity cfg.LogSeverity, level *slog.LevelVar) {
	lvl, ok := severityToSlogLevel[severity]
	if !ok {
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
}

// SetLogFormat switches the default logger between "text" and "json" line
// formats.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer, defaultLoggerFactory.level, ""))
}

// InitLogFile points the default logger at c.File, rotating it with
// lumberjack according to c.LogRotate, and draining writes through an
// AsyncLogger so a stalled disk never blocks a caller. An empty c.File
// leaves logging on stderr.
func InitLogFile(c cfg.LoggingConfig) error {
	setLoggingLevel(c.Severity, defaultLoggerFactory.level)
	if c.Format != "" {
		defaultLoggerFactory.format = c.Format
	}

	if string(c.File) == "" {
		defaultLoggerFactory.writer = os.Stderr
		defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
		return nil
	}

	lj := &lumberjack.Logger{
		Filename:   string(c.File),
		MaxSize:    c.LogRotate.MaxFileSizeMb,
		MaxBackups: c.LogRotate.BackupFileCount,
		Compress:   c.LogRotate.Compress,
	}
	async := NewAsyncLogger(lj, 10000)

	if defaultLoggerFactory.closer != nil {
		defaultLoggerFactory.closer.Close()
	}
	defaultLoggerFactory.writer = async
	defaultLoggerFactory.closer = async
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(async, defaultLoggerFactory.level, ""))
	return nil
}

// Close flushes and releases the log file, if one was opened by
// InitLogFile.
func Close() error {
	if defaultLoggerFactory.closer != nil {
		return defaultLoggerFactory.closer.Close()
	}
	return nil
}

func Tracef(format string, args ...any) { defaultLogger.Log(context.Background(), traceLevel, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }

func Trace(args ...any) { defaultLogger.Log(context.Background(), traceLevel, fmt.Sprint(args...)) }
func Debug(args ...any) { defaultLogger.Debug(fmt.Sprint(args...)) }
func Info(args ...any)  { defaultLogger.Info(fmt.Sprint(args...)) }
func Warn(args ...any)  { defaultLogger.Warn(fmt.Sprint(args...)) }
func Error(args ...any) { defaultLogger.Error(fmt.Sprint(args...)) }

// Level names the severity NewLegacyLogger logs its lines at.
type Level int

const (
	LevelTrace Level = iota
	LevelError
)

// legacyWriter adapts the package logger into an io.Writer, so the fuse
// binding's *log.Logger-shaped ErrorLogger/DebugLogger hooks end up
// funneled through the same severity-gated, rotated sink as every other
// log line.
type legacyWriter struct {
	level  Level
	prefix string
}

func (w legacyWriter) Write(p []byte) (int, error) {
	msg := w.prefix + string(p)
	if w.level == LevelTrace {
		Tracef("%s", msg)
	} else {
		Errorf("%s", msg)
	}
	return len(p), nil
}

// NewLegacyLogger returns a *log.Logger, the type the fuse binding's
// MountConfig.ErrorLogger/DebugLogger hooks expect, that forwards every
// line into the package logger at level, tagged with fsName.
func NewLegacyLogger(level Level, prefix, fsName string) *log.Logger {
	return log.New(legacyWriter{level: level, prefix: fmt.Sprintf("%s[%s] ", prefix, fsName)}, "", 0)
}
