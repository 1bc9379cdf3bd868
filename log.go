// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/project-illium/ilxevm/batch"
	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/evm"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/repo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logLevels maps the loglevel option to zap levels. The option uses the
// syslog names.
var logLevels = map[string]struct {
	level    zapcore.Level
	severity string
	color    uint8
}{
	"debug":     {zap.DebugLevel, "DEBUG", 35},
	"info":      {zap.InfoLevel, "INFO", 34},
	"warning":   {zap.WarnLevel, "WARNING", 33},
	"error":     {zap.ErrorLevel, "ERROR", 31},
	"alert":     {zap.DPanicLevel, "CRITICAL", 31},
	"critical":  {zap.PanicLevel, "ALERT", 31},
	"emergency": {zap.FatalLevel, "EMERGENCY", 31},
}

func parseLogLevel(name string) (zapcore.Level, error) {
	l, ok := logLevels[strings.ToLower(name)]
	if !ok {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return l.level, nil
}

func encodeLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	for _, l := range logLevels {
		if l.level == level {
			enc.AppendString(fmt.Sprintf("[\x1b[%dm%s\x1b[0m]", l.color, l.severity))
			return
		}
	}
	enc.AppendString("[" + level.CapitalString() + "]")
}

// setupLogging writes colored console logs to stderr and, when logDir is
// set, JSON logs to a rotated file in logDir.
func setupLogging(logDir, level string, development bool) error {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	atom := zap.NewAtomicLevelAt(logLevel)

	consoleCfg := zap.NewProductionEncoderConfig()
	consoleCfg.EncodeLevel = encodeLevel
	consoleCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	consoleCfg.ConsoleSeparator = "  "
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), atom),
	}

	if logDir != "" {
		rotator := &lumberjack.Logger{
			Filename:   path.Join(logDir, repo.DefaultLogFilename),
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     30, // Days
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), atom))
	}

	var opts []zap.Option
	if development {
		opts = append(opts, zap.Development())
	}
	zap.ReplaceGlobals(zap.New(zapcore.NewTee(cores...), opts...))

	log = zap.S()
	repo.UpdateLogger()
	keymanager.UpdateLogger()
	blockchain.UpdateLogger()
	evm.UpdateLogger()
	batch.UpdateLogger()
	return nil
}
