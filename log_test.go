// Copyright (c) 2024 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path"
	"testing"

	"github.com/project-illium/ilxevm/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLogLevel(t *testing.T) {
	l, err := parseLogLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, zap.WarnLevel, l)

	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}

func TestSetupLoggingWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, setupLogging(dir, "info", false))
	defer zap.ReplaceGlobals(zap.NewNop())

	zap.S().Infow("Logging ready", "dir", dir)

	contents, err := os.ReadFile(path.Join(dir, repo.DefaultLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "Logging ready")
}
