/*
Copyright 2025 The hcran Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging sets up the logr/zap logger shared by the controller, the agents and the hosts.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels used with logger.V().
const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 4
	TRACE   = 5
)

// atomicLevel is shared between InitSetupLogging and SetVerbosity so the level
// can be raised after the controller-runtime delegation has been fulfilled.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitSetupLogging installs the process-wide logger.
func InitSetupLogging(development bool) {
	logger := zap.New(
		zap.UseDevMode(development),
		zap.Level(atomicLevel),
		zap.RawZapOpts(uberzap.AddCaller()),
	)
	ctrl.SetLogger(logger)
}

// SetVerbosity changes the verbosity of every logger derived from the setup logger.
// A verbosity of DEBUG enables logger.V(DEBUG) lines.
func SetVerbosity(verbosity int) {
	atomicLevel.SetLevel(zapcore.Level(-1 * verbosity))
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	return zap.New(
		zap.UseDevMode(true),
		zap.Level(uberzap.NewAtomicLevelAt(zapcore.Level(-1*TRACE))),
		zap.RawZapOpts(uberzap.AddCaller()),
	)
}

// NewTestLoggerIntoContext creates a new Zap logger using the dev mode and inserts it into the given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return log.IntoContext(ctx, NewTestLogger())
}
