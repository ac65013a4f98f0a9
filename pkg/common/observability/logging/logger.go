/*
Copyright 2026 The Podo Authors.

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

// Verbosity levels passed to logger.V().
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

var level = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// Bootstrap installs the process logger before flags are parsed, so
// environment lookups are already logged. Its level follows SetLevel.
func Bootstrap() {
	ctrl.SetLogger(newLogger(level, false))
}

// SetLevel applies the level of the parsed zap flags. Options without a
// level leave the current one in place.
func SetLevel(opts *zap.Options) {
	if opts.Level == nil {
		return
	}
	level.SetLevel(zapcore.LevelOf(opts.Level))
}

// NewTestLogger returns a development logger that emits every verbosity.
func NewTestLogger() logr.Logger {
	return newLogger(zapcore.Level(-TRACE), true)
}

func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return log.IntoContext(ctx, NewTestLogger())
}

func newLogger(lvl zapcore.LevelEnabler, dev bool) logr.Logger {
	return zap.New(zap.UseDevMode(dev), zap.Level(lvl), zap.RawZapOpts(uberzap.AddCaller()))
}
