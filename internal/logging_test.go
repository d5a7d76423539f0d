// Copyright 2025 Tetrate
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

package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/telemetry"
	"github.com/tetratelabs/telemetry/scope"
)

func TestGetLogger(t *testing.T) {
	var (
		logger1Name = "l1"
		// do not reuse this name in other tests, otherwise multiple runs of the test may fail due find it registered
		noLoggerName = "lnoop"
	)
	l1 := scope.Register(logger1Name, "test logger one")

	NewLogSystem(telemetry.NoopLogger())

	require.Equal(t, l1, Logger(logger1Name))
	require.Equal(t, telemetry.NoopLogger(), Logger(noLoggerName))
}

func TestParseLogLevels(t *testing.T) {
	tests := []struct {
		levels    string
		want      map[string]telemetry.Level
		expectErr bool
	}{
		{"all:debug", map[string]telemetry.Level{"all": telemetry.LevelDebug}, false},
		{"l1:debug,l2:error", map[string]telemetry.Level{"l1": telemetry.LevelDebug, "l2": telemetry.LevelError}, false},
		{" l1 : info ", map[string]telemetry.Level{"l1": telemetry.LevelInfo}, false},
		{",", nil, true},
		{":", nil, true},
		{"invalid", nil, true},
		{"l1:", nil, true},
		{":debug", nil, true},
		{"l1:nope", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.levels, func(t *testing.T) {
			got, err := ParseLogLevels(tt.levels)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSetLogLevels(t *testing.T) {
	l3 := scope.Register("l3", "test logger three")
	l4 := scope.Register("l4", "test logger four")

	SetLogLevels(telemetry.NoopLogger(), map[string]telemetry.Level{"all": telemetry.LevelNone})
	require.Equal(t, telemetry.LevelNone, l3.Level())
	require.Equal(t, telemetry.LevelNone, l4.Level())

	SetLogLevels(telemetry.NoopLogger(), map[string]telemetry.Level{"l3": telemetry.LevelDebug, "unknown": telemetry.LevelError})
	require.Equal(t, telemetry.LevelDebug, l3.Level())
	require.Equal(t, telemetry.LevelNone, l4.Level())
}
