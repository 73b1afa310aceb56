package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func recorder(log *[]string, name string, requires ...string) *Dependency {
	return &Dependency{
		Name:     name,
		Requires: requires,
		OnStart:  func(context.Context) error { *log = append(*log, "start:"+name); return nil },
		OnStop:   func(context.Context) error { *log = append(*log, "stop:"+name); return nil },
	}
}

func TestStartup_DependencyOrder(t *testing.T) {
	var log []string
	s := newTestStartup(1)
	s.AddDependency(recorder(&log, "engine", "database", "locker"))
	s.AddDependency(recorder(&log, "database"))
	s.AddDependency(recorder(&log, "locker"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:locker", "start:engine"}, log)
	assert.Equal(t, StartupStatusStarted, s.Status("engine"))

	log = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:engine", "stop:locker", "stop:database"}, log)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(&Dependency{
		Name: "redis",
		OnStart: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(&Dependency{
		Name:    "kafka",
		OnStart: func(context.Context) error { return errors.New("no brokers") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	var log []string
	s := newTestStartup(1)
	s.AddDependency(recorder(&log, "a", "missing"))
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency")

	s = newTestStartup(1)
	s.AddDependency(recorder(&log, "a", "b"))
	s.AddDependency(recorder(&log, "b", "a"))
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}
