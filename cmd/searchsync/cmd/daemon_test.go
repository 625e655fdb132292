package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/worker"
)

func TestApplyReload_UpdatesRunningScheduler(t *testing.T) {
	w := worker.New(nil, nil, worker.WithGarbageProbability(0.01))
	s := daemon.NewScheduler(nil, w, nil, daemon.Options{EventLimit: 100, Limit: 50, Concurrency: 2})

	c := config.NewConfig()
	c.EventQueue.Limit = 25
	c.Worker.Limit = 5
	c.Worker.Concurrency = 4
	c.Worker.GarbageProbability = 0.5

	applyReload(s, w, c, slog.New(slog.DiscardHandler))

	assert.Equal(t, daemon.Limits{EventLimit: 25, Limit: 5, Concurrency: 4}, s.Limits())
	assert.InDelta(t, 0.5, w.GarbageProbability(), 1e-9)
}
