package main

import (
	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/scheduler"
)

// latestRef forwards Latest to a scheduler assigned after construction.
// It must be set before the first scrape or tick.
type latestRef struct {
	src *scheduler.Scheduler
}

func (l *latestRef) Latest() *diagnose.Record {
	if l.src == nil {
		return nil
	}
	return l.src.Latest()
}
