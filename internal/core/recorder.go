package core

import "time"

// Recorder receives pipeline measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	IngestCompleted(fileType, outcome string, rows int, d time.Duration)
	MetadataGenerated(outcome string, attempts int, d time.Duration)
	QueueDepth(n int)
	ReviewTransition(trigger Trigger)
	VersionCreated()
}

type nopRecorder struct{}

func (nopRecorder) IngestCompleted(string, string, int, time.Duration) {}
func (nopRecorder) MetadataGenerated(string, int, time.Duration)       {}
func (nopRecorder) QueueDepth(int)                                     {}
func (nopRecorder) ReviewTransition(Trigger)                           {}
func (nopRecorder) VersionCreated()                                    {}
