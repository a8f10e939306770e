package session

import "time"

// WriteOutcome classifies what a Write did to storage.
type WriteOutcome int

const (
	// WriteReplaced means the record was inserted or overwritten.
	WriteReplaced WriteOutcome = iota
	// WriteUpdated means a changed payload overwrote the record.
	WriteUpdated
	// WriteSkipped means the payload was unchanged and storage was not touched.
	WriteSkipped
	// WriteFailed means the backend rejected the write.
	WriteFailed
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteReplaced:
		return "replaced"
	case WriteUpdated:
		return "updated"
	case WriteSkipped:
		return "skipped"
	case WriteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer receives store events, typically to feed metrics.
type Observer interface {
	ObserveLock(acquired bool, wait time.Duration)
	ObserveWrite(outcome WriteOutcome)
	ObserveGC(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveLock(bool, time.Duration) {}
func (nopObserver) ObserveWrite(WriteOutcome)        {}
func (nopObserver) ObserveGC(error)                  {}
