package pipeline

// Progress starts trackers for long-running loops.
type Progress interface {
	Start(label string, total int) Tracker
}

// Tracker follows one loop. Set may be called from several goroutines.
type Tracker interface {
	Set(done int)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) Tracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Set(int) {}
func (nopTracker) Finish() {}
