package enrollment

import "sync"

// Level grades a notice for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient, user-facing message. Rejected selections and failed
// submissions are reported as notices rather than returned as errors.
type Notice struct {
	Level   Level
	Message string
}

// Notifier receives notices as they are emitted. Notify may run while a ledger
// lock is held and must not call back into the ledger.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// NoticeLog buffers notices until they are drained.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

// Drain returns the buffered notices and clears the buffer.
func (l *NoticeLog) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}

// Last returns the most recent notice, if any.
func (l *NoticeLog) Last() (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return Notice{}, false
	}
	return l.notices[len(l.notices)-1], true
}
