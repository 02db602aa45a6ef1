package meeting

import (
	"sync"

	"github.com/google/uuid"
)

// meetingLocks hands out one mutex per meeting. Entries live only while
// someone holds or waits for them.
type meetingLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*meetingLock
}

type meetingLock struct {
	sync.Mutex
	refs int
}

func newMeetingLocks() *meetingLocks {
	return &meetingLocks{locks: make(map[uuid.UUID]*meetingLock)}
}

// lock blocks until the meeting is free and returns its unlock func.
func (l *meetingLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	ml, ok := l.locks[id]
	if !ok {
		ml = &meetingLock{}
		l.locks[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
