package worker

import "sync"

// chatLocks serializes runs per chat id within this process, so two
// redelivered jobs for the same chat never interleave their writes.
type chatLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *chatLocks) forChat(chatID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = map[string]*sync.Mutex{}
	}
	if _, ok := l.m[chatID]; !ok {
		l.m[chatID] = &sync.Mutex{}
	}
	return l.m[chatID]
}
