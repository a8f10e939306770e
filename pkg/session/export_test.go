package session

// LockEntries reports how many per-session locks the storage tracks.
func (m *MemoryStorage) LockEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
