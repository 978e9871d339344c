package backup

import "sync"

// memConfig is an in-memory ConfigStore for tests. It mirrors the SQL store's
// semantics: CAS and insert-if-absent are atomic under the mutex.
type memConfig struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemConfig() *memConfig {
	return &memConfig{data: make(map[string]string)}
}

func (m *memConfig) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memConfig) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memConfig) InsertIfAbsent(key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memConfig) CompareAndSwap(key, expected, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.data[key]; !ok || cur != expected {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memConfig) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
