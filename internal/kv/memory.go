package kv

import (
	"sync"
)

// Memory is an in-process Store used by tests and as the fake binding
// for components that do not need durability. Multiple goroutines may
// share one Memory; every write is serialized by its mutex, which is
// what gives Update its no-lost-update guarantee.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte

	subMu sync.Mutex
	subs  map[int]func(key string)
	nextS int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
		subs: make(map[int]func(key string)),
	}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.mu.Unlock()

	m.notify(key)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()

	if existed {
		m.notify(key)
	}
	return nil
}

func (m *Memory) Update(key string, fn UpdateFunc) error {
	m.mu.Lock()
	// Hand fn a copy: an updater that mutates its argument and then
	// errors must not touch committed state.
	var current []byte
	if v, ok := m.data[key]; ok {
		current = make([]byte, len(v))
		copy(current, v)
	}
	next, err := fn(current)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if next == nil {
		delete(m.data, key)
	} else {
		stored := make([]byte, len(next))
		copy(stored, next)
		m.data[key] = stored
	}
	m.mu.Unlock()

	m.notify(key)
	return nil
}

func (m *Memory) Subscribe(fn func(key string)) (func(), error) {
	m.subMu.Lock()
	id := m.nextS
	m.nextS++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}, nil
}

func (m *Memory) Close() error {
	return nil
}

// notify runs subscribers outside the data lock so a callback may
// re-read the store without deadlocking.
func (m *Memory) notify(key string) {
	m.subMu.Lock()
	fns := make([]func(string), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}
