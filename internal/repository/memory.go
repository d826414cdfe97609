package repository

import (
	"context"
	"sync"
)

// MemoryBackend keeps slots in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Slot(name string) Slot { return &memorySlot{b: b, name: name} }

func (b *MemoryBackend) Ping(context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }

type memorySlot struct {
	b    *MemoryBackend
	name string
}

func (s *memorySlot) Name() string { return s.name }

func (s *memorySlot) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.b.mu.RLock()
	defer s.b.mu.RUnlock()
	v, ok := s.b.data[s.name]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), v...), nil
}

func (s *memorySlot) Set(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data[s.name] = append([]byte(nil), payload...)
	return nil
}

func (s *memorySlot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.data, s.name)
	return nil
}
