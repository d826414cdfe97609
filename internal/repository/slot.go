package repository

import (
	"context"
	"errors"
)

// ErrSlotEmpty is returned by Slot.Get when nothing has been stored yet.
var ErrSlotEmpty = errors.New("slot is empty")

// Slot is one named, durable value. Set replaces the whole value atomically:
// a reader sees either the old payload or the new one, never a mix.
type Slot interface {
	Name() string
	Get(ctx context.Context) ([]byte, error)
	Set(ctx context.Context, payload []byte) error
	Delete(ctx context.Context) error
}

// Backend hands out slots sharing one underlying store.
type Backend interface {
	Slot(name string) Slot
	Ping(ctx context.Context) error
	Close() error
}
