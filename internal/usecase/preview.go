package usecase

import (
	"sync"

	"signscribe/internal/domain"
	"signscribe/internal/ports"
)

// previewBuilder keeps at most one live preview reference.
type previewBuilder struct {
	store  ports.PreviewStore
	events ports.EventSink

	mu      sync.Mutex
	current *domain.PreviewHandle
}

func newPreviewBuilder(store ports.PreviewStore, events ports.EventSink) *previewBuilder {
	return &previewBuilder{store: store, events: events}
}

// Replace revokes the current reference before creating one for blob.
func (b *previewBuilder) Replace(blob domain.Blob) (domain.PreviewHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseLocked()
	handle, err := b.store.Create(blob)
	if err != nil {
		b.events.PreviewChanged("")
		return domain.PreviewHandle{}, err
	}
	b.current = &handle
	b.events.PreviewChanged(handle.URL)
	return handle, nil
}

// Release revokes the current reference, if any.
func (b *previewBuilder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.releaseLocked() {
		b.events.PreviewChanged("")
	}
}

func (b *previewBuilder) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return ""
	}
	return b.current.URL
}

func (b *previewBuilder) releaseLocked() bool {
	if b.current == nil {
		return false
	}
	b.store.Revoke(b.current.ID)
	b.current = nil
	return true
}
