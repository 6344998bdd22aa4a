package style

// Store exposes the style catalog to HTTP handlers.
type Store interface {
	List() []Option
	FindByID(id Style) (Option, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Option
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied options.
func NewMemoryStore(items []Option) *MemoryStore {
	return &MemoryStore{items: append([]Option(nil), items...)}
}

// List returns the catalog in menu order.
func (s *MemoryStore) List() []Option {
	return append([]Option(nil), s.items...)
}

// FindByID looks up a style by identifier.
func (s *MemoryStore) FindByID(id Style) (Option, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Option{}, false
}
