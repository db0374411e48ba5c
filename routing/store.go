package routing

// Store is a node's bounded key/value buffer. Capacity counts stored
// (key, item) pairs, not keys. LMS keys it by the decimal hashed key.
type Store struct {
	capacity int
	size     int
	items    map[string][]string
}

// NewStore creates an empty store holding at most capacity pairs
func NewStore(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string][]string),
	}
}

// Store deposits item under key. It fails with ErrFull when the buffer is
// saturated and with ErrDuplicate when the exact pair is already held here.
// Replication happens across nodes, never by storing a pair twice.
func (s *Store) Store(key, item string) error {
	if s.IsFull() {
		return ErrFull
	}
	for _, existing := range s.items[key] {
		if existing == item {
			return ErrDuplicate
		}
	}
	s.items[key] = append(s.items[key], item)
	s.size++
	return nil
}

// Retrieve returns a copy of every item stored under key, or false if
// the key is absent.
func (s *Store) Retrieve(key string) ([]string, bool) {
	items, ok := s.items[key]
	if !ok || len(items) == 0 {
		return nil, false
	}
	out := make([]string, len(items))
	copy(out, items)
	return out, true
}

// IsFull returns true if no further pair can be stored
func (s *Store) IsFull() bool { return s.size >= s.capacity }

// Len returns the number of stored pairs
func (s *Store) Len() int { return s.size }

// Capacity returns the maximum number of stored pairs
func (s *Store) Capacity() int { return s.capacity }
