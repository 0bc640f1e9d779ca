package classifier

import (
	"strings"
	"sync"

	"github.com/fyrsmithlabs/termmapd/internal/ranker"
	"github.com/google/uuid"
)

// memoryEntry is a remembered agent classification. Informational only:
// entries seed the agent prompt but never replace a live classification.
type memoryEntry struct {
	Name          string
	Description   string
	BestMatchID   string
	BestMatchName string
	Confidence    float64
}

// memoryStore is an associative memory keyed by a stable content hash of
// the request, so re-phrasings with identical text hit the same entry.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

// key derives a name-based UUID from the normalized request text.
func (m *memoryStore) key(req Request) string {
	content := strings.ToLower(strings.TrimSpace(req.Name)) + ":" + strings.ToLower(strings.TrimSpace(req.Description))
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(content)).String()
}

func (m *memoryStore) save(req Request, best ranker.MatchCandidate, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.key(req)] = memoryEntry{
		Name:          req.Name,
		Description:   req.Description,
		BestMatchID:   best.TermID,
		BestMatchName: best.Name,
		Confidence:    confidence,
	}
}

func (m *memoryStore) lookup(req Request) (memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[m.key(req)]
	return entry, ok
}
