// Package session keeps bounded per-chat conversation history with JSONL
// persistence. History feeds conversation context to the AI fallback.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Message is a single conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Session holds one chat's rolling history. Access is serialized by the
// engine's per-chat in-flight guarantee; the manager only protects its map.
type Session struct {
	Key       string    `json:"key"`
	Messages  []Message `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	keep int
}

// Add appends a turn, trimming history beyond the retention bound.
func (s *Session) Add(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if s.keep > 0 && len(s.Messages) > s.keep {
		s.Messages = s.Messages[len(s.Messages)-s.keep:]
	}
	s.UpdatedAt = time.Now()
}

// History returns up to max most recent turns, oldest first.
func (s *Session) History(max int) []Message {
	start := 0
	if max > 0 && len(s.Messages) > max {
		start = len(s.Messages) - max
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Manager manages chat sessions with JSONL persistence.
type Manager struct {
	dir  string
	keep int

	mu    sync.RWMutex
	cache map[string]*Session
}

// NewManager creates a session manager storing under dataDir/sessions.
// keep bounds the number of retained turns per chat (0 = unbounded).
func NewManager(dataDir string, keep int) *Manager {
	dir := filepath.Join(dataDir, "sessions")
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:   dir,
		keep:  keep,
		cache: make(map[string]*Session),
	}
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	s := m.load(key)
	if s == nil {
		s = &Session{
			Key:       key,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}
	s.keep = m.keep
	m.cache[key] = s
	return s
}

// Save persists a session to disk as JSONL, one message per line.
func (m *Manager) Save(s *Session) error {
	f, err := os.Create(m.path(s.Key))
	if err != nil {
		return err
	}
	defer f.Close()

	meta, _ := json.Marshal(map[string]any{
		"_type":      "metadata",
		"key":        s.Key,
		"created_at": s.CreatedAt.Format(time.RFC3339),
		"updated_at": s.UpdatedAt.Format(time.RFC3339),
	})
	f.Write(meta)
	f.WriteString("\n")

	for _, msg := range s.Messages {
		line, _ := json.Marshal(msg)
		f.Write(line)
		f.WriteString("\n")
	}
	return nil
}

// Invalidate removes a session from the in-memory cache.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
}

// --- internal ---

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, safeFilename(key)+".jsonl")
}

func (m *Manager) load(key string) *Session {
	f, err := os.Open(m.path(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	s := &Session{Key: key}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any
		if json.Unmarshal([]byte(line), &raw) != nil {
			continue
		}
		if raw["_type"] == "metadata" {
			if v, ok := raw["created_at"].(string); ok {
				s.CreatedAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["updated_at"].(string); ok {
				s.UpdatedAt, _ = time.Parse(time.RFC3339, v)
			}
			continue
		}

		var msg Message
		if json.Unmarshal([]byte(line), &msg) == nil {
			s.Messages = append(s.Messages, msg)
		}
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return s
}

// safeFilename maps a chat key to a filesystem-safe name.
func safeFilename(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
