// Package unknown records questions the bot could not answer, for operators
// curating the knowledge base.
package unknown

import (
	"encoding/csv"
	"os"
	"sync"
	"time"
)

var header = []string{"Timestamp", "ChatID", "SenderID", "Question", "Stage"}

// Logger appends unanswered questions to a CSV file. Safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger opens (creating with a header if needed) the unknown-question log.
func NewLogger(path string) (*Logger, error) {
	l := &Logger{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w := csv.NewWriter(f)
		w.Write(header)
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Log appends one unanswered question. stage names where resolution gave up
// (e.g. "fallback").
func (l *Logger) Log(chatID, senderID, question, stage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{time.Now().Format(time.RFC3339), chatID, senderID, question, stage})
	w.Flush()
	return w.Error()
}
