// Package token issues the sequential queue numbers handed to
// patients at registration. Numbering is per calendar day: the first
// registration of a day gets 1 and the counter resets silently at
// midnight. State survives restarts via a small JSON file.
package token

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DateLayout is the calendar-day key used for counter resets and
// record date fields.
const DateLayout = "2006-01-02"

type state struct {
	Date string `json:"date"`
	Last int    `json:"last"`
}

// Sequencer hands out per-day sequential tokens. Safe for concurrent
// use.
type Sequencer struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	st   state
}

// NewSequencer loads counter state from path, creating it on first
// use. A nil now falls back to time.Now.
func NewSequencer(path string, now func() time.Time) (*Sequencer, error) {
	if now == nil {
		now = time.Now
	}
	s := &Sequencer{path: path, now: now}

	b, err := os.ReadFile(path)
	if err == nil {
		if jerr := json.Unmarshal(b, &s.st); jerr != nil {
			return nil, fmt.Errorf("parse token state %s: %w", path, jerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read token state %s: %w", path, err)
	}
	return s, nil
}

// Today returns the current calendar day key.
func (s *Sequencer) Today() string {
	return s.now().Format(DateLayout)
}

// Next issues the next token for today, resetting the counter if the
// day has rolled over since the last issue.
func (s *Sequencer) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().Format(DateLayout)
	if s.st.Date != today {
		s.st = state{Date: today, Last: 0}
	}
	s.st.Last++
	if err := s.persist(); err != nil {
		s.st.Last--
		return 0, err
	}
	return s.st.Last, nil
}

// Current returns the last token issued today, 0 if none.
func (s *Sequencer) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Date != s.now().Format(DateLayout) {
		return 0
	}
	return s.st.Last
}

func (s *Sequencer) persist() error {
	b, err := json.Marshal(s.st)
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("write token state: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write token state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write token state: %w", err)
	}
	return nil
}
