package chatlog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one pretty-printed JSON array per conversation and UTC
// day at <dir>/<conversation>/chat_YYYYMMDD.json. The conversation
// directory name is the base64url encoding of the conversation ID.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("chatlog: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chatlog: create log dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Append(ctx context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.dayPath(entry.ConversationID, entry.Timestamp)
	entries, err := readEntries(path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("chatlog: marshal entries: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("chatlog: create conversation dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("chatlog: write entries: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("chatlog: replace log file: %w", err)
	}
	return nil
}

func (s *FileStore) ListDay(ctx context.Context, conversationID string, day time.Time) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := readEntries(s.dayPath(conversationID, day))
	if err != nil {
		return nil, err
	}
	return forConversation(entries, conversationID), nil
}

// Recent walks day files newest first until n entries are collected.
func (s *FileStore) Recent(ctx context.Context, conversationID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(s.conversationDir(conversationID), "chat_*.json"))
	if err != nil {
		return nil, fmt.Errorf("chatlog: list log files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var collected []Entry
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := readEntries(file)
		if err != nil {
			return nil, err
		}
		entries = forConversation(entries, conversationID)
		collected = append(entries, collected...)
		if len(collected) >= n {
			break
		}
	}
	return tail(collected, n), nil
}

func (s *FileStore) conversationDir(conversationID string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(conversationID))
	if name == "" {
		name = "_"
	}
	return filepath.Join(s.dir, name)
}

func forConversation(entries []Entry, conversationID string) []Entry {
	kept := entries[:0]
	for _, e := range entries {
		if e.ConversationID == conversationID {
			kept = append(kept, e)
		}
	}
	return kept
}

func (s *FileStore) dayPath(conversationID string, day time.Time) string {
	return filepath.Join(s.conversationDir(conversationID), "chat_"+dayKey(day)+".json")
}

func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chatlog: read log file: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("chatlog: decode log file %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
