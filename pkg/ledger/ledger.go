package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"matchcrawl/pkg/logger"
)

// Ledger is the durable record of which users already received a like or
// pass interaction. Membership is sticky and a hid lives in at most one of
// the two sets; the ledger is consulted before emitting an interaction so
// a crash never produces a duplicate.
type Ledger struct {
	path   string
	logger logger.Logger

	mu     sync.Mutex
	liked  map[string]struct{}
	passed map[string]struct{}
}

type document struct {
	Liked  []string `json:"liked"`
	Passed []string `json:"passed"`
}

// Open loads the ledger from disk, starting empty when no usable file
// exists. Read failures are logged, not surfaced: an unreadable ledger
// means "no interactions recorded yet".
func Open(path string, log logger.Logger) *Ledger {
	if log == nil {
		log = logger.GetLogger()
	}

	l := &Ledger{
		path:   path,
		logger: log,
		liked:  make(map[string]struct{}),
		passed: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Error("error reading ledger file")
		}
		return l
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithError(err).WithField("path", path).Error("malformed ledger file")
		return l
	}

	for _, hid := range doc.Liked {
		l.liked[hid] = struct{}{}
	}
	for _, hid := range doc.Passed {
		// first set wins when a corrupt file lists a hid twice
		if _, ok := l.liked[hid]; !ok {
			l.passed[hid] = struct{}{}
		}
	}

	log.InfoWithFields("interaction ledger loaded", map[string]interface{}{
		"liked":  len(l.liked),
		"passed": len(l.passed),
	})
	return l
}

// Seen reports whether the hid is in either set
func (l *Ledger) Seen(hid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, inLiked := l.liked[hid]
	_, inPassed := l.passed[hid]
	return inLiked || inPassed
}

// Liked reports whether the hid received a like
func (l *Ledger) Liked(hid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.liked[hid]
	return ok
}

// Passed reports whether the hid received a pass
func (l *Ledger) Passed(hid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.passed[hid]
	return ok
}

// MarkLiked records a like and writes the ledger through to disk. A hid
// already in either set is left untouched.
func (l *Ledger) MarkLiked(hid string) error {
	return l.mark(hid, l.liked)
}

// MarkPassed records a pass and writes the ledger through to disk
func (l *Ledger) MarkPassed(hid string) error {
	return l.mark(hid, l.passed)
}

func (l *Ledger) mark(hid string, set map[string]struct{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.liked[hid]; ok {
		return nil
	}
	if _, ok := l.passed[hid]; ok {
		return nil
	}

	set[hid] = struct{}{}
	return l.saveLocked()
}

// Counts returns the sizes of the two sets
func (l *Ledger) Counts() (liked, passed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.liked), len(l.passed)
}

// saveLocked writes the ledger atomically (tmp file + rename). Caller
// holds the mutex.
func (l *Ledger) saveLocked() error {
	doc := document{
		Liked:  make([]string, 0, len(l.liked)),
		Passed: make([]string, 0, len(l.passed)),
	}
	for hid := range l.liked {
		doc.Liked = append(doc.Liked, hid)
	}
	for hid := range l.passed {
		doc.Passed = append(doc.Passed, hid)
	}
	sort.Strings(doc.Liked)
	sort.Strings(doc.Passed)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	return nil
}
