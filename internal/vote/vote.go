// Package vote implements the per-day event vote tally described in
// SPEC_FULL.md §4.10. Grounded on
// original_source/src/vote_manager.py: a dict keyed by event code,
// persisted to a dated file on every mutation. pickle becomes gob, the
// teacher's internal-only binary codec of choice; a Postgres mirror is
// added per §10.3 so the admin dashboard can query totals with SQL.
package vote

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"eum-captions/internal/model"
)

// ErrNoVotes is returned by RemoveVote when the event's tally is already
// zero.
var ErrNoVotes = errors.New("vote: no votes to remove")

// Tally owns one day's vote counts for a set of event codes.
type Tally struct {
	dir string
	db  *gorm.DB
	log *zap.SugaredLogger

	mu    sync.Mutex
	day   string
	votes map[string]int
}

// NewTally constructs a Tally rooted at dir, loading today's file
// immediately, or starting an empty tally if none exists; the file is first
// written on the first vote.
func NewTally(dir string, db *gorm.DB, logger *zap.SugaredLogger) (*Tally, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	t := &Tally{dir: dir, db: db, log: logger}
	if err := t.rollToDay(today()); err != nil {
		return nil, err
	}
	return t, nil
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// rollToDay loads the given day's file, creating an empty tally if none
// exists yet. Must be called with mu unlocked (it acquires it itself).
func (t *Tally) rollToDay(day string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.day == day {
		return nil
	}

	votes, err := t.loadFromDisk(day)
	if err != nil {
		return err
	}
	t.day = day
	t.votes = votes
	return nil
}

func (t *Tally) filePath(day string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s.votes", day))
}

func (t *Tally) loadFromDisk(day string) (map[string]int, error) {
	path := t.filePath(day)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		t.log.Infow("no votes file found, starting fresh", "path", path)
		return make(map[string]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open votes file: %w", err)
	}
	defer f.Close()

	var votes map[string]int
	if err := gob.NewDecoder(f).Decode(&votes); err != nil {
		return nil, fmt.Errorf("decode votes file: %w", err)
	}
	t.log.Infow("loaded votes from disk", "count", len(votes), "path", path)
	return votes, nil
}

// writeLocked persists the current tally to disk. Must be called with mu held.
func (t *Tally) writeLocked() error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create votes dir: %w", err)
	}
	path := t.filePath(t.day)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create votes temp file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(t.votes); err != nil {
		f.Close()
		return fmt.Errorf("encode votes: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close votes temp file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (t *Tally) maybeRollDay() {
	d := today()
	if d != t.day {
		votes, err := t.loadFromDisk(d)
		if err != nil {
			t.log.Warnw("failed to roll vote tally to new day", "error", err)
			return
		}
		t.day = d
		t.votes = votes
	}
}

// List returns a snapshot of today's event code -> vote count map.
func (t *Tally) List() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollDay()

	out := make(map[string]int, len(t.votes))
	for k, v := range t.votes {
		out[k] = v
	}
	return out
}

// AddVote increments the tally for eventCode by one, returning the new count.
func (t *Tally) AddVote(eventCode string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollDay()

	t.votes[eventCode]++
	count := t.votes[eventCode]
	if err := t.writeLocked(); err != nil {
		return 0, err
	}
	t.mirror(eventCode, count)
	return count, nil
}

// RemoveVote decrements the tally for eventCode by one, failing if it is
// already zero.
func (t *Tally) RemoveVote(eventCode string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollDay()

	if t.votes[eventCode] <= 0 {
		return 0, ErrNoVotes
	}
	t.votes[eventCode]--
	count := t.votes[eventCode]
	if err := t.writeLocked(); err != nil {
		return 0, err
	}
	t.mirror(eventCode, count)
	return count, nil
}

func (t *Tally) mirror(eventCode string, count int) {
	if t.db == nil {
		return
	}
	rec := model.VoteRecord{EventCode: eventCode, Day: t.day, Count: count}
	err := t.db.Where(model.VoteRecord{EventCode: eventCode, Day: t.day}).
		Assign(model.VoteRecord{Count: count}).
		FirstOrCreate(&rec).Error
	if err != nil {
		t.log.Warnw("failed to mirror vote to database", "event_code", eventCode, "error", err)
	}
}
