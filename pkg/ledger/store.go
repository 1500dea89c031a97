// Package ledger is a file-backed store for customer records, score bands and
// limit-increase requests. Every mutating operation takes an exclusive lock on
// the target table, reads the full table, rewrites it atomically and releases
// the lock. Reads are lock-free; readers may observe a just-replaced table but
// never a partially written one.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	customersFile = "customers.csv"
	bandsFile     = "score_bands.csv"
	requestsFile  = "increase_requests.csv"
)

var (
	customersHeader = []string{"customer_id", "name", "birth_date", "score", "limit"}
	bandsHeader     = []string{"score_min", "score_max", "max_limit"}
	requestsHeader  = []string{"customer_id", "requested_at", "limit_at_request", "requested_limit", "status"}
)

var (
	// ErrStorageUnavailable indicates the backing file could not be read or
	// written. Callers surface it as a customer-facing apology.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")

	// ErrCustomerNotFound indicates an update matched no customer row.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrNoPendingRequest indicates no pending increase request exists for the
	// customer.
	ErrNoPendingRequest = errors.New("no pending increase request")
)

// Request status values.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Customer is a row of the customers table.
type Customer struct {
	ID        string  `json:"customerId"`
	Name      string  `json:"name"`
	BirthDate string  `json:"birthDate"` // DD/MM/YYYY
	Score     int     `json:"score"`
	Limit     float64 `json:"limit"`
}

// ScoreBand maps an inclusive score range to the maximum approvable limit.
type ScoreBand struct {
	Min      int     `json:"scoreMin"`
	Max      int     `json:"scoreMax"`
	MaxLimit float64 `json:"maxLimit"`
}

// IncreaseRequest is a row of the limit-increase audit trail.
type IncreaseRequest struct {
	CustomerID     string    `json:"customerId"`
	RequestedAt    time.Time `json:"requestedAt"`
	LimitAtRequest float64   `json:"limitAtRequest"`
	RequestedLimit float64   `json:"requestedLimit"`
	Status         string    `json:"status"`
}

// Store provides access to the three ledger tables under a single directory.
type Store struct {
	dir string

	// One writer per table at a time within this process; the lock file
	// extends the exclusion to external writers.
	tableLocks map[string]*sync.Mutex
	locksMu    sync.Mutex

	bandCache   []ScoreBand
	bandCacheOK bool
	bandMu      sync.Mutex
}

// New opens a store rooted at dir, creating missing table files with their
// headers.
func New(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		return nil, fmt.Errorf("ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		tableLocks: make(map[string]*sync.Mutex),
	}

	for file, header := range map[string][]string{
		customersFile: customersHeader,
		bandsFile:     bandsHeader,
		requestsFile:  requestsHeader,
	} {
		if err := s.ensureTable(file, header); err != nil {
			return nil, err
		}
	}

	log.Info().Str("dir", dir).Msg("Ledger store opened")
	return s, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(file string) string {
	return filepath.Join(s.dir, file)
}

func (s *Store) ensureTable(file string, header []string) error {
	path := s.path(file)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}
	return s.writeAtomic(file, header, nil)
}

func (s *Store) tableLock(file string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if l, ok := s.tableLocks[file]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.tableLocks[file] = l
	return l
}

// withExclusive runs fn while holding both the in-process table mutex and the
// on-disk lock file for the table.
func (s *Store) withExclusive(file string, fn func() error) error {
	mu := s.tableLock(file)
	mu.Lock()
	defer mu.Unlock()

	release, err := acquireFileLock(s.path(file))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer release()

	return fn()
}

// NormalizeCustomerID strips formatting punctuation, keeping digits only.
func NormalizeCustomerID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// readTable parses the full table, returning its data rows (header excluded).
func (s *Store) readTable(file string, wantColumns int) ([][]string, error) {
	f, err := os.Open(s.path(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != wantColumns {
			log.Warn().
				Str("table", file).
				Int("line", i+2).
				Int("columns", len(rec)).
				Msg("Skipping malformed row")
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// writeAtomic replaces the table file via temp-file-then-rename so readers
// never observe a torn write.
func (s *Store) writeAtomic(file string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(s.dir, file+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpPath, s.path(file)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func formatLimit(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 1000 {
		return 1000
	}
	return score
}
