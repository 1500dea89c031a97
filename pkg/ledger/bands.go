package ledger

import (
	"strconv"
	"time"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/rs/zerolog/log"
)

// ListScoreBands parses the score band reference table.
func (s *Store) ListScoreBands() ([]ScoreBand, error) {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("score_bands", "list", time.Since(start)) }()

	rows, err := s.readTable(bandsFile, len(bandsHeader))
	if err != nil {
		return nil, err
	}

	bands := make([]ScoreBand, 0, len(rows))
	for _, row := range rows {
		min, err1 := strconv.Atoi(row[0])
		max, err2 := strconv.Atoi(row[1])
		limit, err3 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Warn().Strs("row", row).Msg("Skipping malformed score band")
			continue
		}
		bands = append(bands, ScoreBand{Min: min, Max: max, MaxLimit: limit})
	}
	return bands, nil
}

// MaxLimitForScore returns the maximum approvable limit for a score. A score
// covered by no band yields 0, not an error.
func (s *Store) MaxLimitForScore(score int) (float64, error) {
	s.bandMu.Lock()
	defer s.bandMu.Unlock()

	if !s.bandCacheOK {
		bands, err := s.ListScoreBands()
		if err != nil {
			return 0, err
		}
		s.bandCache = bands
		s.bandCacheOK = true
	}

	for _, band := range s.bandCache {
		if score >= band.Min && score <= band.Max {
			return band.MaxLimit, nil
		}
	}
	return 0, nil
}

// InvalidateBandCache discards the cached score band table. Called by the
// directory watcher when the file changes on disk.
func (s *Store) InvalidateBandCache() {
	s.bandMu.Lock()
	s.bandCacheOK = false
	s.bandCache = nil
	s.bandMu.Unlock()
}
