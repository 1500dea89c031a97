package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/rs/zerolog/log"
)

// ListIncreaseRequests parses the full increase-request audit trail in
// insertion order.
func (s *Store) ListIncreaseRequests() ([]IncreaseRequest, error) {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("increase_requests", "list", time.Since(start)) }()

	rows, err := s.readTable(requestsFile, len(requestsHeader))
	if err != nil {
		return nil, err
	}

	requests := make([]IncreaseRequest, 0, len(rows))
	for _, row := range rows {
		at, err1 := time.Parse(time.RFC3339, row[1])
		limitAt, err2 := strconv.ParseFloat(row[2], 64)
		requested, err3 := strconv.ParseFloat(row[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Warn().Strs("row", row).Msg("Skipping malformed increase request")
			continue
		}
		requests = append(requests, IncreaseRequest{
			CustomerID:     row[0],
			RequestedAt:    at,
			LimitAtRequest: limitAt,
			RequestedLimit: requested,
			Status:         row[4],
		})
	}
	return requests, nil
}

// AppendIncreaseRequest appends one pending row to the audit trail. The
// append holds the table lock but never rewrites existing rows.
func (s *Store) AppendIncreaseRequest(r IncreaseRequest) error {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("increase_requests", "append", time.Since(start)) }()

	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now()
	}

	return s.withExclusive(requestsFile, func() error {
		rows, err := s.readTable(requestsFile, len(requestsHeader))
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			r.CustomerID,
			r.RequestedAt.Format(time.RFC3339),
			formatLimit(r.LimitAtRequest),
			formatLimit(r.RequestedLimit),
			r.Status,
		})
		if err := s.writeAtomic(requestsFile, requestsHeader, rows); err != nil {
			return err
		}

		observability.RecordLedgerAudit("increase_request_append", NormalizeCustomerID(r.CustomerID), "success", map[string]interface{}{
			"requested_limit": r.RequestedLimit,
		})
		return nil
	})
}

// ResolvePendingRequest transitions the most recently appended pending row for
// the customer to the given status. Rows are scanned in reverse insertion
// order; the first match wins. Returns ErrNoPendingRequest when the customer
// has no pending row.
func (s *Store) ResolvePendingRequest(customerID, status string) error {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("increase_requests", "resolve", time.Since(start)) }()

	if status != StatusApproved && status != StatusRejected {
		return fmt.Errorf("invalid resolution status: %q", status)
	}

	want := NormalizeCustomerID(customerID)

	return s.withExclusive(requestsFile, func() error {
		rows, err := s.readTable(requestsFile, len(requestsHeader))
		if err != nil {
			return err
		}

		found := -1
		for i := len(rows) - 1; i >= 0; i-- {
			if NormalizeCustomerID(rows[i][0]) == want && rows[i][4] == StatusPending {
				found = i
				break
			}
		}
		if found < 0 {
			return ErrNoPendingRequest
		}

		rows[found][4] = status
		if err := s.writeAtomic(requestsFile, requestsHeader, rows); err != nil {
			return err
		}

		observability.RecordLedgerAudit("increase_request_resolve", want, "success", map[string]interface{}{
			"resolution": status,
		})
		log.Debug().
			Str("customer_id", want).
			Str("status", status).
			Msg("Increase request resolved")
		return nil
	})
}
