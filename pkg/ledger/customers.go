package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/rs/zerolog/log"
)

// ListCustomers parses the full customers table.
func (s *Store) ListCustomers() ([]Customer, error) {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("customers", "list", time.Since(start)) }()

	rows, err := s.readTable(customersFile, len(customersHeader))
	if err != nil {
		return nil, err
	}

	customers := make([]Customer, 0, len(rows))
	for _, row := range rows {
		score, err := strconv.Atoi(row[3])
		if err != nil {
			log.Warn().Str("customer_id", row[0]).Err(err).Msg("Skipping customer with invalid score")
			continue
		}
		limit, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			log.Warn().Str("customer_id", row[0]).Err(err).Msg("Skipping customer with invalid limit")
			continue
		}
		customers = append(customers, Customer{
			ID:        row[0],
			Name:      row[1],
			BirthDate: row[2],
			Score:     score,
			Limit:     limit,
		})
	}
	return customers, nil
}

// FindCustomer returns the customer whose normalized identifier matches id.
func (s *Store) FindCustomer(id string) (*Customer, error) {
	customers, err := s.ListCustomers()
	if err != nil {
		return nil, err
	}

	want := NormalizeCustomerID(id)
	for i := range customers {
		if NormalizeCustomerID(customers[i].ID) == want {
			return &customers[i], nil
		}
	}
	return nil, ErrCustomerNotFound
}

// UpdateCustomerScore rewrites the customers table with the matching row's
// score replaced, clamped to [0, 1000]. Returns ErrCustomerNotFound when no
// row matches the normalized identifier.
func (s *Store) UpdateCustomerScore(customerID string, newScore int) error {
	return s.updateCustomerColumn(customerID, "score", func(row []string) {
		row[3] = strconv.Itoa(clampScore(newScore))
	})
}

// UpdateCustomerLimit rewrites the customers table with the matching row's
// limit replaced, persisted with two decimal places.
func (s *Store) UpdateCustomerLimit(customerID string, newLimit float64) error {
	if newLimit < 0 {
		return fmt.Errorf("limit must not be negative: %v", newLimit)
	}
	return s.updateCustomerColumn(customerID, "limit", func(row []string) {
		row[4] = formatLimit(newLimit)
	})
}

func (s *Store) updateCustomerColumn(customerID, op string, mutate func(row []string)) error {
	start := time.Now()
	defer func() { observability.RecordLedgerOp("customers", "update_"+op, time.Since(start)) }()

	want := NormalizeCustomerID(customerID)

	return s.withExclusive(customersFile, func() error {
		rows, err := s.readTable(customersFile, len(customersHeader))
		if err != nil {
			return err
		}

		matched := false
		for _, row := range rows {
			if NormalizeCustomerID(row[0]) == want {
				mutate(row)
				matched = true
			}
		}
		if !matched {
			return ErrCustomerNotFound
		}

		if err := s.writeAtomic(customersFile, customersHeader, rows); err != nil {
			return err
		}

		observability.RecordLedgerAudit("customers_update_"+op, want, "success", nil)
		log.Debug().Str("customer_id", want).Str("column", op).Msg("Customer row updated")
		return nil
	})
}
