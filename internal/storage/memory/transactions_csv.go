package memory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"previsioni/internal/core"
)

// Column names of a transactions CSV export.
const (
	ColOwnerID = "owner_id"
	ColDate    = "date"
	ColAmount  = "amount"
)

// ReadTransactionsCSV parses a ledger export with date, amount, category and
// description columns. Rows without an owner_id column or value get
// defaultOwner. Rows are validated; the first bad row aborts the read.
func ReadTransactionsCSV(r io.Reader, defaultOwner string) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{ColDate, ColAmount} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []core.Transaction
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := core.ParseDate(get(row, ColDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		amount, err := core.ParseMoney(get(row, ColAmount))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		owner := get(row, ColOwnerID)
		if owner == "" {
			owner = defaultOwner
		}
		tx := core.Transaction{
			OwnerID:     owner,
			Amount:      amount,
			Date:        date,
			Description: get(row, ColDescription),
			Category:    get(row, ColCategory),
		}
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
