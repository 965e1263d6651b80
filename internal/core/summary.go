package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// SumByCategory totals transaction amounts per category.
// Transactions without a category are grouped under "uncategorized".
func SumByCategory(txs []Transaction) map[string]Money {
	out := make(map[string]Money)
	for _, tx := range txs {
		name := tx.Category
		if name == "" {
			name = "uncategorized"
		}
		out[name] = out[name].Add(tx.Amount)
	}
	return out
}

// SortedCategoryAmounts flattens a category map, largest amount first, ties by name.
func SortedCategoryAmounts(m map[string]Money) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for name, amt := range m {
		out = append(out, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Amount.Cmp(out[j].Amount.Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
