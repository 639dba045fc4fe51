// Package metrics derives dashboard and report figures from entity
// collections. Every function is a pure aggregation over its inputs,
// parameterized by an optional date range; inputs are never mutated.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
)

const dayFormat = "2006-01-02"

// Range bounds a report window. Both ends are inclusive: To is widened to the
// end of its day, so a record dated exactly on To's date is included. A nil
// bound means unbounded on that side.
type Range struct {
	From *time.Time
	To   *time.Time
}

func (r Range) Contains(t time.Time) bool {
	if r.From != nil {
		from := startOfDay(*r.From)
		if t.Before(from) {
			return false
		}
	}
	if r.To != nil {
		end := startOfDay(*r.To).Add(24*time.Hour - time.Nanosecond)
		if t.After(end) {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FilterByDate keeps the records whose date falls inside the range.
func FilterByDate[T any](records []T, date func(T) time.Time, r Range) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		if r.Contains(date(record)) {
			out = append(out, record)
		}
	}
	return out
}

func FilterSales(sales []domain.Sale, r Range) []domain.Sale {
	return FilterByDate(sales, func(s domain.Sale) time.Time { return s.Date }, r)
}

func FilterExpenses(expenses []domain.Expense, r Range) []domain.Expense {
	return FilterByDate(expenses, func(e domain.Expense) time.Time { return e.Date }, r)
}

// AggregateProfit sums per-sale profit into daily buckets, ascending by date.
// Profit is recomputed against the product's current cost when the product is
// still resolvable; sales whose product is gone contribute zero. The profit
// snapshot stored on each Sale is untouched.
func AggregateProfit(sales []domain.Sale, products []domain.Product, r Range) []domain.ProfitPoint {
	costByID := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		costByID[p.ID] = p.Cost
	}

	byDay := make(map[string]decimal.Decimal)
	for _, sale := range FilterSales(sales, r) {
		cost, ok := costByID[sale.ProductID]
		if !ok {
			continue
		}
		profit := sale.PricePerUnit.Sub(cost).Mul(decimal.NewFromInt(int64(sale.Quantity)))
		day := sale.Date.UTC().Format(dayFormat)
		byDay[day] = byDay[day].Add(profit)
	}

	points := make([]domain.ProfitPoint, 0, len(byDay))
	for day, profit := range byDay {
		points = append(points, domain.ProfitPoint{Date: day, Profit: profit})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// RevenueSeries buckets sale totals by day, ascending.
func RevenueSeries(sales []domain.Sale, r Range) []domain.SeriesPoint {
	byDay := make(map[string]decimal.Decimal)
	for _, sale := range FilterSales(sales, r) {
		day := sale.Date.UTC().Format(dayFormat)
		byDay[day] = byDay[day].Add(sale.Total)
	}

	points := make([]domain.SeriesPoint, 0, len(byDay))
	for day, revenue := range byDay {
		points = append(points, domain.SeriesPoint{Date: day, Revenue: revenue})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

const (
	KeyProduct  = "product"
	KeyCustomer = "customer"

	ByRevenue = "revenue"
	ByUnits   = "units"
)

// TopN groups sales by product or customer, ranks descending by summed
// revenue or units, and truncates to n (default 5). Ties keep first-seen
// order. Sales without a customer are skipped when keying by customer.
func TopN(sales []domain.Sale, key string, n int, by string) []domain.RankEntry {
	if n < 1 {
		n = 5
	}

	index := make(map[string]int, len(sales))
	entries := make([]domain.RankEntry, 0, len(sales))
	for _, sale := range sales {
		id := sale.ProductID
		name := sale.ProductName
		if key == KeyCustomer {
			id = sale.CustomerID
			name = sale.CustomerName
		}
		if id == "" {
			continue
		}

		pos, seen := index[id]
		if !seen {
			pos = len(entries)
			index[id] = pos
			entries = append(entries, domain.RankEntry{ID: id, Name: name})
		}
		entries[pos].Revenue = entries[pos].Revenue.Add(sale.Total)
		entries[pos].Units += sale.Quantity
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if by == ByUnits {
			return entries[i].Units > entries[j].Units
		}
		return entries[i].Revenue.Cmp(entries[j].Revenue) > 0
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// NetProfit is total sale revenue minus total expenses over the given window.
func NetProfit(sales []domain.Sale, expenses []domain.Expense, r Range) decimal.Decimal {
	net := decimal.Zero
	for _, sale := range FilterSales(sales, r) {
		net = net.Add(sale.Total)
	}
	for _, expense := range FilterExpenses(expenses, r) {
		net = net.Sub(expense.Amount)
	}
	return net
}

// GrossProfit sums the profit snapshots of the sales in the window.
func GrossProfit(sales []domain.Sale, r Range) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range FilterSales(sales, r) {
		total = total.Add(sale.Profit)
	}
	return total
}

// Revenue sums sale totals in the window.
func Revenue(sales []domain.Sale, r Range) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range FilterSales(sales, r) {
		total = total.Add(sale.Total)
	}
	return total
}

// ExpenseTotal sums expense amounts in the window.
func ExpenseTotal(expenses []domain.Expense, r Range) decimal.Decimal {
	total := decimal.Zero
	for _, expense := range FilterExpenses(expenses, r) {
		total = total.Add(expense.Amount)
	}
	return total
}

// AverageSale is revenue divided by sale count, zero for an empty window.
func AverageSale(sales []domain.Sale, r Range) decimal.Decimal {
	filtered := FilterSales(sales, r)
	if len(filtered) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, sale := range filtered {
		total = total.Add(sale.Total)
	}
	return total.DivRound(decimal.NewFromInt(int64(len(filtered))), 4)
}

// LowStock returns products with 0 < stock < threshold. Disjoint from
// OutOfStock by construction.
func LowStock(products []domain.Product, threshold int) []domain.Product {
	if threshold < 1 {
		threshold = domain.DefaultLowStockThreshold
	}
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.Stock > 0 && p.Stock < threshold {
			out = append(out, p)
		}
	}
	return out
}

// OutOfStock returns products whose stock is exactly zero.
func OutOfStock(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range products {
		if p.Stock == 0 {
			out = append(out, p)
		}
	}
	return out
}

// DebtExposure sums the full total of every sale attributed to a customer of
// type debtor. This is an upper-bound estimate, not a ledger balance: partial
// payments are not tracked.
func DebtExposure(sales []domain.Sale, customers []domain.Customer, r Range) decimal.Decimal {
	debtors := make(map[string]struct{})
	for _, c := range customers {
		if c.Type == domain.CustomerTypeDebtor {
			debtors[c.ID] = struct{}{}
		}
	}

	exposure := decimal.Zero
	for _, sale := range FilterSales(sales, r) {
		if sale.CustomerID == "" {
			continue
		}
		if _, ok := debtors[sale.CustomerID]; ok {
			exposure = exposure.Add(sale.Total)
		}
	}
	return exposure
}

// RevenueByCategory groups sale totals by the current category of the sold
// product, descending by revenue. Sales whose product is gone are skipped.
func RevenueByCategory(sales []domain.Sale, products []domain.Product, r Range) []domain.CategoryRevenue {
	categoryByID := make(map[string]string, len(products))
	for _, p := range products {
		categoryByID[p.ID] = p.Category
	}

	index := make(map[string]int)
	out := make([]domain.CategoryRevenue, 0)
	for _, sale := range FilterSales(sales, r) {
		category, ok := categoryByID[sale.ProductID]
		if !ok {
			continue
		}
		if category == "" {
			category = "uncategorized"
		}
		pos, seen := index[category]
		if !seen {
			pos = len(out)
			index[category] = pos
			out = append(out, domain.CategoryRevenue{Category: category})
		}
		out[pos].Revenue = out[pos].Revenue.Add(sale.Total)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.Cmp(out[j].Revenue) > 0
	})
	return out
}
