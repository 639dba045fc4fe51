// Package assistant answers free-form questions about the business by
// summarizing current data into a prompt and delegating to a language model.
package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/cache"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/metrics"
)

const fallbackAnswer = "The assistant is unavailable right now. " +
	"Your sales, inventory, and expense reports are still up to date; please try again in a moment."

type Engine struct {
	delegate Delegate
	cache    cache.AnswerCache
	cacheTTL time.Duration
	model    string
	logger   *zap.Logger
}

func NewEngine(delegate Delegate, answerCache cache.AnswerCache, cacheTTL time.Duration, model string, logger *zap.Logger) *Engine {
	if answerCache == nil {
		answerCache = cache.NewNoop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		delegate: delegate,
		cache:    answerCache,
		cacheTTL: cacheTTL,
		model:    model,
		logger:   logger,
	}
}

// Answer resolves a question against the snapshot. A delegate failure is not
// fatal: the caller gets a canned fallback answer with Fallback set.
func (e *Engine) Answer(ctx context.Context, apiKey string, query string, snapshot domain.BusinessSnapshot) domain.AssistantAnswer {
	now := time.Now().UTC().Format(time.RFC3339)
	key := cacheKey(query, snapshot)

	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Warn("assistant cache lookup failed", zap.Error(err))
	} else if ok {
		return domain.AssistantAnswer{Answer: cached, Model: e.model, FromCache: true, At: now}
	}

	reply, err := e.delegate.Complete(ctx, apiKey, buildPrompt(query, snapshot))
	if err != nil {
		e.logger.Warn("assistant delegate failed", zap.Error(err))
		return domain.AssistantAnswer{Answer: fallbackAnswer, Fallback: true, At: now}
	}

	if err := e.cache.Set(ctx, key, reply, e.cacheTTL); err != nil {
		e.logger.Warn("assistant cache write failed", zap.Error(err))
	}
	return domain.AssistantAnswer{Answer: reply, Model: e.model, At: now}
}

// cacheKey digests the question together with the data it was asked against,
// so a change to sales or inventory invalidates the cached answer.
func cacheKey(query string, snapshot domain.BusinessSnapshot) string {
	h := sha256.New()
	fmt.Fprintf(h, "q:%s|p:%d|c:%d|s:%d|e:%d|d:%s",
		strings.ToLower(strings.TrimSpace(query)),
		len(snapshot.Products), len(snapshot.Customers), len(snapshot.Sales), len(snapshot.Expenses),
		snapshot.ReferenceDate.Format("2006-01-02"))
	for _, sale := range snapshot.Sales {
		fmt.Fprintf(h, "|%s:%s", sale.ID, sale.Total.String())
	}
	for _, product := range snapshot.Products {
		fmt.Fprintf(h, "|%s:%d", product.ID, product.Stock)
	}
	return "assistant:" + hex.EncodeToString(h.Sum(nil))
}

func buildPrompt(query string, snapshot domain.BusinessSnapshot) string {
	currency := snapshot.Settings.Currency
	if currency == "" {
		currency = "USD"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s (currency %s, date %s)\n",
		snapshot.Settings.BusinessName, currency, snapshot.ReferenceDate.Format("2006-01-02"))

	all := metrics.Range{}
	revenue := metrics.Revenue(snapshot.Sales, all)
	expenses := metrics.ExpenseTotal(snapshot.Expenses, all)
	fmt.Fprintf(&b, "Totals: revenue %s, expenses %s, net profit %s across %d sales\n",
		revenue.StringFixed(2), expenses.StringFixed(2),
		metrics.NetProfit(snapshot.Sales, snapshot.Expenses, all).StringFixed(2), len(snapshot.Sales))

	fmt.Fprintf(&b, "Inventory (%d products):\n", len(snapshot.Products))
	for _, product := range snapshot.Products {
		fmt.Fprintf(&b, "- %s: stock %d, price %s, cost %s, category %s\n",
			product.Name, product.Stock, product.Price.StringFixed(2), product.Cost.StringFixed(2), product.Category)
	}

	if low := metrics.LowStock(snapshot.Products, snapshot.Settings.LowStockThreshold); len(low) > 0 {
		b.WriteString("Low stock: ")
		b.WriteString(joinProductNames(low))
		b.WriteString("\n")
	}
	if out := metrics.OutOfStock(snapshot.Products); len(out) > 0 {
		b.WriteString("Out of stock: ")
		b.WriteString(joinProductNames(out))
		b.WriteString("\n")
	}

	if len(snapshot.Sales) > 0 {
		b.WriteString("Top products by revenue:\n")
		for _, entry := range metrics.TopN(snapshot.Sales, metrics.KeyProduct, 5, metrics.ByRevenue) {
			fmt.Fprintf(&b, "- %s: revenue %s, units %d\n", entry.Name, entry.Revenue.StringFixed(2), entry.Units)
		}
	}

	if snapshot.Settings.EnableDebtTracking {
		exposure := metrics.DebtExposure(snapshot.Sales, snapshot.Customers, all)
		if exposure.GreaterThan(decimal.Zero) {
			fmt.Fprintf(&b, "Estimated debtor exposure (upper bound): %s\n", exposure.StringFixed(2))
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}

func joinProductNames(products []domain.Product) string {
	names := make([]string, 0, len(products))
	for _, product := range products {
		names = append(names, product.Name)
	}
	return strings.Join(names, ", ")
}
