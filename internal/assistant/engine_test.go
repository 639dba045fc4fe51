package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/cache"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
)

type fakeDelegate struct {
	reply string
	err   error
	calls int
}

func (d *fakeDelegate) Complete(_ context.Context, _ string, _ string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.reply, nil
}

type mapCache struct {
	values map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, answer string, _ time.Duration) error {
	c.values[key] = answer
	return nil
}

func testSnapshot() domain.BusinessSnapshot {
	return domain.BusinessSnapshot{
		Products: []domain.Product{
			{ID: "p1", Name: "Rice 25kg", Stock: 7, Price: decimal.NewFromInt(20), Cost: decimal.NewFromInt(5), Category: "staples"},
			{ID: "p2", Name: "Phone Card", Stock: 0, Price: decimal.NewFromInt(2), Cost: decimal.NewFromInt(1)},
		},
		Sales: []domain.Sale{
			{ID: "s1", ProductID: "p1", ProductName: "Rice 25kg", Quantity: 3,
				PricePerUnit: decimal.NewFromInt(20), Total: decimal.NewFromInt(60), Profit: decimal.NewFromInt(45),
				Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		Settings:      domain.Settings{BusinessName: "Corner Shop", Currency: "USD", LowStockThreshold: 10},
		ReferenceDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestAnswerDelegatesAndCaches(t *testing.T) {
	delegate := &fakeDelegate{reply: "Rice is your best seller."}
	answerCache := newMapCache()
	engine := NewEngine(delegate, answerCache, time.Minute, "test-model", nil)

	first := engine.Answer(context.Background(), "sk-test", "what sells best?", testSnapshot())
	require.False(t, first.Fallback)
	assert.Equal(t, "Rice is your best seller.", first.Answer)
	assert.Equal(t, "test-model", first.Model)
	assert.False(t, first.FromCache)

	second := engine.Answer(context.Background(), "sk-test", "what sells best?", testSnapshot())
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, 1, delegate.calls, "cached answer must not hit the delegate again")
}

func TestAnswerCacheKeyTracksData(t *testing.T) {
	delegate := &fakeDelegate{reply: "answer"}
	engine := NewEngine(delegate, newMapCache(), time.Minute, "test-model", nil)

	snapshot := testSnapshot()
	engine.Answer(context.Background(), "sk-test", "stock?", snapshot)

	// A stock change invalidates the cached answer for the same question.
	snapshot.Products[0].Stock = 2
	engine.Answer(context.Background(), "sk-test", "stock?", snapshot)
	assert.Equal(t, 2, delegate.calls)
}

func TestAnswerFallsBackOnDelegateFailure(t *testing.T) {
	engine := NewEngine(&fakeDelegate{err: errors.New("boom")}, cache.NewNoop(), time.Minute, "test-model", nil)

	answer := engine.Answer(context.Background(), "sk-test", "anything", testSnapshot())
	assert.True(t, answer.Fallback)
	assert.NotEmpty(t, answer.Answer)
	assert.Empty(t, answer.Model)
}

func TestBuildPromptIncludesBusinessData(t *testing.T) {
	prompt := buildPrompt("how much rice is left?", testSnapshot())

	assert.Contains(t, prompt, "Corner Shop")
	assert.Contains(t, prompt, "Rice 25kg: stock 7")
	assert.Contains(t, prompt, "Low stock: Rice 25kg")
	assert.Contains(t, prompt, "Out of stock: Phone Card")
	assert.Contains(t, prompt, "how much rice is left?")
	assert.True(t, strings.Contains(prompt, "revenue 60.00"), "prompt should carry totals: %s", prompt)
}
