package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/assistant"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/cache"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store/memory"
)

type stubDelegate struct {
	reply string
	err   error
	calls int
}

func (d *stubDelegate) Complete(_ context.Context, _ string, _ string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.reply, nil
}

func newTestService() *Service {
	return newTestServiceWithDelegate(&stubDelegate{reply: "stub answer"})
}

func newTestServiceWithDelegate(delegate assistant.Delegate) *Service {
	repo := memory.New()
	engine := assistant.NewEngine(delegate, cache.NewNoop(), 5*time.Second, "test-model", nil)
	return New(repo, engine, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func createTestProduct(t *testing.T, svc *Service, ctx context.Context) *domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:         "Rice 25kg",
		Category:     "staples",
		Price:        d("20"),
		Cost:         d("5"),
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCreateProductValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "  ", Price: d("10")})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Oil", Price: d("-1")})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for negative price, got %v", err)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Oil", Price: d("1"), InitialStock: -4})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for negative stock, got %v", err)
	}
}

func TestCreateSaleDecrementsStockAndSnapshotsTotals(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: product.ID,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if !sale.Total.Equal(d("60")) {
		t.Fatalf("expected total 60, got %s", sale.Total)
	}
	if !sale.Profit.Equal(d("45")) {
		t.Fatalf("expected profit 45, got %s", sale.Profit)
	}
	if sale.ProductName != "Rice 25kg" {
		t.Fatalf("expected product name snapshot, got %q", sale.ProductName)
	}

	updated, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if updated.Stock != 7 {
		t.Fatalf("expected stock 7 after selling 3 of 10, got %d", updated.Stock)
	}
}

func TestCreateSaleWithExplicitPrice(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	price := d("18")
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:    product.ID,
		Quantity:     2,
		PricePerUnit: &price,
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if !sale.Total.Equal(d("36")) {
		t.Fatalf("expected total 36, got %s", sale.Total)
	}
	if !sale.Profit.Equal(d("26")) {
		t.Fatalf("expected profit 26, got %s", sale.Profit)
	}
}

func TestCreateSaleInsufficientStockLeavesStateUnchanged(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: product.ID,
		Quantity:  11,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	unchanged, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if unchanged.Stock != 10 {
		t.Fatalf("expected stock to stay 10 after failed sale, got %d", unchanged.Stock)
	}

	sales, err := svc.ListSales(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale recorded, got %d", len(sales))
	}
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{ProductID: "prod-missing", Quantity: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreateSaleUnknownCustomer(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  product.ID,
		CustomerID: "cust-missing",
		Quantity:   1,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSaleSnapshotsSurviveLaterEdits(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Mariam", Type: "vip"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  product.ID,
		CustomerID: customer.ID,
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	newName := "Premium Rice 25kg"
	if _, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Name: &newName}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	renamed := "Mariam K."
	if _, err := svc.UpdateCustomer(ctx, customer.ID, domain.CustomerUpdateRequest{Name: &renamed}); err != nil {
		t.Fatalf("update customer failed: %v", err)
	}
	if _, err := svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{Quantity: 10, CostPerUnit: d("9")}); err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}

	sales, err := svc.ListSales(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale, got %d", len(sales))
	}
	got := sales[0]
	if got.ProductName != "Rice 25kg" {
		t.Fatalf("product name snapshot changed to %q", got.ProductName)
	}
	if got.CustomerName != "Mariam" {
		t.Fatalf("customer name snapshot changed to %q", got.CustomerName)
	}
	if !got.Profit.Equal(sale.Profit) {
		t.Fatalf("profit snapshot changed from %s to %s", sale.Profit, got.Profit)
	}
}

func TestReceiveStockWeightedAverage(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	updated, err := svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{
		Quantity:    10,
		CostPerUnit: d("8"),
	})
	if err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}
	if updated.Stock != 20 {
		t.Fatalf("expected stock 20, got %d", updated.Stock)
	}
	if !updated.Cost.Equal(d("6.5")) {
		t.Fatalf("expected cost 6.5, got %s", updated.Cost)
	}
}

func TestReceiveStockValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	if _, err := svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{Quantity: 0, CostPerUnit: d("8")}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{Quantity: 3, CostPerUnit: d("-8")}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCustomerTypeValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Walk-in"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	if customer.Type != domain.CustomerTypeRegular {
		t.Fatalf("expected default type regular, got %q", customer.Type)
	}

	if _, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Bad", Type: "wholesale"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	expense, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Fuel for generator",
		Category:    "utilities",
		Amount:      d("30"),
		Date:        "2025-06-01",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	amount := d("35")
	updated, err := svc.UpdateExpense(ctx, expense.ID, domain.ExpenseUpdateRequest{Amount: &amount})
	if err != nil {
		t.Fatalf("update expense failed: %v", err)
	}
	if !updated.Amount.Equal(d("35")) {
		t.Fatalf("expected amount 35, got %s", updated.Amount)
	}

	if err := svc.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("delete expense failed: %v", err)
	}
	if err := svc.DeleteExpense(ctx, expense.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestUpdateSettingsRequiresAdmin(t *testing.T) {
	svc := newTestService()

	name := "Corner Shop"
	if _, err := svc.UpdateSettings(staffCtx(), domain.SettingsUpdateRequest{BusinessName: &name}); err == nil {
		t.Fatalf("expected staff settings update to be rejected")
	}

	updated, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{BusinessName: &name})
	if err != nil {
		t.Fatalf("admin settings update failed: %v", err)
	}
	if updated.BusinessName != "Corner Shop" {
		t.Fatalf("expected business name to change, got %q", updated.BusinessName)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	threshold := 0
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{LowStockThreshold: &threshold}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for threshold 0, got %v", err)
	}
}

func TestReportSummary(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	debtor, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Joseph", Type: "debtor"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{ProductID: product.ID, Quantity: 5}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{ProductID: product.ID, CustomerID: debtor.ID, Quantity: 2}); err != nil {
		t.Fatalf("create debtor sale failed: %v", err)
	}
	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Description: "Rent", Amount: d("30")}); err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	report, err := svc.ReportSummary(ctx, nil, nil)
	if err != nil {
		t.Fatalf("report summary failed: %v", err)
	}

	if report.SalesCount != 2 {
		t.Fatalf("expected 2 sales, got %d", report.SalesCount)
	}
	if !report.Revenue.Equal(d("140")) {
		t.Fatalf("expected revenue 140, got %s", report.Revenue)
	}
	if !report.NetProfit.Equal(d("110")) {
		t.Fatalf("expected net profit 110, got %s", report.NetProfit)
	}
	if !report.GrossProfit.Equal(d("105")) {
		t.Fatalf("expected gross profit 105, got %s", report.GrossProfit)
	}
	if !report.DebtExposure.Equal(d("40")) {
		t.Fatalf("expected debt exposure 40, got %s", report.DebtExposure)
	}
	if len(report.TopProducts) != 1 || report.TopProducts[0].Units != 7 {
		t.Fatalf("unexpected top products: %+v", report.TopProducts)
	}
	// 3 left of 10 after selling 7, under the default threshold of 10.
	if len(report.LowStock) != 1 {
		t.Fatalf("expected 1 low stock product, got %d", len(report.LowStock))
	}
}

func TestReportSummaryRespectsDateRange(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{ProductID: product.ID, Quantity: 1, Date: "2025-06-01"}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{ProductID: product.ID, Quantity: 1, Date: "2025-07-01"}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	report, err := svc.ReportSummary(ctx, &from, &to)
	if err != nil {
		t.Fatalf("report summary failed: %v", err)
	}
	if report.SalesCount != 1 {
		t.Fatalf("expected 1 sale in June, got %d", report.SalesCount)
	}
	if report.From != "2025-06-01" || report.To != "2025-06-30" {
		t.Fatalf("unexpected report window: %s to %s", report.From, report.To)
	}
}

func TestAssistantQuery(t *testing.T) {
	delegate := &stubDelegate{reply: "You sold 3 bags of rice."}
	svc := newTestServiceWithDelegate(delegate)
	ctx := adminCtx()

	key := "sk-test"
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{AssistantAPIKey: &key}); err != nil {
		t.Fatalf("update settings failed: %v", err)
	}

	answer, err := svc.AssistantQuery(ctx, domain.AssistantQueryRequest{Query: "How is rice selling?"})
	if err != nil {
		t.Fatalf("assistant query failed: %v", err)
	}
	if answer.Fallback {
		t.Fatalf("expected a live answer, got fallback")
	}
	if answer.Answer != "You sold 3 bags of rice." {
		t.Fatalf("unexpected answer %q", answer.Answer)
	}
	if delegate.calls != 1 {
		t.Fatalf("expected 1 delegate call, got %d", delegate.calls)
	}
}

func TestAssistantQueryFallsBackOnDelegateError(t *testing.T) {
	svc := newTestServiceWithDelegate(&stubDelegate{err: errors.New("upstream timeout")})

	answer, err := svc.AssistantQuery(adminCtx(), domain.AssistantQueryRequest{Query: "What sells best?"})
	if err != nil {
		t.Fatalf("assistant query failed: %v", err)
	}
	if !answer.Fallback {
		t.Fatalf("expected fallback answer on delegate failure")
	}
}

func TestAssistantQueryDisabled(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	enabled := false
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{EnableAssistant: &enabled}); err != nil {
		t.Fatalf("update settings failed: %v", err)
	}

	if _, err := svc.AssistantQuery(ctx, domain.AssistantQueryRequest{Query: "anything"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error when assistant disabled, got %v", err)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, ctx)

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) < 2 {
		t.Fatalf("expected at least 2 entries, got %d", len(logs))
	}
	// Newest first.
	if logs[0].Action != "sale.create" {
		t.Fatalf("expected newest entry to be sale.create, got %q", logs[0].Action)
	}
	if logs[0].ActorUsername != "admin" {
		t.Fatalf("expected actor admin, got %q", logs[0].ActorUsername)
	}

	if _, err := svc.ListAuditLogs(staffCtx(), time.Time{}, time.Time{}, 10); err == nil {
		t.Fatalf("expected staff audit log access to be rejected")
	}
}
