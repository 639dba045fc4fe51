// Package service implements the business operations behind the HTTP API.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/assistant"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/metrics"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
)

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the context for audit trails.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(actorContextKey{}).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{Username: "system", Role: domain.RoleAdmin}
}

type Service struct {
	repo      store.Repository
	assistant *assistant.Engine
	logger    *zap.Logger
}

func New(repo store.Repository, engine *assistant.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, assistant: engine, logger: logger}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// --- Products ---

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
	}
	if req.Cost.IsNegative() {
		return nil, fmt.Errorf("%w: cost must not be negative", store.ErrValidation)
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", store.ErrValidation)
	}

	product := domain.Product{
		Name:          name,
		Category:      strings.TrimSpace(req.Category),
		Supplier:      strings.TrimSpace(req.Supplier),
		Description:   strings.TrimSpace(req.Description),
		Stock:         req.InitialStock,
		Price:         req.Price,
		Cost:          req.Cost,
		LastUpdatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product.create", "product", created.ID, created.Name)
	return created, nil
}

// UpdateProduct edits descriptive fields and price. Stock and cost only move
// through sales and stock receipts, which keeps the cost basis honest.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name is required", store.ErrValidation)
		}
		product.Name = name
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Supplier != nil {
		product.Supplier = strings.TrimSpace(*req.Supplier)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		product.Price = *req.Price
	}

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product.update", "product", updated.ID, updated.Name)
	return updated, nil
}

func (s *Service) ReceiveStock(ctx context.Context, productID string, req domain.ReceiveStockRequest) (*domain.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if req.CostPerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: cost per unit must not be negative", store.ErrValidation)
	}

	updated, err := s.repo.ReceiveStock(ctx, productID, req.Quantity, req.CostPerUnit)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product.receive_stock", "product", updated.ID,
		fmt.Sprintf("received %d at %s", req.Quantity, req.CostPerUnit.StringFixed(2)))
	return updated, nil
}

// --- Customers ---

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: customer id is required", store.ErrValidation)
	}
	return s.repo.GetCustomer(ctx, id)
}

func normalizeCustomerType(value string) (string, error) {
	customerType := strings.ToLower(strings.TrimSpace(value))
	if customerType == "" {
		return domain.CustomerTypeRegular, nil
	}
	switch customerType {
	case domain.CustomerTypeRegular, domain.CustomerTypeVIP, domain.CustomerTypeDebtor:
		return customerType, nil
	default:
		return "", fmt.Errorf("%w: customer type must be regular, vip, or debtor", store.ErrValidation)
	}
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	customerType, err := normalizeCustomerType(req.Type)
	if err != nil {
		return nil, err
	}

	customer := domain.Customer{
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Notes:     strings.TrimSpace(req.Notes),
		Type:      customerType,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "customer.create", "customer", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	customer, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
		}
		customer.Name = name
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Notes != nil {
		customer.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Type != nil {
		customerType, err := normalizeCustomerType(*req.Type)
		if err != nil {
			return nil, err
		}
		customer.Type = customerType
	}

	updated, err := s.repo.UpdateCustomer(ctx, *customer)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "customer.update", "customer", updated.ID, updated.Name)
	return updated, nil
}

// --- Sales ---

func (s *Service) ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return metrics.FilterSales(sales, metrics.Range{From: from, To: to}), nil
}

// CreateSale resolves the product and optional customer, snapshots their names
// onto the sale, and hands the atomic decrement-plus-insert to the repository.
// When no unit price is given the product's current price applies.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	pricePerUnit := product.Price
	if req.PricePerUnit != nil {
		if req.PricePerUnit.IsNegative() {
			return nil, fmt.Errorf("%w: price per unit must not be negative", store.ErrValidation)
		}
		pricePerUnit = *req.PricePerUnit
	}

	sale := domain.Sale{
		ProductID:    req.ProductID,
		CustomerID:   strings.TrimSpace(req.CustomerID),
		ProductName:  product.Name,
		Quantity:     req.Quantity,
		PricePerUnit: pricePerUnit,
		Notes:        strings.TrimSpace(req.Notes),
		Date:         time.Now().UTC(),
	}

	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD or RFC 3339", store.ErrValidation)
		}
		sale.Date = date
	}

	if sale.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, sale.CustomerID)
		if err != nil {
			return nil, err
		}
		sale.CustomerName = customer.Name
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale.create", "sale", created.ID,
		fmt.Sprintf("%d x %s for %s", created.Quantity, created.ProductName, created.Total.StringFixed(2)))
	return created, nil
}

// --- Expenses ---

func (s *Service) ListExpenses(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Expense, error) {
	expenses, err := s.repo.ListExpenses(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return metrics.FilterExpenses(expenses, metrics.Range{From: from, To: to}), nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: expense description is required", store.ErrValidation)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", store.ErrValidation)
	}

	expense := domain.Expense{
		Description: description,
		Category:    strings.TrimSpace(req.Category),
		Amount:      req.Amount,
		Notes:       strings.TrimSpace(req.Notes),
		Date:        time.Now().UTC(),
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD or RFC 3339", store.ErrValidation)
		}
		expense.Date = date
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "expense.create", "expense", created.ID, created.Description)
	return created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (*domain.Expense, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: expense id is required", store.ErrValidation)
	}

	expenses, err := s.repo.ListExpenses(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	var expense *domain.Expense
	for i := range expenses {
		if expenses[i].ID == id {
			expense = &expenses[i]
			break
		}
	}
	if expense == nil {
		return nil, fmt.Errorf("%w: expense %s", store.ErrNotFound, id)
	}

	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return nil, fmt.Errorf("%w: expense description is required", store.ErrValidation)
		}
		expense.Description = description
	}
	if req.Category != nil {
		expense.Category = strings.TrimSpace(*req.Category)
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: amount must not be negative", store.ErrValidation)
		}
		expense.Amount = *req.Amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD or RFC 3339", store.ErrValidation)
		}
		expense.Date = date
	}
	if req.Notes != nil {
		expense.Notes = strings.TrimSpace(*req.Notes)
	}

	updated, err := s.repo.UpdateExpense(ctx, *expense)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "expense.update", "expense", updated.ID, updated.Description)
	return updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: expense id is required", store.ErrValidation)
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense.delete", "expense", id, "")
	return nil
}

// --- Settings ---

func (s *Service) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (*domain.Settings, error) {
	actor := ActorFromContext(ctx)
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if req.BusinessName != nil {
		name := strings.TrimSpace(*req.BusinessName)
		if name == "" {
			return nil, fmt.Errorf("%w: business name is required", store.ErrValidation)
		}
		settings.BusinessName = name
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if currency == "" {
			return nil, fmt.Errorf("%w: currency is required", store.ErrValidation)
		}
		settings.Currency = currency
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 1 {
			return nil, fmt.Errorf("%w: low stock threshold must be at least 1", store.ErrValidation)
		}
		settings.LowStockThreshold = *req.LowStockThreshold
	}
	if req.EnableAssistant != nil {
		settings.EnableAssistant = *req.EnableAssistant
	}
	if req.EnableDebtTracking != nil {
		settings.EnableDebtTracking = *req.EnableDebtTracking
	}
	if req.AssistantAPIKey != nil {
		settings.AssistantAPIKey = strings.TrimSpace(*req.AssistantAPIKey)
	}

	updated, err := s.repo.UpdateSettings(ctx, *settings)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "settings.update", "settings", "settings", updated.BusinessName)
	return updated, nil
}

// --- Reports ---

func (s *Service) ReportSummary(ctx context.Context, from *time.Time, to *time.Time) (*domain.ReportSummary, error) {
	sales, err := s.repo.ListSales(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	r := metrics.Range{From: from, To: to}
	inRange := metrics.FilterSales(sales, r)

	summary := &domain.ReportSummary{
		Currency:      settings.Currency,
		Revenue:       metrics.Revenue(sales, r),
		GrossProfit:   metrics.GrossProfit(sales, r),
		ExpenseTotal:  metrics.ExpenseTotal(expenses, r),
		NetProfit:     metrics.NetProfit(sales, expenses, r),
		SalesCount:    len(inRange),
		AverageSale:   metrics.AverageSale(sales, r),
		ProfitSeries:  metrics.AggregateProfit(sales, products, r),
		RevenueSeries: metrics.RevenueSeries(sales, r),
		TopProducts:   metrics.TopN(inRange, metrics.KeyProduct, 5, metrics.ByRevenue),
		TopCustomers:  metrics.TopN(inRange, metrics.KeyCustomer, 5, metrics.ByRevenue),
		ByCategory:    metrics.RevenueByCategory(sales, products, r),
		LowStock:      metrics.LowStock(products, settings.LowStockThreshold),
		OutOfStock:    metrics.OutOfStock(products),
	}
	if settings.EnableDebtTracking {
		summary.DebtExposure = metrics.DebtExposure(sales, customers, r)
	} else {
		summary.DebtExposure = decimal.Zero
	}
	if from != nil {
		summary.From = from.Format("2006-01-02")
	}
	if to != nil {
		summary.To = to.Format("2006-01-02")
	}
	return summary, nil
}

// --- Assistant ---

func (s *Service) AssistantQuery(ctx context.Context, req domain.AssistantQueryRequest) (*domain.AssistantAnswer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", store.ErrValidation)
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.EnableAssistant {
		return nil, fmt.Errorf("%w: the assistant is disabled in settings", store.ErrValidation)
	}
	if s.assistant == nil {
		return nil, fmt.Errorf("assistant engine is not configured")
	}

	snapshot, err := s.businessSnapshot(ctx, *settings)
	if err != nil {
		return nil, err
	}

	answer := s.assistant.Answer(ctx, settings.AssistantAPIKey, query, *snapshot)
	s.logAudit(ctx, "assistant.query", "assistant", "", query)
	return &answer, nil
}

func (s *Service) businessSnapshot(ctx context.Context, settings domain.Settings) (*domain.BusinessSnapshot, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return &domain.BusinessSnapshot{
		Products:      products,
		Customers:     customers,
		Sales:         sales,
		Expenses:      expenses,
		Settings:      settings,
		ReferenceDate: time.Now().UTC(),
	}, nil
}

// --- Audit logs ---

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor := ActorFromContext(ctx)
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
