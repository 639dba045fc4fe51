package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/ledger"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/xid"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	query, args, err := psql.
		Select("id", "name", "category", "supplier", "description", "stock", "price", "cost", "last_updated_at").
		From("products").
		OrderBy("category", "name").
		ToSql()
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, 64)
	if err := sqlscan.Select(ctx, s.db, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query, args, err := psql.
		Select("id", "name", "category", "supplier", "description", "stock", "price", "cost", "last_updated_at").
		From("products").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var product domain.Product
	if err := sqlscan.Get(ctx, s.db, &product, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() || product.Cost.IsNegative() || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.LastUpdatedAt.IsZero() {
		product.LastUpdatedAt = time.Now().UTC()
	}

	query, args, err := psql.
		Insert("products").
		Columns("id", "name", "category", "supplier", "description", "stock", "price", "cost", "last_updated_at").
		Values(product.ID, product.Name, product.Category, product.Supplier, product.Description,
			product.Stock, product.Price, product.Cost, product.LastUpdatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() || product.Cost.IsNegative() || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	product.LastUpdatedAt = time.Now().UTC()

	query, args, err := psql.
		Update("products").
		Set("name", product.Name).
		Set("category", product.Category).
		Set("supplier", product.Supplier).
		Set("description", product.Description).
		Set("price", product.Price).
		Set("last_updated_at", product.LastUpdatedAt).
		Where(sq.Eq{"id": product.ID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.ID)
}

// ReceiveStock locks the product row, applies the weighted-average cost
// recompute and stock increment, and writes the result in one transaction.
func (s *Store) ReceiveStock(ctx context.Context, productID string, quantity int, costPerUnit decimal.Decimal) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	updated, err := ledger.Receive(*product, quantity, costPerUnit, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $1, cost = $2, last_updated_at = $3 WHERE id = $4
	`, updated.Stock, updated.Cost, updated.LastUpdatedAt, updated.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	received := updated
	return &received, nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, id string) (*domain.Product, error) {
	var product domain.Product
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, category, supplier, description, stock, price, cost, last_updated_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&product.ID, &product.Name, &product.Category, &product.Supplier, &product.Description,
		&product.Stock, &product.Price, &product.Cost, &product.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	query, args, err := psql.
		Select("id", "name", "phone", "notes", "type", "created_at").
		From("customers").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, err
	}

	customers := make([]domain.Customer, 0, 64)
	if err := sqlscan.Select(ctx, s.db, &customers, query, args...); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	query, args, err := psql.
		Select("id", "name", "phone", "notes", "type", "created_at").
		From("customers").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var customer domain.Customer
	if err := sqlscan.Get(ctx, s.db, &customer, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.
		Insert("customers").
		Columns("id", "name", "phone", "notes", "type", "created_at").
		Values(customer.ID, customer.Name, customer.Phone, customer.Notes, customer.Type, customer.CreatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}

	query, args, err := psql.
		Update("customers").
		Set("name", customer.Name).
		Set("phone", customer.Phone).
		Set("notes", customer.Notes).
		Set("type", customer.Type).
		Where(sq.Eq{"id": customer.ID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	builder := psql.
		Select("id", "product_id", "customer_id", "product_name", "customer_name",
			"quantity", "price_per_unit", "total", "profit", "date", "notes").
		From("sales").
		OrderBy("date")
	if from != nil {
		builder = builder.Where(sq.GtOrEq{"date": *from})
	}
	if to != nil {
		builder = builder.Where(sq.LtOrEq{"date": *to})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, 128)
	if err := sqlscan.Select(ctx, s.db, &sales, query, args...); err != nil {
		return nil, err
	}
	return sales, nil
}

// CreateSale decrements product stock and inserts the sale row in one
// transaction. The product row is locked first so concurrent sales cannot
// oversell; total and profit are recomputed from the locked product's cost.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ProductID == "" || sale.Quantity < 1 || sale.PricePerUnit.IsNegative() {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := lockProduct(ctx, tx, sale.ProductID)
	if err != nil {
		return nil, err
	}

	if sale.CustomerID != "" {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, sale.CustomerID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
	}

	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	updatedProduct, err := ledger.ApplySale(*product, sale.Quantity, sale.Date)
	if err != nil {
		return nil, err
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.ProductName == "" {
		sale.ProductName = product.Name
	}
	qty := decimal.NewFromInt(int64(sale.Quantity))
	sale.Total = sale.PricePerUnit.Mul(qty)
	sale.Profit = sale.PricePerUnit.Sub(product.Cost).Mul(qty)

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $1, last_updated_at = $2 WHERE id = $3
	`, updatedProduct.Stock, updatedProduct.LastUpdatedAt, updatedProduct.ID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, product_id, customer_id, product_name, customer_name,
			quantity, price_per_unit, total, profit, date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sale.ID, sale.ProductID, sale.CustomerID, sale.ProductName, sale.CustomerName,
		sale.Quantity, sale.PricePerUnit, sale.Total, sale.Profit, sale.Date, sale.Notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Expense, error) {
	builder := psql.
		Select("id", "description", "category", "amount", "date", "notes").
		From("expenses").
		OrderBy("date")
	if from != nil {
		builder = builder.Where(sq.GtOrEq{"date": *from})
	}
	if to != nil {
		builder = builder.Where(sq.LtOrEq{"date": *to})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	expenses := make([]domain.Expense, 0, 64)
	if err := sqlscan.Select(ctx, s.db, &expenses, query, args...); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Description == "" || expense.Amount.IsNegative() {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}

	query, args, err := psql.
		Insert("expenses").
		Columns("id", "description", "category", "amount", "date", "notes").
		Values(expense.ID, expense.Description, expense.Category, expense.Amount, expense.Date, expense.Notes).
		ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Description == "" || expense.Amount.IsNegative() {
		return nil, store.ErrValidation
	}

	query, args, err := psql.
		Update("expenses").
		Set("description", expense.Description).
		Set("category", expense.Category).
		Set("amount", expense.Amount).
		Set("date", expense.Date).
		Set("notes", expense.Notes).
		Where(sq.Eq{"id": expense.ID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT business_name, currency, low_stock_threshold, enable_assistant, enable_debt_tracking, assistant_api_key
		FROM settings
		WHERE id = 1
	`).Scan(&settings.BusinessName, &settings.Currency, &settings.LowStockThreshold,
		&settings.EnableAssistant, &settings.EnableDebtTracking, &settings.AssistantAPIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Settings{
			BusinessName:       "My Business",
			Currency:           "USD",
			LowStockThreshold:  domain.DefaultLowStockThreshold,
			EnableAssistant:    true,
			EnableDebtTracking: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.BusinessName == "" || settings.Currency == "" || settings.LowStockThreshold < 1 {
		return nil, store.ErrValidation
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, business_name, currency, low_stock_threshold, enable_assistant, enable_debt_tracking, assistant_api_key)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET business_name = $1, currency = $2, low_stock_threshold = $3,
			enable_assistant = $4, enable_debt_tracking = $5, assistant_api_key = $6
	`, settings.BusinessName, settings.Currency, settings.LowStockThreshold,
		settings.EnableAssistant, settings.EnableDebtTracking, settings.AssistantAPIKey); err != nil {
		return nil, err
	}

	updated := settings
	return &updated, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	query, args, err := psql.
		Select("id", "actor_username", "actor_role", "action", "entity_type", "entity_id", "detail", "created_at").
		From("audit_logs").
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.LtOrEq{"created_at": to}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	logs := make([]domain.AuditLog, 0, limit)
	if err := sqlscan.Select(ctx, s.db, &logs, query, args...); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrValidation
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	if err := sqlscan.Select(ctx, s.db, &users, `
		SELECT username, password, role, active, created_at FROM users
	`); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
