package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/ledger"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	sales           []domain.Sale
	expenses        map[string]domain.Expense
	settings        domain.Settings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded
// dev defaults are used with a warning when unset. These are never used in
// production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		sales:     make([]domain.Sale, 0, 64),
		expenses:  make(map[string]domain.Expense),
		settings: domain.Settings{
			BusinessName:       "My Business",
			Currency:           "USD",
			LowStockThreshold:  domain.DefaultLowStockThreshold,
			EnableAssistant:    true,
			EnableDebtTracking: true,
		},
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-rice-25kg", Name: "Rice 25kg Bag", Category: "staples", Supplier: "Fouta Wholesale", Stock: 40, Price: dec("32.50"), Cost: dec("27.00")},
		{ID: "prod-oil-5l", Name: "Vegetable Oil 5L", Category: "staples", Supplier: "Fouta Wholesale", Stock: 25, Price: dec("11.00"), Cost: dec("8.75")},
		{ID: "prod-soap-bar", Name: "Laundry Soap Bar", Category: "household", Stock: 120, Price: dec("0.75"), Cost: dec("0.45")},
		{ID: "prod-candle-pk", Name: "Candles (pack of 6)", Category: "household", Stock: 8, Price: dec("1.50"), Cost: dec("0.90")},
		{ID: "prod-soda-33cl", Name: "Soft Drink 33cl", Category: "beverages", Stock: 96, Price: dec("0.60"), Cost: dec("0.38")},
		{ID: "prod-phone-card", Name: "Phone Top-Up Card", Category: "services", Stock: 0, Price: dec("1.00"), Cost: dec("0.92")},
	}
	for _, p := range products {
		p.LastUpdatedAt = now
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-walkin", Name: "Walk-in", Type: domain.CustomerTypeRegular, CreatedAt: now},
		{ID: "cust-mariam", Name: "Mariam Kourouma", Phone: "+224 620 11 22 33", Type: domain.CustomerTypeVIP, CreatedAt: now},
		{ID: "cust-joseph", Name: "Joseph Toure", Phone: "+224 621 44 55 66", Type: domain.CustomerTypeDebtor, Notes: "pays end of month", CreatedAt: now},
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}

	return s
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(fmt.Sprintf("bad seed decimal %q: %v", v, err))
	}
	return d
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price.IsNegative() || product.Cost.IsNegative() || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	if product.LastUpdatedAt.IsZero() {
		product.LastUpdatedAt = time.Now().UTC()
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price.IsNegative() || product.Cost.IsNegative() || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	product.LastUpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ReceiveStock(_ context.Context, productID string, quantity int, costPerUnit decimal.Decimal) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	updated, err := ledger.Receive(product, quantity, costPerUnit, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.products[productID] = updated
	received := updated
	return &received, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || !isCustomerType(customer.Type) {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrValidation
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || !isCustomerType(customer.Type) {
		return nil, store.ErrValidation
	}
	if _, exists := s.customers[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func isCustomerType(t string) bool {
	switch t {
	case domain.CustomerTypeRegular, domain.CustomerTypeVIP, domain.CustomerTypeDebtor:
		return true
	}
	return false
}

func (s *Store) ListSales(_ context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if from != nil && sale.Date.Before(*from) {
			continue
		}
		if to != nil && sale.Date.After(*to) {
			continue
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

// CreateSale inserts the sale and decrements product stock in one step under
// the store lock. Total and profit are recomputed here from the quantity,
// unit price and the product's cost at this moment, so the persisted snapshot
// can never drift from its inputs.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ProductID == "" || sale.Quantity < 1 || sale.PricePerUnit.IsNegative() {
		return nil, store.ErrValidation
	}

	product, exists := s.products[sale.ProductID]
	if !exists {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sale.ProductID)
	}
	if sale.CustomerID != "" {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
		}
	}

	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	updatedProduct, err := ledger.ApplySale(product, sale.Quantity, sale.Date)
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

	s.products[sale.ProductID] = updatedProduct
	s.sales = append(s.sales, sale)

	created := sale
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, from *time.Time, to *time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if from != nil && expense.Date.Before(*from) {
			continue
		}
		if to != nil && expense.Date.After(*to) {
			continue
		}
		expenses = append(expenses, expense)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.Date.Before(b.Date) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Description == "" || expense.Amount.IsNegative() {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}

	s.expenses[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Description == "" || expense.Amount.IsNegative() {
		return nil, store.ErrValidation
	}
	if _, exists := s.expenses[expense.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.expenses[expense.ID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.BusinessName == "" || settings.Currency == "" || settings.LowStockThreshold < 1 {
		return nil, store.ErrValidation
	}

	s.settings = settings
	updated := settings
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
