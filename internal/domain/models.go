package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Supplier      string          `json:"supplier,omitempty"`
	Description   string          `json:"description,omitempty"`
	Stock         int             `json:"stock"`
	Price         decimal.Decimal `json:"price"`
	Cost          decimal.Decimal `json:"cost"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Supplier     string          `json:"supplier"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Supplier    *string          `json:"supplier,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
}

type ReceiveStockRequest struct {
	Quantity    int             `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
	Type  string `json:"type"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Notes *string `json:"notes,omitempty"`
	Type  *string `json:"type,omitempty"`
}

// Sale carries name snapshots taken at creation time so historical reports
// stay stable when the source product or customer is later renamed.
type Sale struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	ProductName  string          `json:"product_name"`
	CustomerName string          `json:"customer_name,omitempty"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Total        decimal.Decimal `json:"total"`
	Profit       decimal.Decimal `json:"profit"`
	Date         time.Time       `json:"date"`
	Notes        string          `json:"notes,omitempty"`
}

type SaleCreateRequest struct {
	ProductID    string           `json:"product_id"`
	CustomerID   string           `json:"customer_id"`
	Quantity     int              `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit,omitempty"`
	Date         string           `json:"date"`
	Notes        string           `json:"notes"`
}

type Expense struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Notes       string          `json:"notes,omitempty"`
}

type ExpenseCreateRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Notes       string          `json:"notes"`
}

type ExpenseUpdateRequest struct {
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
}

type Settings struct {
	BusinessName       string `json:"business_name"`
	Currency           string `json:"currency"`
	LowStockThreshold  int    `json:"low_stock_threshold"`
	EnableAssistant    bool   `json:"enable_assistant"`
	EnableDebtTracking bool   `json:"enable_debt_tracking"`
	AssistantAPIKey    string `json:"assistant_api_key,omitempty"`
}

type SettingsUpdateRequest struct {
	BusinessName       *string `json:"business_name,omitempty"`
	Currency           *string `json:"currency,omitempty"`
	LowStockThreshold  *int    `json:"low_stock_threshold,omitempty"`
	EnableAssistant    *bool   `json:"enable_assistant,omitempty"`
	EnableDebtTracking *bool   `json:"enable_debt_tracking,omitempty"`
	AssistantAPIKey    *string `json:"assistant_api_key,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProfitPoint struct {
	Date   string          `json:"date"`
	Profit decimal.Decimal `json:"profit"`
}

type SeriesPoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

type RankEntry struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
	Units   int             `json:"units"`
}

type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type ReportSummary struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	Currency     string          `json:"currency"`
	Revenue      decimal.Decimal `json:"revenue"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	ExpenseTotal decimal.Decimal `json:"expense_total"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	SalesCount   int             `json:"sales_count"`
	AverageSale  decimal.Decimal `json:"average_sale"`
	// DebtExposure is an upper-bound estimate: the full total of every sale
	// attributed to a debtor customer, with no partial-payment tracking.
	DebtExposure  decimal.Decimal   `json:"debt_exposure"`
	ProfitSeries  []ProfitPoint     `json:"profit_series"`
	RevenueSeries []SeriesPoint     `json:"revenue_series"`
	TopProducts   []RankEntry       `json:"top_products"`
	TopCustomers  []RankEntry       `json:"top_customers"`
	ByCategory    []CategoryRevenue `json:"by_category"`
	LowStock      []Product         `json:"low_stock"`
	OutOfStock    []Product         `json:"out_of_stock"`
}

type AssistantQueryRequest struct {
	Query string `json:"query"`
}

type AssistantAnswer struct {
	Answer    string `json:"answer"`
	Model     string `json:"model,omitempty"`
	FromCache bool   `json:"from_cache"`
	Fallback  bool   `json:"fallback"`
	At        string `json:"at"`
}

// BusinessSnapshot is the read-only bundle handed to the assistant delegate.
type BusinessSnapshot struct {
	Products      []Product
	Customers     []Customer
	Sales         []Sale
	Expenses      []Expense
	Settings      Settings
	ReferenceDate time.Time
}

const (
	CustomerTypeRegular = "regular"
	CustomerTypeVIP     = "vip"
	CustomerTypeDebtor  = "debtor"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const DefaultLowStockThreshold = 10
