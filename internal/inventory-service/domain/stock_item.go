package domain

import "github.com/shopspring/decimal"

type Reserve struct {
	OrderID        string
	Items          []StockItem
	IdempotencyKey string
	RequestID      string
}

type StockItem struct {
	ItemID   string
	Quantity int32
}

// CatalogItem is a sellable item and its remaining stock.
type CatalogItem struct {
	ID       string
	Name     string
	Quantity int32
	Price    decimal.Decimal
}

// SeedCatalog returns the items the service starts with.
func SeedCatalog() []CatalogItem {
	return []CatalogItem{
		{ID: "item-1", Name: "Laptop", Quantity: 10000, Price: decimal.RequireFromString("999.99")},
		{ID: "item-2", Name: "Mouse", Quantity: 50000, Price: decimal.RequireFromString("29.99")},
		{ID: "item-3", Name: "Keyboard", Quantity: 30000, Price: decimal.RequireFromString("79.99")},
		{ID: "item-4", Name: "Monitor", Quantity: 15000, Price: decimal.RequireFromString("299.99")},
		{ID: "item-5", Name: "Headphones", Quantity: 2000, Price: decimal.RequireFromString("149.99")},
	}
}
