package model

import "time"

// PurchaseRecord is appended to a partition's purchase log in the same
// transaction that reserves the stock.
type PurchaseRecord struct {
	PurchaseKey string    `json:"purchaseKey"`
	ProductID   int       `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	StockLeft   int       `json:"stockLeft"`
	Timestamp   time.Time `json:"timestamp"`
}
