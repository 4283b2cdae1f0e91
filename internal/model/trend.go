package model

import "time"

// PurchaseTag is one entry of a trend's purchase history.
type PurchaseTag struct {
	Date     time.Time `json:"date"`
	Quantity int       `json:"quantity"`
}

// ProductStockTrend aggregates the recent purchase history of one product
// and carries the latest reorder prediction for it.
type ProductStockTrend struct {
	ProductID       int           `json:"productId"`
	ProductName     string        `json:"productName"`
	PurchaseHistory []PurchaseTag `json:"purchaseHistory"`

	MinDate time.Time `json:"minDate"`
	MaxDate time.Time `json:"maxDate"`

	LastStockCount      int       `json:"lastStockCount"`
	LastOrderTimestamp  time.Time `json:"lastOrderTimestamp"`
	NotificationCounter int       `json:"notificationCounter"`

	Reorder     bool    `json:"reorder"`
	Probability float32 `json:"probability"`
}

// Reset sets the trend window and drops history entries dated at or before
// windowStart.
func (t *ProductStockTrend) Reset(windowStart, windowEnd time.Time) {
	t.MinDate = windowStart
	t.MaxDate = windowEnd

	kept := t.PurchaseHistory[:0]
	for _, tag := range t.PurchaseHistory {
		if tag.Date.After(windowStart) {
			kept = append(kept, tag)
		}
	}
	t.PurchaseHistory = kept
}

// AddOrder records a purchase. Only a purchase newer than the last one seen
// refreshes the stock level and re-arms the notification counter, so batches
// delivered out of order never roll the trend back.
func (t *ProductStockTrend) AddOrder(p PurchaseRecord, notificationAttempts int) {
	t.PurchaseHistory = append(t.PurchaseHistory, PurchaseTag{Date: p.Timestamp, Quantity: p.Quantity})

	if p.Timestamp.After(t.LastOrderTimestamp) {
		t.LastStockCount = p.StockLeft
		t.NotificationCounter = notificationAttempts
		t.LastOrderTimestamp = p.Timestamp
	}
}

// TotalPurchases is the number of units bought inside the window.
func (t *ProductStockTrend) TotalPurchases() int {
	total := 0
	for _, tag := range t.PurchaseHistory {
		total += tag.Quantity
	}
	return total
}

func (t *ProductStockTrend) AvgPurchasesPerDay() float64 {
	days := t.MaxDate.Sub(t.MinDate).Hours() / 24
	if days <= 0 {
		return 0
	}
	return float64(t.TotalPurchases()) / days
}

// AvgTimeBetweenPurchases sums the gaps between consecutive history entries
// in seconds and divides by the number of entries.
func (t *ProductStockTrend) AvgTimeBetweenPurchases() float64 {
	n := len(t.PurchaseHistory)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n-1; i++ {
		sum += t.PurchaseHistory[i+1].Date.Sub(t.PurchaseHistory[i].Date).Seconds()
	}
	return sum / float64(n)
}

func (t *ProductStockTrend) AvgQuantityPerOrder() float64 {
	n := len(t.PurchaseHistory)
	if n == 0 {
		return 0
	}
	return float64(t.TotalPurchases()) / float64(n)
}

func (t *ProductStockTrend) ToPrediction() ProductStockPrediction {
	return ProductStockPrediction{
		ProductID:   t.ProductID,
		ProductName: t.ProductName,
		StockLeft:   t.LastStockCount,
		Reorder:     t.Reorder,
		Probability: t.Probability,
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *ProductStockTrend) Clone() ProductStockTrend {
	c := *t
	c.PurchaseHistory = append([]PurchaseTag(nil), t.PurchaseHistory...)
	return c
}
