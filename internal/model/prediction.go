package model

// ProductStockPrediction is what subscribers receive for a product that is
// likely to run out of stock.
type ProductStockPrediction struct {
	ProductID   int     `json:"productId"`
	ProductName string  `json:"productName"`
	StockLeft   int     `json:"stockLeft"`
	Reorder     bool    `json:"reorder"`
	Probability float32 `json:"probability"`
}
