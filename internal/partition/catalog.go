package partition

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"go-inventory-predict/internal/model"

	"github.com/shopspring/decimal"
)

//go:embed data/products.csv
var productsCSV []byte

// Catalog columns.
const (
	colID = iota
	colNumber
	colName
	colModel
	colColor
	colStandardCost
	colListPrice
	colCategory
	catalogColumns
)

// ReadProducts returns the catalog products with low <= productId <= high.
// Initial stock is drawn from [100, 1000) with rnd.
func ReadProducts(low, high int, rnd *rand.Rand) ([]model.Product, error) {
	return readProducts(bytes.NewReader(productsCSV), low, high, rnd)
}

func readProducts(src io.Reader, low, high int, rnd *rand.Rand) ([]model.Product, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = catalogColumns

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	var out []model.Product
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}

		id, err := strconv.Atoi(rec[colID])
		if err != nil {
			return nil, fmt.Errorf("catalog line %d productId: %w", line, err)
		}
		if id < low || id > high {
			continue
		}
		p, err := parseProduct(id, rec)
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		p.StockTotal = 100 + rnd.Intn(900)
		out = append(out, p)
	}
	return out, nil
}

func parseProduct(id int, rec []string) (model.Product, error) {
	cost, err := decimal.NewFromString(rec[colStandardCost])
	if err != nil {
		return model.Product{}, fmt.Errorf("standard cost: %w", err)
	}
	price, err := decimal.NewFromString(rec[colListPrice])
	if err != nil {
		return model.Product{}, fmt.Errorf("list price: %w", err)
	}
	category, err := strconv.Atoi(rec[colCategory])
	if err != nil {
		return model.Product{}, fmt.Errorf("category: %w", err)
	}
	return model.Product{
		ProductID:     id,
		ProductNumber: rec[colNumber],
		Name:          rec[colName],
		ModelName:     rec[colModel],
		CategoryID:    category,
		StandardCost:  cost,
		ListPrice:     price,
	}, nil
}
