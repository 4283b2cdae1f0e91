package repository

import (
	"context"
	"strconv"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/store"
)

const ProductsCollection = "products"

type ProductRepository interface {
	Create(tx *store.Tx, product *model.Product) error
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id int) (*model.Product, error)
	FindByIDForUpdate(tx *store.Tx, id int) (*model.Product, error)
	Update(tx *store.Tx, product *model.Product) error
	Count(tx *store.Tx) (int, error)
}

type productRepo struct {
	s *store.Store
}

func NewProductRepo(s *store.Store) ProductRepository {
	return &productRepo{s}
}

func productKey(id int) string { return strconv.Itoa(id) }

func (r *productRepo) Create(tx *store.Tx, product *model.Product) error {
	b, err := encode(product)
	if err != nil {
		return err
	}
	return tx.Add(ProductsCollection, productKey(product.ProductID), b)
}

func (r *productRepo) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.s.View(ctx, func(tx *store.Tx) error {
		kvs, err := tx.ScanAll(ProductsCollection)
		if err != nil {
			return err
		}
		products = make([]model.Product, 0, len(kvs))
		for _, kv := range kvs {
			var p model.Product
			if err := decode(kv.Value, &p); err != nil {
				return err
			}
			products = append(products, p)
		}
		return nil
	})
	return products, err
}

// FindByID returns store.ErrNotFound when the product does not exist.
func (r *productRepo) FindByID(ctx context.Context, id int) (*model.Product, error) {
	var product *model.Product
	err := r.s.View(ctx, func(tx *store.Tx) error {
		b, err := tx.Get(ProductsCollection, productKey(id))
		if err != nil {
			return err
		}
		product = &model.Product{}
		return decode(b, product)
	})
	return product, err
}

// FindByIDForUpdate locks the product row until tx ends.
func (r *productRepo) FindByIDForUpdate(tx *store.Tx, id int) (*model.Product, error) {
	b, err := tx.GetForUpdate(ProductsCollection, productKey(id))
	if err != nil {
		return nil, err
	}
	var product model.Product
	if err := decode(b, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) Update(tx *store.Tx, product *model.Product) error {
	b, err := encode(product)
	if err != nil {
		return err
	}
	return tx.Set(ProductsCollection, productKey(product.ProductID), b)
}

func (r *productRepo) Count(tx *store.Tx) (int, error) {
	return tx.Count(ProductsCollection)
}
