package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"store-core/internal/apperr"
)

// Store is the persistence boundary the use cases depend on. Reads return a
// nil product when the id does not exist.
type Store interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetPage(ctx context.Context, page, pageSize int) ([]Product, int, error)
	Add(ctx context.Context, p Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Product, error) {
	var p Product
	var imageURL sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, image_url, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &imageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage("query product", err)
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}

	return &p, nil
}

func (r *Repository) GetPage(ctx context.Context, page, pageSize int) ([]Product, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count products", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, stock, image_url, created_at, updated_at
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, apperr.Storage("query products", err)
	}
	defer rows.Close()

	products := make([]Product, 0, pageSize)
	for rows.Next() {
		var p Product
		var imageURL sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &imageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, apperr.Storage("scan product", err)
		}
		if imageURL.Valid {
			p.ImageURL = &imageURL.String
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("iterate products", err)
	}

	return products, total, nil
}

func (r *Repository) Add(ctx context.Context, p Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Price, p.Stock, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.Storage("insert product", err)
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, p Product) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock = $4, image_url = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.Price, p.Stock, p.ImageURL, p.UpdatedAt)
	if err != nil {
		return apperr.Storage("update product", err)
	}

	return expectOne(res, p.ID)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("delete product", err)
	}

	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("rows affected", err)
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("product %s not found", id))
	}
	return nil
}
