package product

import (
	"time"

	"store-core/internal/apperr"
)

type Product struct {
	ID        string
	Name      string
	Price     int64
	Stock     int
	ImageURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Product) Update(name string, price int64, imageURL *string, now time.Time) {
	p.Name = name
	p.Price = price
	p.ImageURL = imageURL
	p.UpdatedAt = now
}

// AdjustStock applies delta to the stock level, which may never go negative.
func (p *Product) AdjustStock(delta int, now time.Time) error {
	if p.Stock+delta < 0 {
		return apperr.New(apperr.DomainRuleViolation, "stock cannot be negative")
	}
	p.Stock += delta
	p.UpdatedAt = now
	return nil
}

type ProductView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toView(p Product) ProductView {
	return ProductView{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		ImageURL:  p.ImageURL,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type Meta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newMeta(page, pageSize, total int) Meta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Meta{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

type ProductPage struct {
	Items []ProductView `json:"items"`
	Meta  Meta          `json:"meta"`
}
