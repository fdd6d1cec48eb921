package product

import "store-core/internal/dispatch"

func lockKey(id string) string {
	return "locks:product:" + id
}

// lockable uses the dispatcher's default wait.
func lockable(id string) *dispatch.LockSpec {
	return &dispatch.LockSpec{Key: lockKey(id)}
}

type CreateProductCommand struct {
	Name     string  `json:"name" validate:"required,min=3,max=200"`
	Price    int64   `json:"price" validate:"gte=0"`
	ImageURL *string `json:"image_url" validate:"omitempty,absurl"`
}

func (CreateProductCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.create"}
}

type GetProductQuery struct {
	ID string `json:"id" validate:"required"`
}

func (GetProductQuery) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.get"}
}

type GetProductsQuery struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (GetProductsQuery) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.list"}
}

type UpdateProductCommand struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required,min=3,max=200"`
	Price    int64   `json:"price" validate:"gte=0"`
	ImageURL *string `json:"image_url" validate:"omitempty,absurl"`
}

func (c UpdateProductCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.update", Lock: lockable(c.ID)}
}

type RemoveProductCommand struct {
	ID string `json:"id" validate:"required"`
}

func (c RemoveProductCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.remove", Lock: lockable(c.ID)}
}

type AdjustStockCommand struct {
	ID    string `json:"id" validate:"required"`
	Delta int    `json:"delta"`
}

func (c AdjustStockCommand) Describe() dispatch.Descriptor {
	return dispatch.Descriptor{Name: "product.adjust_stock", Lock: lockable(c.ID)}
}

var validationMessages = map[string]string{
	"id.required":      "product id is required",
	"name.required":    "product name is required",
	"name.min":         "product name must be between 3 and 200 characters",
	"name.max":         "product name must be between 3 and 200 characters",
	"price.gte":        "product price must not be negative",
	"image_url.absurl": "image url must be an absolute url",
}
