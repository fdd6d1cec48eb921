package product

import (
	"net/http"
	"strconv"
	"strings"

	"store-core/internal/dispatch"
	"store-core/internal/observability"
	"store-core/internal/respond"
)

type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *observability.Logger
}

func NewHandler(dispatcher *dispatch.Dispatcher, logger *observability.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, logger: logger}
}

type productInput struct {
	Name     string  `json:"name"`
	Price    int64   `json:"price"`
	ImageURL *string `json:"image_url"`
}

func (in productInput) trimmed() productInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.ImageURL != nil {
		trimmed := strings.TrimSpace(*in.ImageURL)
		in.ImageURL = &trimmed
		if trimmed == "" {
			in.ImageURL = nil
		}
	}
	return in
}

type stockInput struct {
	Delta int `json:"delta"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := GetProductsQuery{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}

	page, err := dispatch.Send[ProductPage](r.Context(), h.dispatcher, query)
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, page.Items, "", page.Meta)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	view, err := dispatch.Send[ProductView](r.Context(), h.dispatcher, GetProductQuery{ID: r.PathValue("id")})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, view, "", nil)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input productInput
	if !respond.Decode(w, r, &input) {
		return
	}
	input = input.trimmed()

	id, err := dispatch.Send[string](r.Context(), h.dispatcher, CreateProductCommand{
		Name:     input.Name,
		Price:    input.Price,
		ImageURL: input.ImageURL,
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusCreated, map[string]string{"id": id}, "product created", nil)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var input productInput
	if !respond.Decode(w, r, &input) {
		return
	}
	input = input.trimmed()

	view, err := dispatch.Send[ProductView](r.Context(), h.dispatcher, UpdateProductCommand{
		ID:       r.PathValue("id"),
		Name:     input.Name,
		Price:    input.Price,
		ImageURL: input.ImageURL,
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, view, "product updated", nil)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var input stockInput
	if !respond.Decode(w, r, &input) {
		return
	}

	view, err := dispatch.Send[ProductView](r.Context(), h.dispatcher, AdjustStockCommand{
		ID:    r.PathValue("id"),
		Delta: input.Delta,
	})
	if err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	respond.OK(w, http.StatusOK, view, "stock updated", nil)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := dispatch.Send[bool](r.Context(), h.dispatcher, RemoveProductCommand{ID: r.PathValue("id")}); err != nil {
		respond.Fail(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return value
}
