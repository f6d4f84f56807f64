package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/validate"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// HandleCreateOrder prices the items from the catalog and stores a pending
// order for the caller. Unknown products and short stock are reported as
// field violations.
func (api *API) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := auth.ClaimsFromContext(ctx)
	if c == nil {
		apierror.Write(w, r, apierror.Unauthorized(auth.MsgInvalidToken))
		return
	}

	var req orderRequest
	if err := validate.Bind(ctx, &req); err != nil {
		apierror.Write(w, r, err)
		return
	}

	order := Order{UserID: c.UserID, ShippingAddress: req.ShippingAddress}
	if req.Note != nil {
		order.Note = *req.Note
	}

	var problems []apierror.FieldError
	for i, it := range req.Items {
		field := "items." + strconv.Itoa(i)
		p, err := api.catalog.Product(ctx, it.ProductID)
		if errors.Is(err, ErrNotFound) {
			problems = append(problems, apierror.FieldError{Field: field + ".productId", Message: "unknown product"})
			continue
		}
		if err != nil {
			apierror.Write(w, r, xerrors.Wrap(err, "create order: lookup product"))
			return
		}
		if it.Quantity > p.Stock {
			problems = append(problems, apierror.FieldError{
				Field:   field + ".quantity",
				Message: "only " + strconv.Itoa(p.Stock) + " in stock",
			})
			continue
		}
		order.Items = append(order.Items, OrderItem{
			ProductID:      p.ID,
			Quantity:       it.Quantity,
			UnitPriceCents: p.PriceCents,
		})
		order.TotalCents += p.PriceCents * int64(it.Quantity)
	}
	if len(problems) > 0 {
		api.onInvalid(httpmw.RoutePattern(r))
		apierror.Write(w, r, apierror.ValidationFailed(problems))
		return
	}

	created, err := api.orders.Create(ctx, order)
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "create order"))
		return
	}
	api.logger.Info(ctx, "order created", "order.id", created.ID, "user.id", c.UserID, "items", len(created.Items))
	writeData(w, http.StatusCreated, created)
}

// HandleListOrders lists every order. Admin only.
func (api *API) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := api.orders.List(r.Context())
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "list orders"))
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	writeData(w, http.StatusOK, orders)
}

// HandleUpdateOrderStatus sets the status of one order. Admin only.
func (api *API) HandleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orderStatusRequest
	if err := validate.Bind(ctx, &req); err != nil {
		apierror.Write(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	o, err := api.orders.UpdateStatus(ctx, id, OrderStatus(req.Status))
	if errors.Is(err, ErrNotFound) {
		apierror.Write(w, r, apierror.NotFound("Order not found"))
		return
	}
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "update order status"))
		return
	}
	api.logger.Info(ctx, "order status updated", "order.id", o.ID, "status", string(o.Status))
	writeData(w, http.StatusOK, o)
}
