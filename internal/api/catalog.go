package api

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// HandleListProducts serves the catalog, optionally filtered by ?category=.
func (api *API) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if len(category) > 64 {
		apierror.Write(w, r, apierror.ValidationFailed([]apierror.FieldError{
			{Field: "category", Message: "must be at most 64 characters"},
		}))
		return
	}

	products, err := api.catalog.Products(r.Context(), category)
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "list products"))
		return
	}
	if products == nil {
		products = []Product{}
	}
	writeData(w, http.StatusOK, products)
}

func (api *API) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := api.catalog.Categories(r.Context())
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "list categories"))
		return
	}
	if cats == nil {
		cats = []Category{}
	}
	writeData(w, http.StatusOK, cats)
}
