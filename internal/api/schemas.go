package api

import (
	"regexp"

	v "github.com/keithlinneman/storefront-api/internal/validate"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{6,19}$`)

var loginSchema = v.Object(
	// credentials are looked up as typed, so neither is escaped
	v.Field("username", v.String(v.MinLen(3), v.MaxLen(64)), v.Required(), v.Verbatim()),
	v.Field("password", v.String(v.MinLen(8), v.MaxLen(128)), v.Required(), v.Verbatim()),
)

var passwordResetSchema = v.Object(
	v.Field("email", v.String(v.Email(), v.MaxLen(254)), v.Required()),
)

var profileSchema = v.Object(
	v.Field("email", v.String(v.Email(), v.MaxLen(254))),
	v.Field("firstName", v.String(v.MinLen(1), v.MaxLen(50))),
	v.Field("lastName", v.String(v.MinLen(1), v.MaxLen(50))),
	v.Field("phone", v.String(v.Pattern(phonePattern, "must be a valid phone number"))),
	v.Field("avatarUrl", v.String(v.URL(), v.MaxLen(2048))),
).Strict()

var orderSchema = v.Object(
	v.Field("items", v.Array(v.Object(
		v.Field("productId", v.String(v.MinLen(1), v.MaxLen(64)), v.Required()),
		v.Field("quantity", v.Number(v.Integer(), v.Min(1), v.Max(99)), v.Required()),
	), v.MinItems(1), v.MaxItems(50)), v.Required()),
	v.Field("shippingAddress", v.String(v.MinLen(5), v.MaxLen(500)), v.Required()),
	v.Field("note", v.Nullable(v.String(v.MaxLen(500)))),
)

var orderStatusSchema = v.Object(
	v.Field("status", v.String(v.OneOf(orderStatuses...)), v.Required()),
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type orderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	ShippingAddress string  `json:"shippingAddress"`
	Note            *string `json:"note"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}
