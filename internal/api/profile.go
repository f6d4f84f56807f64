package api

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/validate"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// HandleGetProfile returns the profile snapshot carried by the token. It may
// lag behind the stored user until the next token is issued.
func (api *API) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	c := auth.ClaimsFromContext(r.Context())
	if c == nil {
		apierror.Write(w, r, apierror.Unauthorized(auth.MsgInvalidToken))
		return
	}
	writeData(w, http.StatusOK, userView{
		ID:        c.UserID,
		Username:  c.Username,
		IsAdmin:   c.IsAdmin,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		AvatarURL: c.AvatarURL,
	})
}

// HandleUpdateProfile stores the changed fields and re-issues the token so the
// embedded snapshot matches.
func (api *API) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := auth.ClaimsFromContext(ctx)
	if c == nil {
		apierror.Write(w, r, apierror.Unauthorized(auth.MsgInvalidToken))
		return
	}

	var upd ProfileUpdate
	if err := validate.Bind(ctx, &upd); err != nil {
		apierror.Write(w, r, err)
		return
	}

	u, err := api.users.UpdateProfile(ctx, c.UserID, upd)
	if errors.Is(err, ErrNotFound) {
		// token outlived its user
		apierror.Write(w, r, apierror.Unauthorized(auth.MsgInvalidToken))
		return
	}
	if err != nil {
		apierror.Write(w, r, xerrors.Wrap(err, "update profile"))
		return
	}

	sess, err := api.issue(u)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	api.logger.Info(ctx, "profile updated", "user.id", u.ID)
	writeData(w, http.StatusOK, sess)
}
