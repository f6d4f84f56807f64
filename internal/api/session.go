package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/otelx"
	"github.com/keithlinneman/storefront-api/internal/validate"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

const (
	msgBadCredentials = "Invalid username or password"
	msgResetAccepted  = "If an account with that email exists, a reset link has been sent"

	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
)

type userView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"isAdmin"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type sessionView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

func viewOf(u User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		AvatarURL: u.AvatarURL,
	}
}

func identityOf(u User) (auth.Identity, auth.Profile) {
	return auth.Identity{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin},
		auth.Profile{
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Phone:     u.Phone,
			AvatarURL: u.AvatarURL,
		}
}

func newDummyHash() ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte("storefront-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, xerrors.Wrap(err, "api: dummy password hash")
	}
	return h, nil
}

// checkPassword runs the bcrypt comparison under its own span. A mismatch is
// an expected outcome, not a span error.
func checkPassword(ctx context.Context, hash []byte, password string, known bool) error {
	_, span := otelx.Start(ctx, "api", "login.check_password", attribute.Bool("user.known", known))
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		span.End()
		return err
	}
	otelx.End(span, err)
	return err
}

func (api *API) issue(u User) (sessionView, error) {
	id, p := identityOf(u)
	token, exp, err := api.auth.Issue(id, p)
	if err != nil {
		return sessionView{}, err
	}
	return sessionView{Token: token, ExpiresAt: exp.UTC(), User: viewOf(u)}, nil
}

// HandleLogin checks the password and returns a signed token with the profile
// snapshot. Unknown users and wrong passwords get the same answer.
func (api *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := validate.Bind(ctx, &req); err != nil {
		apierror.Write(w, r, err)
		return
	}

	u, err := api.users.ByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = checkPassword(ctx, api.dummyHash, req.Password, false)
		api.onLogin(LoginInvalidCredentials)
		apierror.Write(w, r, apierror.Unauthorized(msgBadCredentials))
		return
	case err != nil:
		apierror.Write(w, r, xerrors.Wrap(err, "login: lookup user"))
		return
	}

	if err := checkPassword(ctx, []byte(u.PasswordHash), req.Password, true); err != nil {
		api.onLogin(LoginInvalidCredentials)
		api.logger.Info(ctx, "login rejected", "user.id", u.ID)
		apierror.Write(w, r, apierror.Unauthorized(msgBadCredentials))
		return
	}

	sess, err := api.issue(u)
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	api.onLogin(LoginSuccess)
	api.logger.Info(ctx, "login succeeded", "user.id", u.ID)
	writeData(w, http.StatusOK, sess)
}

// HandlePasswordReset always answers 202 so the endpoint cannot be used to
// probe which emails have accounts.
func (api *API) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req passwordResetRequest
	if err := validate.Bind(ctx, &req); err != nil {
		apierror.Write(w, r, err)
		return
	}

	u, err := api.users.ByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if nerr := api.notifier.PasswordReset(ctx, u); nerr != nil {
			api.logger.Error(ctx, nerr, "password reset notification failed", "user.id", u.ID)
		}
	case !errors.Is(err, ErrNotFound):
		api.logger.Error(ctx, err, "password reset lookup failed")
	}

	apierror.WriteJSON(w, http.StatusAccepted, dataResponse{Success: true, Message: msgResetAccepted})
}
