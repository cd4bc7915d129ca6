// Package httpapi is the HTTP transport: a chi router exposing signup,
// login, token rotation, logout and the protected document endpoints.
package httpapi

import (
	"context"
	"errors"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/models"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
)

type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
}

type Sessions interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) (*services.LogoutResult, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type Documents interface {
	Upload(ctx context.Context, user *models.User, in services.UploadInput) (*models.Document, error)
	List(ctx context.Context, user *models.User) ([]services.DocumentView, error)
	Chat(ctx context.Context, user *models.User, question string, documentID *int64) (*services.ChatAnswer, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Deps are the collaborators of the API. Documents may be nil, in which
// case the document endpoints are not mounted.
type Deps struct {
	Accounts      Accounts
	Sessions      Sessions
	Authenticator Authenticator
	Documents     Documents
	Checks        []Check
	Metrics       *Metrics
	Logger        logging.Logger
}

// API holds the handlers.
type API struct {
	accounts  Accounts
	sessions  Sessions
	authn     Authenticator
	documents Documents
	checks    []Check
	metrics   *Metrics
	log       logging.Logger
	maxUpload int64
}

func New(d Deps, maxUpload int64) (*API, error) {
	if d.Accounts == nil || d.Sessions == nil || d.Authenticator == nil {
		return nil, errors.New("httpapi: accounts, sessions and authenticator are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	return &API{
		accounts:  d.Accounts,
		sessions:  d.Sessions,
		authn:     d.Authenticator,
		documents: d.Documents,
		checks:    d.Checks,
		metrics:   d.Metrics,
		log:       d.Logger.With("module", "http"),
		maxUpload: maxUpload,
	}, nil
}
