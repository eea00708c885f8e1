package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/container"
	gohttp "github.com/km-arc/go-inject/http"
	"github.com/km-arc/go-inject/routing"
)

// UsersHandler resolves a UserManager in a fresh scope per request. The
// scope's connections are closed when the request ends.
type UsersHandler struct {
	c *container.Container
}

func NewUsersHandler(c *container.Container) *UsersHandler {
	return &UsersHandler{c: c}
}

// Routes registers GET /{id}.
func (h *UsersHandler) Routes(r *routing.Router) {
	r.Get("/{id}", h.Show)
}

// Show renders one user. ?tenant= picks the base scope, for tenants
// declared in the manifest.
func (h *UsersHandler) Show(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	id, err := strconv.Atoi(req.RouteParam("id"))
	if err != nil {
		res.Error(http.StatusBadRequest, "id must be an integer")
		return
	}

	s, err := h.c.CreateScope("request-"+uuid.NewString(), req.Query("tenant"))
	if err != nil {
		res.Failure(err)
		return
	}
	defer func() {
		if err := h.c.Destroy(context.WithoutCancel(r.Context()), s.Name()); err != nil {
			h.c.Logger().Warn("request scope teardown", zap.String("scope", s.Name()), zap.Error(err))
		}
	}()

	mgr, err := container.Resolve[*UserManager](r.Context(), h.c, "UserManager", container.InScope(s))
	if err != nil {
		res.Failure(err)
		return
	}
	view, err := mgr.Describe(r.Context(), id)
	if errors.Is(err, ErrNoSuchUser) {
		res.NotFound(err.Error())
		return
	}
	if err != nil {
		res.Failure(err)
		return
	}
	res.Success(view)
}
