package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ControllerRoutes struct {
	Prefix string
	Auth   string
	Tasks  string
	Admin  string
}

type Controller struct {
	Logger     Logger
	Service    *Service
	Repo       RepositoryManager
	Authorizer *Authorizer
	Routes     *ControllerRoutes
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerService(service *Service) ControllerOption {
	return func(c *Controller) *Controller {
		c.Service = service
		return c
	}
}

func WithControllerRepository(repo RepositoryManager) ControllerOption {
	return func(c *Controller) *Controller {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthorizer(authorizer *Authorizer) ControllerOption {
	return func(c *Controller) *Controller {
		c.Authorizer = authorizer
		return c
	}
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: defLogger{},
		Routes: &ControllerRoutes{
			Prefix: "/api",
			Auth:   "/auth",
			Tasks:  "/tasks",
			Admin:  "/admin",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in auth controller...")
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Authorizer == nil {
		c.Authorizer = NewAuthorizer(c.Repo.Tasks()).
			WithLogger(c.Logger).
			WithActivitySink(c.Service.ActivitySink())
	}

	return c
}

// RegisterRoutes mounts the auth, task and admin routes behind the session gate
func RegisterRoutes(app fiber.Router, opts ...ControllerOption) *Controller {
	c := NewController(opts...)

	api := app.Group(c.Routes.Prefix, c.Service.Gate().Middleware())

	authGroup := api.Group(c.Routes.Auth)
	authGroup.Post("/signup", c.Signup)
	authGroup.Post("/login", c.Login)
	authGroup.Post("/refresh", c.Refresh)
	authGroup.Post("/logout", RequireAuthenticated(), c.Logout)
	authGroup.Get("/verify-email", c.VerifyEmail)
	authGroup.Post("/forgot-password", c.ForgotPassword)
	authGroup.Post("/reset-password", c.ResetPassword)
	authGroup.Get("/me", RequireAuthenticated(), c.Me)

	tasks := api.Group(c.Routes.Tasks, RequireAuthenticated())
	tasks.Get("", c.ListTasks)
	tasks.Post("", c.CreateTask)
	tasks.Put("/:id", RequireResourceAccess(c.Authorizer, "id"), c.UpdateTask)
	tasks.Delete("/:id", RequireResourceAccess(c.Authorizer, "id"), c.DeleteTask)

	admin := api.Group(c.Routes.Admin, RequireRole(RoleAdmin))
	admin.Get("/users", c.ListPrincipals)
	admin.Delete("/users/:id", c.DeletePrincipal)
	admin.Post("/users/:id/tasks", c.CreateTaskFor)

	return c
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *Controller) Signup(ctx *fiber.Ctx) error {
	payload := SignupRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	result, err := a.Service.Signup(ctx.UserContext(), payload)
	if err != nil {
		return a.fail(ctx, "signup", err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(result)
}

func (a *Controller) Login(ctx *fiber.Ctx) error {
	payload := LoginRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	pair, err := a.Service.Login(ctx.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return a.fail(ctx, "login", err)
	}

	return ctx.JSON(pair)
}

func (a *Controller) Refresh(ctx *fiber.Ctx) error {
	payload := RefreshRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, validationError(err))
	}

	pair, err := a.Service.Refresh(ctx.UserContext(), payload.RefreshToken)
	if err != nil {
		return a.fail(ctx, "refresh", err)
	}

	return ctx.JSON(pair)
}

func (a *Controller) Logout(ctx *fiber.Ctx) error {
	p, _ := CurrentPrincipal(ctx)
	if err := a.Service.Logout(ctx.UserContext(), p.ID); err != nil {
		return a.fail(ctx, "logout", err)
	}
	return ctx.JSON(messageResponse{Message: "logged out"})
}

func (a *Controller) VerifyEmail(ctx *fiber.Ctx) error {
	if err := a.Service.VerifyEmail(ctx.UserContext(), ctx.Query("token")); err != nil {
		return a.fail(ctx, "verify email", err)
	}
	return ctx.JSON(messageResponse{Message: "email verified"})
}

func (a *Controller) ForgotPassword(ctx *fiber.Ctx) error {
	payload := ForgotPasswordRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := a.Service.ForgotPassword(ctx.UserContext(), payload.Email); err != nil {
		return a.fail(ctx, "forgot password", err)
	}

	return ctx.JSON(messageResponse{Message: "password reset email sent"})
}

func (a *Controller) ResetPassword(ctx *fiber.Ctx) error {
	payload := ResetPasswordRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := a.Service.ResetPassword(ctx.UserContext(), payload.Token, payload.NewPassword); err != nil {
		return a.fail(ctx, "reset password", err)
	}

	return ctx.JSON(messageResponse{Message: "password updated"})
}

func (a *Controller) Me(ctx *fiber.Ctx) error {
	p, _ := CurrentPrincipal(ctx)
	return ctx.JSON(p)
}

func (a *Controller) ListTasks(ctx *fiber.Ctx) error {
	p, _ := CurrentPrincipal(ctx)
	records, err := a.Repo.Tasks().ListByOwner(ctx.UserContext(), p.ID)
	if err != nil {
		return a.fail(ctx, "list tasks", err)
	}
	return ctx.JSON(records)
}

func (a *Controller) CreateTask(ctx *fiber.Ctx) error {
	p, _ := CurrentPrincipal(ctx)
	return a.createTask(ctx, p.ID)
}

func (a *Controller) CreateTaskFor(ctx *fiber.Ctx) error {
	owner, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return WriteError(ctx, ErrPrincipalNotFound)
	}

	if _, err := a.Repo.Principals().FindByID(ctx.UserContext(), owner); err != nil {
		return a.fail(ctx, "create task for principal", err)
	}

	return a.createTask(ctx, owner)
}

func (a *Controller) createTask(ctx *fiber.Ctx, owner uuid.UUID) error {
	payload := TaskRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, validationError(err))
	}

	record, err := a.Repo.Tasks().CreateTask(ctx.UserContext(), &Task{
		OwnerID:     owner,
		Title:       payload.Title,
		Description: payload.Description,
		Completed:   payload.Completed,
		Priority:    payload.Priority,
	})
	if err != nil {
		return a.fail(ctx, "create task", err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(record)
}

func (a *Controller) UpdateTask(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return WriteError(ctx, ErrResourceNotFound)
	}

	payload := TaskRequest{}
	if err := ctx.BodyParser(&payload); err != nil {
		return WriteError(ctx, validationError(err))
	}

	if err := payload.Validate(); err != nil {
		return WriteError(ctx, validationError(err))
	}

	record, err := a.Repo.Tasks().FindTask(ctx.UserContext(), id)
	if err != nil {
		return a.fail(ctx, "update task", err)
	}

	record.Title = payload.Title
	record.Description = payload.Description
	record.Completed = payload.Completed
	if payload.Priority != 0 {
		record.Priority = payload.Priority
	}

	if record, err = a.Repo.Tasks().UpdateTask(ctx.UserContext(), record); err != nil {
		return a.fail(ctx, "update task", err)
	}

	return ctx.JSON(record)
}

func (a *Controller) DeleteTask(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return WriteError(ctx, ErrResourceNotFound)
	}

	if err := a.Repo.Tasks().RemoveTask(ctx.UserContext(), id); err != nil {
		return a.fail(ctx, "delete task", err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (a *Controller) ListPrincipals(ctx *fiber.Ctx) error {
	records, err := a.Repo.Principals().ListAll(ctx.UserContext())
	if err != nil {
		return a.fail(ctx, "list principals", err)
	}
	return ctx.JSON(records)
}

// DeletePrincipal removes an account and its tasks. Admins cannot delete themselves.
func (a *Controller) DeletePrincipal(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return WriteError(ctx, ErrPrincipalNotFound)
	}

	if p, _ := CurrentPrincipal(ctx); p.ID == id {
		return WriteError(ctx, ErrForbidden)
	}

	err = a.Repo.RunInTx(ctx.UserContext(), nil, func(txCtx context.Context, tx bun.Tx) error {
		return a.Repo.Principals().RemoveTx(txCtx, tx, id)
	})
	if err != nil {
		return a.fail(ctx, "delete principal", err)
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

func (a *Controller) fail(ctx *fiber.Ctx, op string, err error) error {
	args := []any{"error", err}
	if identity, ok := CurrentIdentity(ctx); ok {
		args = append(args, "principal_id", identity.ID(), "username", identity.Username())
	}

	status := HTTPStatusFor(err)
	if status >= fiber.StatusInternalServerError && !errors.Is(err, ErrMailDelivery) {
		a.Logger.Error(op+" failed", args...)
	} else {
		a.Logger.Debug(op+" rejected", args...)
	}
	return WriteError(ctx, err)
}
