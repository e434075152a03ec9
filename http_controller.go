package accounts

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AccountControllerRoutes holds the route prefixes
type AccountControllerRoutes struct {
	Signup     string
	Admin      string
	Candidates string
	Profile    string
}

// AccountController is the HTTP surface of the Service
type AccountController struct {
	Debug   bool
	Logger  Logger
	Service *Service
	Routes  *AccountControllerRoutes
	// Protect returns the middleware guarding a route. A nil Protect
	// leaves routes open, which is only meant for tests.
	Protect func(role RoleName) router.MiddlewareFunc
}

// AccountControllerOption configures the controller
type AccountControllerOption func(*AccountController) *AccountController

// WithControllerService sets the service
func WithControllerService(service *Service) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Service = service
		return c
	}
}

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

// WithControllerDebug prints request payloads
func WithControllerDebug(debug bool) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Debug = debug
		return c
	}
}

// WithControllerProtect sets the route guard factory
func WithControllerProtect(protect func(role RoleName) router.MiddlewareFunc) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Protect = protect
		return c
	}
}

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Routes: &AccountControllerRoutes{
			Signup:     "/v1/signup",
			Admin:      "/v1/admin/users",
			Candidates: "/v1/admin/candidates",
			Profile:    "/v1/candidate/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in account controller...")
	}

	return c
}

// RegisterAccountRoutes mounts the account routes on app
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(opts...)
	admin := controller.guard(RoleAdmin)
	candidate := controller.guard(RoleCandidate)

	signup := app.Group(controller.Routes.Signup)
	signup.Post("/signup", controller.Signup)

	users := app.Group(controller.Routes.Admin)
	users.Post("/admin", controller.CreateAdmin, admin...)
	users.Post("/:id/roles/:role", controller.AddRole, admin...)
	users.Delete("/:id/roles/:role", controller.RemoveRole, admin...)

	candidates := app.Group(controller.Routes.Candidates)
	candidates.Get("/", controller.CandidateIndex, admin...)
	candidates.Post("/invitation", controller.InviteCandidate, admin...)
	candidates.Get("/:id", controller.CandidateDetails, admin...)
	candidates.Post("/:id/invitation", controller.ResendInvitation, admin...)
	candidates.Post("/:id/invitation_reminder", controller.InvitationReminder, admin...)

	profile := app.Group(controller.Routes.Profile)
	profile.Get("/profile", controller.ProfileShow, candidate...)
	profile.Patch("/profile", controller.ProfileUpdate, candidate...)

	return controller
}

func (a *AccountController) guard(role RoleName) []router.MiddlewareFunc {
	if a.Protect == nil {
		return nil
	}
	return []router.MiddlewareFunc{a.Protect(role)}
}

// Signup registers a candidate through self service signup
func (a *AccountController) Signup(c router.Context) error {
	payload := new(SignupPayload)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	candidate, err := a.Service.SignupCandidate(c.Context(), *payload)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusCreated, candidate.Account)
}

func (a *AccountController) CreateAdmin(c router.Context) error {
	payload := new(SignupPayload)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	account, err := a.Service.CreateAdmin(c.Context(), *payload)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusCreated, account)
}

func (a *AccountController) AddRole(c router.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return a.renderError(c, err)
	}

	account, err := a.Service.AddRole(c.Context(), id, c.Param("role"))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountController) RemoveRole(c router.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return a.renderError(c, err)
	}

	account, err := a.Service.RemoveRole(c.Context(), id, c.Param("role"))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountController) InviteCandidate(c router.Context) error {
	payload := new(InvitationPayload)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	candidate, err := a.Service.InviteCandidate(c.Context(), *payload)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusCreated, candidate)
}

// CandidateIndex lists the oldest candidates
func (a *AccountController) CandidateIndex(c router.Context) error {
	candidates, err := a.Service.Candidates(c.Context())
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, candidates)
}

func (a *AccountController) CandidateDetails(c router.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return a.renderError(c, err)
	}

	candidate, err := a.Service.Candidate(c.Context(), id)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, candidate)
}

func (a *AccountController) ResendInvitation(c router.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return a.renderError(c, err)
	}

	payload := new(ContactPayload)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	candidate, err := a.Service.ResendCandidateInvitation(c.Context(), id, *payload)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, candidate)
}

func (a *AccountController) InvitationReminder(c router.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return a.renderError(c, err)
	}

	candidate, err := a.Service.CandidateInvitationReminder(c.Context(), id)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, candidate)
}

func (a *AccountController) ProfileShow(c router.Context) error {
	current, ok := AccountFromContext(c.Context())
	if !ok {
		return a.renderError(c, newError(ErrMissingToken, nil, nil))
	}

	account, err := a.Service.Profile(c.Context(), current.ID())
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountController) ProfileUpdate(c router.Context) error {
	current, ok := AccountFromContext(c.Context())
	if !ok {
		return a.renderError(c, newError(ErrMissingToken, nil, nil))
	}

	payload := new(ProfilePayload)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	account, err := a.Service.UpdateProfile(c.Context(), current.ID(), *payload)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountController) bind(c router.Context, payload any) error {
	if err := c.Bind(payload); err != nil {
		return newError(ErrValidation, err, map[string]any{
			"fields": map[string]string{"body": "malformed request body"},
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNTS REQUEST ======")
		fmt.Println(c.Method(), c.Path())
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===============================")
	}

	return nil
}

func (a *AccountController) renderError(c router.Context, err error) error {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "method", c.Method(), "path", c.Path(), "code", TextCode(err), "error", err)
	}
	return WriteError(c, err)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// NewErrorResponse maps err to a status code and body. Auth failures all
// render the same generic body.
func NewErrorResponse(err error) (int, ErrorResponse) {
	status := HTTPStatus(err)

	if IsAuthError(err) {
		return http.StatusForbidden, ErrorResponse{Error: NotAuthorizedMessage}
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return status, ErrorResponse{Error: http.StatusText(status)}
	}

	return status, ErrorResponse{
		Error:  rich.Message,
		Code:   rich.TextCode,
		Fields: ValidationFields(err),
	}
}

// WriteError renders err as JSON on c
func WriteError(c router.Context, err error) error {
	status, body := NewErrorResponse(err)
	return c.JSON(status, body)
}

func paramID(c router.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, NewValidationError(map[string]string{name: "must be a valid UUID"})
	}
	return id, nil
}
