package moemail

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// UserHTTPController exposes the login-link, sign-in, and batch admin routes.
// Session handling is delegated to the injected SessionResolver; the
// controller only needs the caller's id to enforce permissions.
type UserHTTPController struct {
	Debug         bool
	Logger        Logger
	Repos         RepositoryManager
	Engine        *StatusEngine
	Store         *TokenStore
	Session       SessionResolver
	ErrorRedirect string
}

func NewUserHTTPController(repos RepositoryManager, engine *StatusEngine, store *TokenStore) *UserHTTPController {
	return &UserHTTPController{
		Logger:        defLogger{},
		Repos:         repos,
		Engine:        engine,
		Store:         store,
		ErrorRedirect: "/auth/error",
	}
}

func (a *UserHTTPController) WithLogger(logger Logger) *UserHTTPController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *UserHTTPController) WithSessionResolver(resolver SessionResolver) *UserHTTPController {
	a.Session = resolver
	return a
}

func (a *UserHTTPController) WithDebug(debug bool) *UserHTTPController {
	a.Debug = debug
	return a
}

// RegisterUserRoutes mounts the controller's routes on the given router.
func RegisterUserRoutes(app RouteRegistrar, controller *UserHTTPController) {
	app.Post("/api/admin/users", controller.CreateUser)
	app.Post("/api/admin/users/generate-login-link", controller.GenerateLoginLink)
	app.Post("/api/admin/users/batch", controller.BatchUpdateUsers)
	app.Get("/api/admin/users/stats", controller.UserStats)
	app.Get("/api/auth/direct-login", controller.DirectLoginRedirect)
	app.Post("/api/auth/direct-login", controller.DirectLogin)
	app.Post("/api/auth/token-signin", controller.TokenSignin)
	app.Post("/api/auth/auto-signin", controller.AutoSignin)
}

// GenerateLoginLinkPayload selects the account a login link is minted for.
type GenerateLoginLinkPayload struct {
	UserID string `json:"userId" form:"userId"`
}

func (r GenerateLoginLinkPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
	)
}

func (a *UserHTTPController) GenerateLoginLink(ctx router.Context) error {
	caller, err := a.requirePermission(ctx, PermissionPromoteUser)
	if err != nil {
		return a.respondError(ctx, err)
	}

	payload := new(GenerateLoginLinkPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid payload"))
	}

	if a.Debug {
		fmt.Println("======= GENERATE LOGIN LINK ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==================================")
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id"))
	}

	issued, err := a.Store.IssueReusable(ctx.Context(), targetID, caller.ID, clientMeta(ctx))
	if err != nil {
		a.Logger.Error("generate login link error", "error", err)
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, issued)
}

func (a *UserHTTPController) BatchUpdateUsers(ctx router.Context) error {
	caller, err := a.requirePermission(ctx, PermissionManageUsers)
	if err != nil {
		return a.respondError(ctx, err)
	}

	payload := new(BatchUsersMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if a.Debug {
		fmt.Println("======= BATCH USERS ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	var res *BatchUsersResponse
	payload.Actor = ActorRef{ID: caller.ID.String(), Type: "user"}
	payload.OnResponse = func(resp *BatchUsersResponse) {
		res = resp
	}

	handler := NewBatchUsersHandler(a.Repos).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("batch users error", "error", err)
		if res != nil {
			// every user failed; the payload itself was fine
			return ctx.JSON(router.StatusInternalServerError, res)
		}
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// CreateUserPayload provisions an account on behalf of an administrator.
type CreateUserPayload struct {
	Username   string `json:"username" form:"username"`
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	Role       string `json:"role" form:"role"`
	ExpiryTime *int64 `json:"expiryTime" form:"expiryTime"`
	MaxEmails  int    `json:"maxEmails" form:"maxEmails"`
}

func (a *UserHTTPController) CreateUser(ctx router.Context) error {
	caller, err := a.requirePermission(ctx, PermissionManageUsers)
	if err != nil {
		return a.respondError(ctx, err)
	}

	payload := new(CreateUserPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	var created *User
	msg := CreateUserMessage{
		Username:   payload.Username,
		Email:      payload.Email,
		Password:   payload.Password,
		Role:       payload.Role,
		ExpiryTime: payload.ExpiryTime,
		MaxEmails:  payload.MaxEmails,
		Actor:      ActorRef{ID: caller.ID.String(), Type: "user"},
		OnResponse: func(user *User) {
			created = user
		},
	}

	handler := NewCreateUserHandler(a.Repos).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("create user error", "error", err)
		return a.respondError(ctx, err)
	}

	created.PasswordHash = ""

	return ctx.JSON(fiber.StatusCreated, map[string]any{
		"success": true,
		"user":    created,
	})
}

func (a *UserHTTPController) UserStats(ctx router.Context) error {
	if _, err := a.requirePermission(ctx, PermissionManageUsers); err != nil {
		return a.respondError(ctx, err)
	}

	stats, err := a.Repos.Users().Stats(ctx.Context(), a.Store.Now())
	if err != nil {
		a.Logger.Error("user stats error", "error", err)
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user stats"))
	}

	return ctx.JSON(router.StatusOK, stats)
}

// TokenPayload carries a bearer token for the signin endpoints.
type TokenPayload struct {
	Token string `json:"token" form:"token"`
}

func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *UserHTTPController) DirectLogin(ctx router.Context) error {
	payload := new(TokenPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid payload"))
	}

	var res *DirectLoginResponse
	msg := DirectLoginMessage{
		Token: payload.Token,
		OnResponse: func(resp *DirectLoginResponse) {
			res = resp
		},
	}

	handler := NewDirectLoginHandler(a.Store).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// DirectLoginRedirect is the link-click flow: the token rides in the query
// string and the browser ends up on the auto-signin page, or on the error
// page with a human readable reason.
func (a *UserHTTPController) DirectLoginRedirect(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return a.redirectError(ctx, "missing token")
	}

	result, err := a.Store.Validate(ctx.Context(), token, false)
	if err != nil {
		a.Logger.Info("direct login redirect rejected", "error", err)
		return a.redirectError(ctx, errorMessage(err))
	}

	handler := NewDirectLoginHandler(a.Store)
	return ctx.Redirect(handler.RedirectTarget(result.User), http.StatusTemporaryRedirect)
}

func (a *UserHTTPController) TokenSignin(ctx router.Context) error {
	payload := new(TokenPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	if err := payload.Validate(); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid payload"))
	}

	var res *TokenSigninResponse
	msg := TokenSigninMessage{
		Token: payload.Token,
		OnResponse: func(resp *TokenSigninResponse) {
			res = resp
		},
	}

	handler := NewTokenSigninHandler(a.Store).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// AutoSigninPayload matches the query parameters the redirect flow produces;
// the POST body uses the same field names.
type AutoSigninPayload struct {
	UserID    string `json:"userId" form:"userId" query:"userId"`
	Username  string `json:"username" form:"username" query:"username"`
	Timestamp string `json:"timestamp" form:"timestamp" query:"timestamp"`
}

func (a *UserHTTPController) AutoSignin(ctx router.Context) error {
	payload := new(AutoSigninPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body"))
	}

	timestamp, err := strconv.ParseInt(payload.Timestamp, 10, 64)
	if err != nil {
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid timestamp"))
	}

	var res *AutoSigninResponse
	msg := AutoSigninMessage{
		UserID:    payload.UserID,
		Username:  payload.Username,
		Timestamp: timestamp,
		OnResponse: func(resp *AutoSigninResponse) {
			res = resp
		},
	}

	handler := NewAutoSigninHandler(a.Repos, a.Engine).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// requirePermission resolves the session user and checks the permission
// against their stored role.
func (a *UserHTTPController) requirePermission(ctx router.Context, permission Permission) (*User, error) {
	if a.Session == nil {
		return nil, ErrUnauthenticated
	}

	callerID, ok := a.Session(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	caller, err := a.Repos.Users().GetByIdentifier(ctx.Context(), callerID.String())
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if !HasPermission(caller.Role, permission) {
		a.Logger.Warn("permission denied",
			"user_id", caller.ID,
			"role", caller.Role,
			"permission", permission,
		)
		return nil, ErrPermissionDenied
	}

	return caller, nil
}

func (a *UserHTTPController) respondError(ctx router.Context, err error) error {
	status := HTTPStatus(err)
	if status >= router.StatusInternalServerError {
		a.Logger.Error("request failed", "error", err)
	}

	return ctx.JSON(status, map[string]any{
		"success": false,
		"error":   errorMessage(err),
	})
}

func (a *UserHTTPController) redirectError(ctx router.Context, message string) error {
	target := a.ErrorRedirect + "?error=" + url.QueryEscape(message)
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

// errorMessage keeps client-facing text stable: status rejections surface
// their fixed reason, rich errors their message, everything else a generic
// fallback.
func errorMessage(err error) string {
	var rejection *StatusRejection
	if errors.As(err, &rejection) {
		return rejection.Error()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Category == goerrors.CategoryInternal {
			return "internal server error"
		}
		return richErr.Message
	}

	if err != nil {
		return err.Error()
	}

	return ""
}

// clientMeta extracts proxy-aware client information for token audit fields.
func clientMeta(ctx router.Context) ClientMeta {
	return ClientMeta{
		IPAddress: clientIP(ctx),
		UserAgent: ctx.Header("user-agent"),
	}
}

func clientIP(ctx router.Context) string {
	if fwd := ctx.Header("x-forwarded-for"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := ctx.Header("x-real-ip"); real != "" {
		return real
	}
	if cf := ctx.Header("cf-connecting-ip"); cf != "" {
		return cf
	}
	return "unknown"
}
