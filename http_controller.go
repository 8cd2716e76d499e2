package divide

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// HTTPControllerRoutes holds the mount points of the auth surface.
type HTTPControllerRoutes struct {
	Auth      string
	PublicKey string
	Validate  string
	FromToken string
	Recover   string
	UserData  string
	PushKey   string
}

// HTTPController exposes the protocol over HTTP. Responses carry
// sanitized records only; freshly issued recovery tokens travel in the
// RecoveryTokenHeader, never in a body.
type HTTPController struct {
	Debug    bool
	Logger   Logger
	Service  *Service
	Resolver *SessionResolver
	Routes   *HTTPControllerRoutes
}

// HTTPControllerOption configures the controller during construction.
type HTTPControllerOption func(*HTTPController) *HTTPController

// WithControllerLogger replaces the default stdout logger.
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug toggles request payload dumps.
func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// WithControllerService sets the protocol service.
func WithControllerService(service *Service) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Service = service
		return c
	}
}

// WithControllerResolver sets the session resolver.
func WithControllerResolver(resolver *SessionResolver) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Resolver = resolver
		return c
	}
}

// NewHTTPController builds a controller with default routes.
func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
		Routes: &HTTPControllerRoutes{
			Auth:      "/auth",
			PublicKey: "/auth/key",
			Validate:  "/auth/validate/:token",
			FromToken: "/auth/from/:token",
			Recover:   "/auth/recover/:token",
			UserData:  "/auth/user/data",
			PushKey:   "/auth/user/push",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in auth controller...")
	}

	if c.Resolver == nil {
		c.Resolver = NewSessionResolver(c.Service, nil).WithLogger(c.Logger)
	}

	return c
}

// RegisterAuthRoutes mounts the transport surface on a fiber app.
func RegisterAuthRoutes(app *fiber.App, opts ...HTTPControllerOption) *HTTPController {
	controller := NewHTTPController(opts...)

	app.Post(controller.Routes.Auth, controller.SignUpPost)
	app.Put(controller.Routes.Auth, controller.LoginPut)
	app.Get(controller.Routes.PublicKey, controller.PublicKeyGet)
	app.Get(controller.Routes.Validate, controller.ValidateGet)
	app.Get(controller.Routes.FromToken, controller.FromTokenGet)
	app.Get(controller.Routes.Recover, controller.RecoverGet)

	app.Post(controller.Routes.UserData, controller.RequireSession, controller.UserDataPost)
	app.Put(controller.Routes.UserData, controller.RequireSession, controller.UserDataPut)
	app.Post(controller.Routes.PushKey+"/:key", controller.RequireSession, controller.PushKeyPost)
	app.Delete(controller.Routes.PushKey, controller.RequireSession, controller.PushKeyDelete)

	return controller
}

// RequireSession resolves the authorization header into an identity and
// binds it to the request context. Requests without a resolvable token
// never reach the handler.
func (a *HTTPController) RequireSession(c *fiber.Ctx) error {
	ctx, record, err := a.Resolver.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return a.renderError(c, err)
	}

	c.SetUserContext(ctx)
	c.Locals("identity", record)

	return c.Next()
}

// SignUpPost handles POST /auth.
func (a *HTTPController) SignUpPost(c *fiber.Ctx) error {
	creds := new(Record)
	if err := c.BodyParser(creds); err != nil {
		a.Logger.Error("sign up: parse payload: %v", err)
		return a.renderError(c, ErrMalformedPayload)
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP =====")
		fmt.Println(print.MaybePrettyJSON(creds))
		fmt.Println("=========================")
	}

	record, err := a.Service.SignUp(c.UserContext(), creds)
	if err != nil {
		return a.renderError(c, err)
	}

	c.Set(RecoveryTokenHeader, record.RecoveryToken())

	return c.JSON(record.Sanitized())
}

// LoginPut handles PUT /auth.
func (a *HTTPController) LoginPut(c *fiber.Ctx) error {
	creds := new(Record)
	if err := c.BodyParser(creds); err != nil {
		a.Logger.Error("login: parse payload: %v", err)
		return a.renderError(c, ErrMalformedPayload)
	}

	record, err := a.Service.Login(c.UserContext(), creds)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(record.Sanitized())
}

// PublicKeyGet handles GET /auth/key, serving the raw PKIX bytes.
func (a *HTTPController) PublicKeyGet(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(a.Service.PublicKey())
}

// ValidateGet handles GET /auth/validate/{token}.
func (a *HTTPController) ValidateGet(c *fiber.Ctx) error {
	record, err := a.Service.ValidateAccount(c.UserContext(), c.Params("token"))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(record.Sanitized())
}

// FromTokenGet handles GET /auth/from/{token}.
func (a *HTTPController) FromTokenGet(c *fiber.Ctx) error {
	record, err := a.Service.ResolveToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(record.Sanitized())
}

// RecoverGet handles GET /auth/recover/{token}. The rotated recovery
// token rides the RecoveryTokenHeader.
func (a *HTTPController) RecoverGet(c *fiber.Ctx) error {
	record, err := a.Service.RecoverFromToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return a.renderError(c, err)
	}

	c.Set(RecoveryTokenHeader, record.RecoveryToken())

	return c.JSON(record.Sanitized())
}

// UserDataPost handles POST /auth/user/data, overwriting the caller's
// user data bag. The identity comes from the session, never the payload.
func (a *HTTPController) UserDataPost(c *fiber.Ctx) error {
	identity, ok := RecordFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrTokenExpired)
	}

	payload := new(Record)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("user data: parse payload: %v", err)
		return a.renderError(c, ErrMalformedPayload)
	}

	record, err := a.Service.SaveUserData(c.UserContext(), identity.OwnerID, payload.UserData)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(record.Sanitized())
}

// UserDataPut handles PUT /auth/user/data. The body names the owner
// whose user data bag to fetch; an empty body reads the caller's own.
// User data is not a secret bag, any authenticated caller may read it.
func (a *HTTPController) UserDataPut(c *fiber.Ctx) error {
	identity, ok := RecordFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrTokenExpired)
	}

	ownerID := identity.OwnerID
	if body := strings.TrimSpace(string(c.Body())); body != "" {
		id, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			a.Logger.Error("user data: parse owner id: %v", err)
			return a.renderError(c, ErrMalformedPayload)
		}
		ownerID = id
	}

	data, err := a.Service.UserData(c.UserContext(), ownerID)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(data)
}

// PushKeyPost handles POST /auth/user/push/{key}.
func (a *HTTPController) PushKeyPost(c *fiber.Ctx) error {
	identity, ok := RecordFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrTokenExpired)
	}

	if err := a.Service.RegisterPushKey(c.UserContext(), identity.OwnerID, c.Params("key")); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// PushKeyDelete handles DELETE /auth/user/push.
func (a *HTTPController) PushKeyDelete(c *fiber.Ctx) error {
	identity, ok := RecordFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrTokenExpired)
	}

	if err := a.Service.UnregisterPushKey(c.UserContext(), identity.OwnerID); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
}

// renderError maps an error to one external status code. Internal detail
// stays in the log; the body carries only the public message.
func (a *HTTPController) renderError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := errorBody{Message: "internal error"}

	var rich *errors.Error
	if errors.As(err, &rich) {
		if rich.Code > 0 {
			status = rich.Code
		}
		body.Message = rich.Message
		body.TextCode = rich.TextCode
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed: %v", err)
	} else {
		a.Logger.Debug("request rejected: %v", err)
	}

	return c.Status(status).JSON(errorResponse{Error: body})
}
