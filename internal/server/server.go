package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"todoapi/internal/auth"
	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
	"todoapi/internal/health"
	"todoapi/internal/logger"
	"todoapi/internal/service"

	"github.com/gin-gonic/gin"
	gorillahandlers "github.com/gorilla/handlers"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

type TodoAPI struct {
	httpSrv *http.Server
	cfg     *Config
	users   service.UserRepository
	todos   *service.TodoService
	tokens  *auth.JWTManager
	hasher  *auth.PasswordHasher
	health  *health.Reporter
}

// NewTodoAPI wires the HTTP surface over repo. It returns nil when repo or
// tokens is missing. A nil cfg means DefaultConfig; a nil reporter probes
// repo only.
func NewTodoAPI(cfg *Config, repo service.Repository, tokens *auth.JWTManager, reporter *health.Reporter) *TodoAPI {
	if repo == nil || tokens == nil {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reporter == nil {
		reporter = health.NewReporter(health.Options{
			StartTime:   time.Now().UTC(),
			Version:     cfg.Version,
			Environment: cfg.Environment,
			Database:    repo,
		})
	}

	api := &TodoAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
		cfg:    cfg,
		users:  repo,
		todos:  service.NewTodoService(repo),
		tokens: tokens,
		hasher: auth.NewPasswordHasher(),
		health: reporter,
	}
	api.configRoutes()
	return api
}

func (api *TodoAPI) Handler() http.Handler {
	return api.httpSrv.Handler
}

// Start blocks serving HTTP. A graceful Shutdown makes it return nil.
func (api *TodoAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	if api.httpSrv.Addr == "" {
		api.httpSrv.Addr = ":8080"
	}
	logger.Info("http server listening", "addr", api.httpSrv.Addr)
	if err := api.httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *TodoAPI) Shutdown(ctx context.Context) error {
	if api.httpSrv == nil {
		return nil
	}
	return api.httpSrv.Shutdown(ctx)
}

func (api *TodoAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(RequestLogger(), gin.Recovery(), GzipRequestDecompress(), GzipResponseCompress())

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
	})

	router.GET("/", api.root)
	router.GET("/health", api.liveness)
	router.GET("/health/detailed", api.detailedHealth)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", api.register)
		authGroup.POST("/token", api.login)
		authGroup.GET("/me", api.authRequired(), api.me)
	}

	todos := router.Group("/todos", api.authRequired())
	{
		todos.GET("", api.listTodos)
		todos.POST("", api.createTodo)
		todos.GET("/analytics", api.analytics)
		todos.GET("/export/:format", api.exportTodos)
		todos.GET("/:id", api.getTodo)
		todos.PUT("/:id", api.updateTodo)
		todos.DELETE("/:id", api.deleteTodo)
	}

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", RequestIDHeader}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedOrigins(api.cfg.CORSAllowedOrigins),
		gorillahandlers.ExposedHeaders([]string{"Content-Disposition", RequestIDHeader}),
		gorillahandlers.AllowCredentials(),
	)
	api.httpSrv.Handler = cors(router)
}

func (api *TodoAPI) root(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, api.health.Welcome())
}

func (api *TodoAPI) liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, api.health.Liveness())
}

func (api *TodoAPI) detailedHealth(ctx *gin.Context) {
	report := api.health.Detailed(ctx.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, report)
}

func (api *TodoAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		writeError(ctx, errors.ErrBadRequest)
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(ctx, err)
		return
	}

	hash, err := api.hasher.Hash(req.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	user := &models.User{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := api.users.CreateUser(ctx.Request.Context(), user); err != nil {
		writeError(ctx, err)
		return
	}
	logger.InfoContext(ctx.Request.Context(), "user registered", "user_id", user.ID)
	ctx.JSON(http.StatusCreated, user)
}

// login accepts either a form or a JSON body.
func (api *TodoAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBind(&req); err != nil {
		writeError(ctx, errors.ErrBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(ctx, errors.ErrInvalidCredentials)
		return
	}

	user, err := api.users.GetUserByUsername(ctx.Request.Context(), req.Username)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			err = errors.ErrInvalidCredentials
		}
		writeError(ctx, err)
		return
	}
	if !api.hasher.Verify(req.Password, user.HashedPassword) {
		writeError(ctx, errors.ErrInvalidCredentials)
		return
	}
	if !user.IsActive {
		writeError(ctx, errors.ErrInactiveUser)
		return
	}

	token, err := api.tokens.Generate(user.ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(TokenCookie, token, int(api.tokens.TokenTTL().Seconds()), "/", "", api.cfg.Environment == "production", true)
	ctx.JSON(http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: auth.TokenType})
}

func (api *TodoAPI) me(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, currentUser(ctx))
}

func (api *TodoAPI) listTodos(ctx *gin.Context) {
	resp, err := api.todos.List(ctx.Request.Context(), currentUser(ctx).ID, ctx.Request.URL.Query())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (api *TodoAPI) createTodo(ctx *gin.Context) {
	var input models.TaskInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		writeError(ctx, errors.ErrBadRequest)
		return
	}
	task, err := api.todos.Create(ctx.Request.Context(), currentUser(ctx).ID, input)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, task)
}

func (api *TodoAPI) getTodo(ctx *gin.Context) {
	task, err := api.todos.Get(ctx.Request.Context(), currentUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TodoAPI) updateTodo(ctx *gin.Context) {
	var patch models.TaskPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		if !errors.IsValidation(err) {
			err = errors.ErrBadRequest
		}
		writeError(ctx, err)
		return
	}
	task, err := api.todos.Update(ctx.Request.Context(), currentUser(ctx).ID, ctx.Param("id"), patch)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (api *TodoAPI) deleteTodo(ctx *gin.Context) {
	deleted, err := api.todos.Delete(ctx.Request.Context(), currentUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !deleted {
		writeError(ctx, errors.ErrNotFound)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Todo deleted successfully"})
}

func (api *TodoAPI) analytics(ctx *gin.Context) {
	stats, err := api.todos.Analytics(ctx.Request.Context(), currentUser(ctx).ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (api *TodoAPI) exportTodos(ctx *gin.Context) {
	file, err := api.todos.Export(ctx.Request.Context(), currentUser(ctx).ID, ctx.Param("format"), ctx.Request.URL.Query())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", file.Format.ContentDisposition())
	ctx.Data(http.StatusOK, file.Format.ContentType(), file.Data)
}

// errorResponse maps a domain error to a status and client message. Causes of
// 500s are never exposed.
func errorResponse(err error) (int, string) {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest, errors.Message(err)
	case stderrors.Is(err, errors.ErrBadRequest), stderrors.Is(err, errors.ErrInvalidGzipRequest):
		return http.StatusBadRequest, err.Error()
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "Todo not found"
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return http.StatusConflict, "Username or email already registered"
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect username or password"
	case stderrors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized, "Could not validate credentials"
	case stderrors.Is(err, errors.ErrInactiveUser):
		return http.StatusForbidden, "Inactive user"
	}
	return http.StatusInternalServerError, errors.ErrInternalServer.Error()
}

func writeError(ctx *gin.Context, err error) {
	status, msg := errorResponse(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(ctx.Request.Context(), "request failed", "path", ctx.FullPath(), "error", err)
		_ = ctx.Error(err)
	}
	ctx.JSON(status, gin.H{"error": msg})
}

func abortWithError(ctx *gin.Context, err error) {
	writeError(ctx, err)
	ctx.Abort()
}
