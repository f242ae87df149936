package http

import (
	"net/http"

	"github.com/bobur-yusupov/daylog-sub000/internal/application/otp"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/resetflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/session"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/user"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/verifyflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/config"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/dynamo"
	jwtinfra "github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/jwt"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/smtp"
	"github.com/bobur-yusupov/daylog-sub000/internal/infrastructure/sns"
	"github.com/bobur-yusupov/daylog-sub000/internal/transport/http/handler"
	appmiddleware "github.com/bobur-yusupov/daylog-sub000/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    *dynamo.UserRepo
	SessionRepo *dynamo.SessionRepo
	OtpRepo     *dynamo.OtpRepo
	FlowRepo    *dynamo.FlowRepo
	Mailer      smtp.Mailer
	Alerts      sns.AlertPublisher
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(otp.ServiceDeps{
		TokenRepo: deps.OtpRepo,
		UserRepo:  deps.UserRepo,
		Mailer:    deps.Mailer,
		Config: otp.Config{
			Expiry:         cfg.OTPExpiry,
			MaxAttempts:    cfg.OTPMaxAttempts,
			ResendInterval: cfg.OTPResendInterval,
		},
	})
	verifySvc := verifyflow.NewService(verifyflow.ServiceDeps{
		Codes:    otpSvc,
		UserRepo: deps.UserRepo,
	})
	resetSvc := resetflow.NewService(resetflow.ServiceDeps{
		Codes:     otpSvc,
		UserRepo:  deps.UserRepo,
		TokenRepo: deps.OtpRepo,
		Mailer:    deps.Mailer,
		Alerts:    deps.Alerts,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenDur,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo: deps.UserRepo,
		Mailer:   deps.Mailer,
	})

	flows := handler.NewFlowManager(deps.FlowRepo, cfg.FlowSessionTTL)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc, verifySvc, flows)
	userH := handler.NewUserHandler(userSvc, verifySvc, flows)
	verifyH := handler.NewVerifyEmailHandler(verifySvc, flows)
	resetH := handler.NewPasswordResetHandler(resetSvc, flows)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/verify-email/{action}", verifyH.Action)
		r.With(sensitiveRL.Limit).Post("/password-reset/{action}", resetH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/profile", userH.GetProfile)
			r.Put("/profile", userH.UpdateProfile)
			r.Post("/profile/change-password", userH.ChangePassword)
		})
	})

	return r
}
