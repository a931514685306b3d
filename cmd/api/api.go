package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sacco/docs" //this is required to generate swagger docs
	"sacco/internal/auth"
	"sacco/internal/mailer"
	"sacco/internal/members"
	"sacco/internal/payflow"
	"sacco/internal/ratelimiter"
	"sacco/internal/store"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         store.Storage
	logger        *zap.SugaredLogger
	cld           *cloudinary.Cloudinary
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	gateway       payflow.Gateway
	initiator     *payflow.Initiator
	poller        *payflow.Poller
	memberNumbers *members.NumberGenerator
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	apiURL      string
	frontendURL string
	auth        authConfig
	mail        mailConfig
	mpesa       mpesaConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret          string
	refreshSecret   string
	accessTokenExp  time.Duration
	refreshTokenExp time.Duration
	iss             string
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	fromEmail string
	host      string
	port      int
	username  string
	password  string
	otpExp    time.Duration
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type mpesaConfig struct {
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	baseURL        string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Request contexts signal through ctx.Done() once this expires; the
	// payment status endpoint does one provider round-trip well within it.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// Public routes
		r.Route("/authentication", func(r chi.Router) {
			r.Post("/user", app.registerUserHandler)
			r.Post("/otp", app.verifyOTPHandler)
			r.Post("/token", app.createTokenHandler)
			r.Post("/refresh", app.refreshTokenHandler)
		})

		// The provider calls back without credentials.
		r.Post("/payments/callback", app.mpesaCallbackHandler)

		r.Group(func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", app.getCurrentUserHandler)
				r.Put("/", app.updateUserHandler)
				r.Post("/logout", app.logoutHandler)
				r.Post("/documents", app.uploadDocumentHandler)
				r.Get("/documents", app.listDocumentsHandler)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/initiate", app.initiatePaymentHandler)
				r.Post("/status", app.paymentStatusHandler)
				r.Get("/", app.listTransactionsHandler)
			})

			r.Route("/registration", func(r chi.Router) {
				r.Get("/status", app.registrationStatusHandler)
				r.Post("/pay", app.payRegistrationHandler)
			})

			r.Route("/shares", func(r chi.Router) {
				r.Get("/summary", app.sharesSummaryHandler)
				r.Get("/purchases", app.listSharePurchasesHandler)
				r.Post("/purchase", app.purchaseSharesHandler)
			})

			r.Route("/welfare", func(r chi.Router) {
				r.Get("/contributions", app.listContributionsHandler)
				r.Post("/contribute", app.contributeWelfareHandler)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Post("/", app.applyLoanHandler)
				r.Get("/", app.listMyLoansHandler)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(app.CheckAdmin)
				r.Get("/dashboard", app.adminDashboardHandler)
				r.Get("/users", app.adminListUsersHandler)
				r.Post("/users", app.adminCreateUserHandler)
				r.Put("/users/{userID}", app.adminUpdateUserHandler)
				r.Get("/documents", app.adminListDocumentsHandler)
				r.Put("/documents/{documentID}", app.adminReviewDocumentHandler)
				r.Get("/loans", app.adminListLoansHandler)
				r.Put("/loans/{loanID}", app.adminDecideLoanHandler)
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
