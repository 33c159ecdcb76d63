package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	httpin "servio/internal/adapters/in/http"
	"servio/internal/adapters/in/http/middleware"
	fsrepo "servio/internal/adapters/out/firestore"
	"servio/internal/adapters/out/identity"
	"servio/internal/adapters/out/localstore"
	"servio/internal/adapters/out/mail"
	"servio/internal/adapters/out/notify"
	"servio/internal/adapters/out/secrets"
	usecase "servio/internal/application/usecase"
	cartdom "servio/internal/domain/cart"
	appcfg "servio/internal/infra/config"
)

// Container owns external clients and the wired usecases.
//
// Firestore and the ephemeral store are strict (their absence is a startup
// error); Firebase Auth, Secret Manager and the reminder pipeline are
// best-effort (warn and continue), mirroring the rule that the cart must
// stay usable when a collaborator is down.
type Container struct {
	Config *appcfg.Config
	Log    *zap.Logger

	Firestore     *firestore.Client
	FirebaseApp   *firebase.App
	FirebaseAuth  *firebaseauth.Client
	SecretManager *secretmanager.Client
	Redis         *redis.Client

	Store    usecase.LocalStore
	Notifier notify.Notifier
	CartRepo cartdom.Repository

	CartUC      *usecase.CartUsecase
	ReconcileUC *usecase.ReconcileUsecase
	ReminderUC  *usecase.ReminderUsecase

	redisNotifier *notify.RedisNotifier
}

func NewContainer(ctx context.Context, cfg *appcfg.Config, log *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}
	if projectID == "" {
		return nil, errors.New("di: firestore project id is empty (set firestore.project_id or GOOGLE_CLOUD_PROJECT)")
	}

	c := &Container{Config: cfg, Log: log}

	var clientOpts []option.ClientOption
	if cred := strings.TrimSpace(cfg.Firestore.CredentialsFile); cred != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cred))
		log.Info("using credentials file for GCP clients")
	} else {
		log.Info("using application default credentials")
	}

	// 1) Firestore (strict): the remote durable tier.
	fsClient, err := firestore.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("di: firestore init failed: %w", err)
	}
	c.Firestore = fsClient
	c.CartRepo = fsrepo.NewCartRepositoryFS(fsClient)

	// 2) Firebase Auth (best-effort): login verification. Without it the
	// service still serves anonymous carts.
	if app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...); err != nil {
		log.Warn("firebase app init failed, auth disabled", zap.Error(err))
	} else {
		c.FirebaseApp = app
		if authClient, err := app.Auth(ctx); err != nil {
			log.Warn("firebase auth init failed, auth disabled", zap.Error(err))
		} else {
			c.FirebaseAuth = authClient
		}
	}

	// 3) Ephemeral tier + change broadcast, backend per config.
	switch cfg.State.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("di: redis ping failed: %w", err)
		}
		c.Redis = rdb
		c.Store = localstore.NewRedisStore(rdb)
		c.redisNotifier = notify.NewRedisNotifier(ctx, rdb, log)
		c.Notifier = c.redisNotifier
		log.Info("using redis ephemeral store")
	case "memory":
		c.Store = localstore.NewMemoryStore()
		c.Notifier = notify.NewBroadcaster(log)
		log.Info("using in-memory ephemeral store")
	default:
		return nil, fmt.Errorf("di: unknown state backend %q", cfg.State.Backend)
	}

	// 4) Usecases.
	c.CartUC = usecase.NewCartUsecase(c.Store, c.CartRepo, c.Notifier, log)
	c.ReconcileUC = usecase.NewReconcileUsecase(c.CartUC, c.Store, c.CartRepo, c.Notifier, log)

	// 5) Reminder pipeline (best-effort): needs a SendGrid key and
	// Firebase Auth for address lookup.
	c.buildReminder(ctx, clientOpts, projectID)

	return c, nil
}

func (c *Container) buildReminder(ctx context.Context, clientOpts []option.ClientOption, projectID string) {
	cfg := c.Config
	if !cfg.Reminder.Enabled {
		return
	}
	if c.FirebaseAuth == nil {
		c.Log.Warn("reminder enabled but firebase auth unavailable, skipping")
		return
	}

	apiKey := strings.TrimSpace(cfg.Mail.APIKey)
	if apiKey == "" && strings.TrimSpace(cfg.Mail.APIKeySecret) != "" {
		sm, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			c.Log.Warn("secret manager init failed, reminder disabled", zap.Error(err))
			return
		}
		c.SecretManager = sm

		key, err := secrets.NewProviderSM(sm, projectID).Access(ctx, cfg.Mail.APIKeySecret)
		if err != nil {
			c.Log.Warn("sendgrid key secret unreadable, reminder disabled", zap.Error(err))
			return
		}
		apiKey = key
	}
	if apiKey == "" {
		c.Log.Warn("reminder enabled but no sendgrid key configured, skipping")
		return
	}

	mailer := mail.NewSendGridClient(apiKey, cfg.Mail.From, c.Log)
	lookup := identity.NewFirebaseEmailLookup(c.FirebaseAuth)
	c.ReminderUC = usecase.NewReminderUsecase(c.CartRepo, mailer, lookup, c.Log)
	c.Log.Info("cart expiry reminder enabled")
}

// RouterDeps assembles the HTTP surface dependencies.
func (c *Container) RouterDeps() httpin.RouterDeps {
	// keep the interface nil when auth is disabled, a typed nil would
	// defeat the middleware's nil check
	var verifier middleware.TokenVerifier
	if c.FirebaseAuth != nil {
		verifier = c.FirebaseAuth
	}
	return httpin.RouterDeps{
		CartUC:      c.CartUC,
		ReconcileUC: c.ReconcileUC,
		Notifier:    c.Notifier,
		Auth:        &middleware.UserAuth{Verifier: verifier, Log: c.Log},
		Log:         c.Log,
	}
}

func (c *Container) Close() {
	if c.CartUC != nil {
		c.CartUC.Close()
	}
	if c.redisNotifier != nil {
		_ = c.redisNotifier.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.SecretManager != nil {
		_ = c.SecretManager.Close()
	}
	if c.Firestore != nil {
		_ = c.Firestore.Close()
	}
}
