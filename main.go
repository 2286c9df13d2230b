package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/api"
	"boardsync/engine"
	"boardsync/state"
	"boardsync/storage"
	"boardsync/watcher"
)

const alertChannelPrefix = "deadline-alerts:"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)
	store := storage.New(rc)

	var auth *api.Auth
	if secret := os.Getenv("AUTH_TEST_SECRET"); secret != "" {
		auth = api.NewTestAuth([]byte(secret))
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	logger := log.New()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, store, rc, auth, logger)

	if boards := os.Getenv("WATCH_BOARDS"); boards != "" {
		interval := time.Minute
		if v := os.Getenv("WATCH_INTERVAL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid WATCH_INTERVAL: %v", err)
			}
			interval = d
		}
		if err := startWatchers(context.Background(), boards, store, rc, logger, interval); err != nil {
			log.Fatalf("deadline watcher: %v", err)
		}
	}

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// startWatchers opens a live session per "owner:boardId" entry and runs a
// deadline watcher over it, publishing alerts on the board's alert channel.
func startWatchers(ctx context.Context, boards string, store *storage.Store, rc *redis.Client, logger *log.Logger, interval time.Duration) error {
	dedupe := watcher.NewRedisDeduper(rc, watcher.DefaultSuppression)
	for _, entry := range strings.Split(boards, ",") {
		owner, boardID, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || owner == "" || boardID == "" {
			return fmt.Errorf("invalid WATCH_BOARDS entry %q", entry)
		}

		reg := engine.NewRegistry(store, rc, watcherIdentity{owner: owner}, logger)
		sess, err := reg.OpenLive(ctx, boardID, func(err error) {
			logger.WithError(err).WithField("board", boardID).Warn("watcher subscription lost")
		})
		if err != nil {
			return err
		}

		channel := alertChannelPrefix + owner + ":" + boardID
		w := watcher.New(
			func() state.Tasks { return state.Tasks(sess.Snapshot().Tasks) },
			dedupe,
			func(a watcher.Alert) {
				payload, err := sonic.Marshal(a)
				if err != nil {
					logger.WithError(err).Error("encode alert")
					return
				}
				if err := rc.Publish(ctx, channel, payload).Err(); err != nil {
					logger.WithError(err).Warn("publish alert")
				}
			},
			logger,
			watcher.Config{Interval: interval},
		)
		go w.Run(ctx)
	}
	return nil
}

// watcherIdentity lets the background watcher open boards as their owner.
type watcherIdentity struct {
	owner string
}

func (w watcherIdentity) CurrentUser() (engine.User, error) {
	return engine.User{ID: w.owner}, nil
}
