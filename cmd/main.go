package main

import (
	"bufio"
	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/infrastructure/hub"
	"chat-sync/infrastructure/storage"
	"chat-sync/infrastructure/websocket"
	"chat-sync/internal"
	"chat-sync/moderation"
	"chat-sync/observability"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the client, keeps it running until a signal or /quit, and makes
// sure every deferred cleanup happens before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	censorChar, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Channels & Storage
	channels := hub.New(log, config.BufferSize)
	store := storage.NewStore(db, log).WithPublisher(channels)
	joined := repositories.NewJoinedRoomRepository(db, log)

	var transport contract.Transport = channels
	if config.TransportURL != "" {
		transport = websocket.NewTransport(log, config.TransportURL, config.BufferSize)
	}

	dictionaries, err := moderation.NewCensoredLoader(moderation.Dictionaries).LoadAll(moderation.DictionaryDir)
	if err != nil {
		return fmt.Errorf("dictionaries loading failed: %w", err)
	}
	moderator, err := moderation.NewLanguageModerator(dictionaries, censorChar, log)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}

	// 4. Identity
	tokens := auth.NewTokenIssuer([]byte(config.SigningKey), config.AuthTokenDuration)
	session := auth.NewSession(log, tokens)

	// 5. Session engine
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	controller := runtime.NewController(log, runtime.Config{
		BufferSize:     config.BufferSize,
		TypingTTL:      config.TypingTTL,
		SweepInterval:  config.SweepInterval,
		SendRetryDelay: config.SendRetryDelay,
		TypingRate:     rate.Limit(config.TypingRate),
		TypingBurst:    1,
	}, session, transport, store, store, joined, metrics).WithCensor(moderator)

	terminal := NewTerminal(os.Stdout, config.Colours)
	unsubscribe := controller.Subscribe(terminal)
	defer unsubscribe()

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := workers.NewSupervisor(log).WithRestartDelay(config.RestartInterval)
	supervisor.Add(controller.Workers()...)
	supervisor.Add(workers.NewChannelCapacityWorker(log, controller.Channels(), channels,
		observability.NewCapacity(registry), config.MetricInterval))
	supervised := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervised)
	}()

	// 7. HTTP servers
	errChan := make(chan error, 2)
	var servers []*http.Server
	if config.ServeAddr != "" {
		servers = append(servers, serve(log, "websocket", config.ServeAddr, websocket.NewServer(log, channels), errChan))
	}
	if config.DebugAddr != "" {
		mux := internal.NewDebugMux(db, registry, nil, func() map[string]any {
			rooms, handles := channels.Stats()
			return map[string]any{"rooms": rooms, "handles": handles, "dropped": channels.Dropped()}
		})
		servers = append(servers, serve(log, "debug", config.DebugAddr, mux, errChan))
	}

	// 8. Sign in
	user, err := signIn(ctx, config, tokens, session, store)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	log.Info("Signed in", "user", user.ID, "name", user.DisplayName)

	// 9. Read commands until stop, error or /quit
	commands := NewCommands(controller, terminal)
	lines := readLines(os.Stdin)
	terminal.Info("type /help for the list of commands")
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down gracefully...")
			break loop
		case err := <-errChan:
			return err
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			err := commands.Execute(ctx, line)
			if errors.Is(err, errQuit) {
				break loop
			}
			if err != nil {
				terminal.Notify(domain.Notification{Kind: domain.Failure, Err: err})
			}
		}
	}

	// 10. Final Cleanup
	session.SignOut()
	stop()
	<-supervised
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, server := range servers {
		_ = server.Shutdown(shutdownCtx)
	}
	log.Info("Program stopped cleanly")
	return nil
}

// signIn uses TOKEN when set, otherwise issues a token for USER_ID.
// The profile is stored so that presence resolves the user like any other.
func signIn(ctx context.Context, config Config, tokens *auth.TokenIssuer, session *auth.Session, store *storage.Store) (domain.User, error) {
	token := config.Token
	if token == "" {
		if config.UserName == "" {
			return domain.User{}, fmt.Errorf("%w: TOKEN or USER_NAME is required", errors.ErrValidation)
		}
		id := config.UserID
		if id == "" {
			id = uuid.NewString()
		}
		issued, err := tokens.Issue(domain.User{
			ID:          id,
			DisplayName: config.UserName,
			Color:       config.UserColor,
			AvatarStyle: domain.DefaultAvatarStyle,
		})
		if err != nil {
			return domain.User{}, err
		}
		token = issued
	}

	user, err := tokens.Parse(token)
	if err != nil {
		return domain.User{}, err
	}
	if err := store.PutProfile(ctx, domain.Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Color:       user.Color,
		AvatarStyle: user.AvatarStyle,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return domain.User{}, err
	}
	return session.SignIn(token)
}

func serve(log *slog.Logger, name, addr string, handler http.Handler, errChan chan<- error) *http.Server {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Starting HTTP server", "name", name, "address", addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("%s server error: %w", name, err)
		}
	}()
	return server
}

// readLines scans r on its own goroutine so that the main loop can select on it.
func readLines(r *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
