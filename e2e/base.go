package e2e

import (
	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/infrastructure/hub"
	"chat-sync/infrastructure/storage"
	"chat-sync/infrastructure/websocket"
	"chat-sync/observability"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

const waitFor, tick = 5 * time.Second, 10 * time.Millisecond

// BaseSuite runs every client of a scenario against one badger store and one
// hub, the way a single deployment would.
type BaseSuite struct {
	suite.Suite
	Config Config

	log       *slog.Logger
	db        *badger.DB
	hub       *hub.Hub
	store     *storage.Store
	joined    *repositories.JoinedRoomRepository
	tokens    *auth.TokenIssuer
	transport contract.Transport
	server    *httptest.Server
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.log = logs.GetLoggerFromString(s.Config.LogLevel)
}

func (s *BaseSuite) SetupTest() {
	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.db = db
	s.hub = hub.New(s.log, hub.DefaultBuffer)
	s.store = storage.NewStore(db, s.log).WithPublisher(s.hub)
	s.joined = repositories.NewJoinedRoomRepository(db, s.log)
	s.tokens = auth.NewTokenIssuer([]byte("e2e-signing-key"), time.Hour)
	s.transport = s.hub

	if s.Config.Websocket {
		s.server = httptest.NewServer(websocket.NewServer(s.log, s.hub))
		url := "ws" + strings.TrimPrefix(s.server.URL, "http")
		s.transport = websocket.NewTransport(s.log, url, hub.DefaultBuffer)
	}
}

func (s *BaseSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	_ = s.db.Close()
}

// Step prints a colorized header for a scenario step in logs.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Client is one signed-in user running its own controller.
type Client struct {
	User       domain.User
	Controller *runtime.Controller
	Session    *auth.Session
	sink       *stateSink
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewClient signs user in and starts its controller under a supervisor.
// The client is stopped at the end of the test.
func (s *BaseSuite) NewClient(user domain.User) *Client {
	ctx := context.Background()
	s.Require().NoError(s.store.PutProfile(ctx, domain.Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Color:       user.Color,
		AvatarStyle: user.AvatarStyle,
		CreatedAt:   time.Now().UTC(),
	}))

	session := auth.NewSession(s.log, s.tokens)
	token, err := s.tokens.Issue(user)
	s.Require().NoError(err)
	_, err = session.SignIn(token)
	s.Require().NoError(err)

	cfg := runtime.DefaultConfig()
	cfg.SweepInterval = 50 * time.Millisecond
	cfg.SendRetryDelay = 10 * time.Millisecond
	controller := runtime.NewController(s.log, cfg, session, s.transport, s.store, s.store, s.joined,
		observability.NewMetrics(prometheus.NewRegistry()))
	sink := &stateSink{}
	controller.Subscribe(sink)

	runCtx, cancel := context.WithCancel(ctx)
	client := &Client{User: user, Controller: controller, Session: session, sink: sink, cancel: cancel, done: make(chan struct{})}
	supervisor := workers.NewSupervisor(s.log).WithRestartDelay(10 * time.Millisecond)
	supervisor.Add(controller.Workers()...)
	go func() {
		defer close(client.done)
		supervisor.Run(runCtx)
	}()
	s.T().Cleanup(client.Stop)
	return client
}

// Stop cancels the controller and waits for it to release its channel.
func (c *Client) Stop() {
	c.cancel()
	<-c.done
}

// State is the latest state published to subscribers.
func (c *Client) State() domain.State {
	return c.sink.latest()
}

// AwaitActive waits until the client is active in room.
func (s *BaseSuite) AwaitActive(c *Client, room domain.RoomID) {
	s.Require().Eventually(func() bool {
		state := c.State()
		return state.Room == room && state.Phase == domain.Active
	}, waitFor, tick, "%s never became active in %s", c.User.DisplayName, room)
	s.dump(c)
}

// AwaitContents waits until the timeline of c holds exactly contents, in order.
func (s *BaseSuite) AwaitContents(c *Client, contents ...string) {
	s.Require().Eventually(func() bool {
		messages := c.State().Messages
		if len(messages) != len(contents) {
			return false
		}
		for i, m := range messages {
			if m.Content != contents[i] {
				return false
			}
		}
		return true
	}, waitFor, tick, "%s never saw %v", c.User.DisplayName, contents)
	s.dump(c)
}

func (s *BaseSuite) dump(c *Client) {
	if !s.Config.DebugState {
		return
	}
	state := c.State()
	s.T().Logf("%s: room=%s phase=%s status=%s messages=%d online=%d",
		c.User.DisplayName, state.Room, state.Phase, state.ConnectionStatus, len(state.Messages), state.OnlineCount)
}

type stateSink struct {
	mu    sync.Mutex
	state domain.State
	notes []domain.Notification
}

func (s *stateSink) Consume(state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *stateSink) Notify(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *stateSink) latest() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notifications returns every notification received so far.
func (c *Client) Notifications() []domain.Notification {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	return append([]domain.Notification(nil), c.sink.notes...)
}
