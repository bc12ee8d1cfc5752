package workers

import (
	"chat-sync/domain"
	"chat-sync/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestStateFanout_Fanout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	sink1 := mocks.NewMockStateSink(ctrl)
	sink2 := mocks.NewMockStateSink(ctrl)

	fanout := NewStateFanout(log)
	fanout.Subscribe(sink1)
	fanout.Subscribe(sink2)

	// Given two states published before the worker runs
	fanout.Publish(domain.State{Room: "random"})
	fanout.Publish(domain.State{Room: domain.DefaultRoom})
	joined := domain.Notification{Kind: domain.UserJoined, User: domain.PresenceEntry{UserID: "u3"}}
	fanout.Notify(joined)

	// Then only the latest state reaches each sink, followed by the notification
	for _, sink := range []*mocks.MockStateSink{sink1, sink2} {
		gomock.InOrder(
			sink.EXPECT().Consume(domain.State{Room: domain.DefaultRoom}).Times(1),
			sink.EXPECT().Notify(joined).Times(1),
		)
	}

	fanout.Fanout()
	// Nothing is pending anymore
	fanout.Fanout()
}

func TestStateFanout_LateSubscriberGetsCurrentState(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockStateSink(ctrl)

	fanout := NewStateFanout(log)
	fanout.Publish(domain.State{Room: "tech"})
	fanout.Fanout()

	done := make(chan struct{})
	sink.EXPECT().Consume(domain.State{Room: "tech"}).Do(func(domain.State) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When a sink subscribes after the state was delivered
	fanout.Subscribe(sink)

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("late subscriber did not receive the current state")
	}
}

func TestStateFanout_Unsubscribe(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockStateSink(ctrl)

	fanout := NewStateFanout(log)
	unsubscribe := fanout.Subscribe(sink)
	unsubscribe()

	// Then the sink receives nothing
	fanout.Publish(domain.State{Room: "tech"})
	fanout.Fanout()
}
