package e2e

import (
	"chat-sync/domain"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

var (
	alice = domain.User{ID: "u-alice", DisplayName: "alice", Color: "#ef4444", AvatarStyle: domain.DefaultAvatarStyle}
	bob   = domain.User{ID: "u-bob", DisplayName: "bob", Color: "#22c55e", AvatarStyle: domain.DefaultAvatarStyle}
)

type testTwoClientsSuite struct {
	BaseSuite
}

func TestTwoClientsSuite(t *testing.T) {
	suite.Run(t, &testTwoClientsSuite{})
}

func (s *testTwoClientsSuite) TestHelloInGeneral() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.Step("Step 1: both clients enter the default room")
	a := s.NewClient(alice)
	s.AwaitActive(a, domain.DefaultRoom)
	b := s.NewClient(bob)
	s.AwaitActive(b, domain.DefaultRoom)

	s.Require().Eventually(func() bool {
		return a.State().OnlineCount == 2 && b.State().OnlineCount == 2
	}, waitFor, tick)
	s.Require().Eventually(func() bool {
		for _, n := range a.Notifications() {
			if n.Kind == domain.UserJoined && n.User.UserID == bob.ID {
				return true
			}
		}
		return false
	}, waitFor, tick, "alice was never told bob joined")

	s.Step("Step 2: alice says hello while bob refreshes")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.NoError(a.Controller.SendMessage(ctx, "hello"))
	}()
	go func() {
		defer wg.Done()
		s.NoError(b.Controller.Refresh(ctx))
	}()
	wg.Wait()

	// Whichever path delivers it first, the message shows exactly once
	s.AwaitContents(a, "hello")
	s.AwaitContents(b, "hello")
	s.Equal(alice.DisplayName, b.State().Messages[0].AuthorName)

	s.Step("Step 3: bob reacts, alice sees the reaction")
	id := b.State().Messages[0].ID
	s.Require().NoError(b.Controller.ToggleReaction(ctx, id, "🔥"))
	s.Require().Eventually(func() bool {
		messages := a.State().Messages
		return len(messages) == 1 && len(messages[0].Reactions) == 1 && messages[0].Reactions[0].UserID == bob.ID
	}, waitFor, tick)

	s.Step("Step 4: alice deletes her message")
	s.Require().NoError(a.Controller.DeleteMessage(ctx, id))
	s.AwaitContents(a)
	s.AwaitContents(b)
}

func (s *testTwoClientsSuite) TestPrivateRoomAndLeave() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := s.NewClient(alice)
	s.AwaitActive(a, domain.DefaultRoom)
	b := s.NewClient(bob)
	s.AwaitActive(b, domain.DefaultRoom)

	s.Step("Step 1: alice creates a private room and bob unlocks it")
	room, err := a.Controller.CreatePrivateRoom(ctx, "Book Club", "hunter22")
	s.Require().NoError(err)
	s.Equal(domain.RoomID("book-club"), room)
	s.Require().NoError(b.Controller.JoinPrivateRoom(ctx, room, "hunter22"))

	s.Step("Step 2: both switch and talk")
	s.Require().NoError(a.Controller.SwitchRoom(ctx, room))
	s.Require().NoError(b.Controller.SwitchRoom(ctx, room))
	s.AwaitActive(a, room)
	s.AwaitActive(b, room)
	s.Require().NoError(b.Controller.SendMessage(ctx, "first page is great"))
	s.AwaitContents(a, "first page is great")

	s.Step("Step 3: bob leaves, alice's roster shrinks")
	s.Require().Eventually(func() bool { return a.State().OnlineCount == 2 }, waitFor, tick)
	b.Stop()
	s.Require().Eventually(func() bool { return a.State().OnlineCount == 1 }, waitFor, tick)

	s.Step("Step 4: general is untouched")
	s.Require().NoError(a.Controller.SwitchRoom(ctx, domain.DefaultRoom))
	s.AwaitActive(a, domain.DefaultRoom)
	s.AwaitContents(a)
}
