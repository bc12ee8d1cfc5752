package main

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/runtime"
	"context"
	"fmt"
	"strings"
)

const usage = `commands:
  /switch <room>            enter a room
  /create <name> <secret>   create a private room
  /join <room> <secret>     unlock a private room
  /rooms                    list reachable rooms
  /who                      show who is online
  /reply <id>               reply to a message, /reply alone cancels
  /react <id> <emoji>       toggle a reaction
  /delete <id>              delete one of your messages
  /clear                    delete every message of the room
  /avatar <style>           change your avatar style
  /typing                   tell the room you are typing
  /refresh                  reload the room
  /retry                    rebuild the room session after an error
  /dismiss                  clear the current error
  /quit                     leave
anything else is sent as a message`

var errQuit = errors.New("quit")

// Commands turns input lines into controller calls.
type Commands struct {
	controller *runtime.Controller
	terminal   *Terminal
}

func NewCommands(controller *runtime.Controller, terminal *Terminal) *Commands {
	return &Commands{controller: controller, terminal: terminal}
}

// Execute runs one input line. It returns errQuit on /quit.
func (c *Commands) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.controller.SendMessage(ctx, line)
	}

	name, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	switch name {
	case "/quit":
		return errQuit
	case "/help":
		c.terminal.Info(usage)
		return nil
	case "/switch":
		if len(args) != 1 {
			return usageError(name)
		}
		return c.controller.SwitchRoom(ctx, domain.RoomID(args[0]))
	case "/create":
		if len(args) < 2 {
			return usageError(name)
		}
		secret := args[len(args)-1]
		roomName := strings.Join(args[:len(args)-1], " ")
		id, err := c.controller.CreatePrivateRoom(ctx, roomName, secret)
		if err != nil {
			return err
		}
		c.terminal.Info("created #" + id.String())
		return nil
	case "/join":
		if len(args) != 2 {
			return usageError(name)
		}
		room := domain.RoomID(args[0])
		if err := c.controller.JoinPrivateRoom(ctx, room, args[1]); err != nil {
			return err
		}
		return c.controller.SwitchRoom(ctx, room)
	case "/rooms":
		state, err := c.controller.State(ctx)
		if err != nil {
			return err
		}
		rooms, err := c.controller.JoinedRooms(ctx)
		if err != nil {
			return err
		}
		c.terminal.Rooms(state.Room, rooms)
		return nil
	case "/who":
		state, err := c.controller.State(ctx)
		if err != nil {
			return err
		}
		c.terminal.Roster(state)
		return nil
	case "/reply":
		if len(args) == 0 {
			return c.controller.SetReplyTarget(ctx, "")
		}
		id, err := c.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		return c.controller.SetReplyTarget(ctx, id)
	case "/react":
		if len(args) != 2 {
			return usageError(name)
		}
		id, err := c.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		return c.controller.ToggleReaction(ctx, id, args[1])
	case "/delete":
		if len(args) != 1 {
			return usageError(name)
		}
		id, err := c.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		return c.controller.DeleteMessage(ctx, id)
	case "/clear":
		return c.controller.ClearRoom(ctx)
	case "/avatar":
		if len(args) != 1 {
			return usageError(name)
		}
		return c.controller.ChangeAvatar(ctx, args[0])
	case "/typing":
		return c.controller.NotifyTyping(ctx)
	case "/refresh":
		return c.controller.Refresh(ctx)
	case "/retry":
		return c.controller.Retry(ctx)
	case "/dismiss":
		return c.controller.DismissError(ctx)
	default:
		return usageError(name)
	}
}

// resolve expands the short id printed by the terminal into a full message id.
func (c *Commands) resolve(ctx context.Context, prefix string) (string, error) {
	state, err := c.controller.State(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, m := range state.Messages {
		if strings.HasPrefix(m.ID, prefix) {
			found = append(found, m.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no message %q", errors.ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d messages", errors.ErrValidation, prefix, len(found))
	}
}

func usageError(name string) error {
	return fmt.Errorf("%w: bad usage of %s, try /help", errors.ErrValidation, name)
}
