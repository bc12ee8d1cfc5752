package main

import (
	"chat-sync/domain"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const idWidth = 8

// Terminal prints the session state as it changes: new messages, phase and
// connection changes, typing users and notifications.
type Terminal struct {
	out     io.Writer
	colours bool

	mu           sync.Mutex
	room         domain.RoomID
	phase        domain.Phase
	status       domain.ConnectionStatus
	typing       string
	seen         map[string]struct{}
	messagesRoom domain.RoomID
}

func NewTerminal(out io.Writer, colours bool) *Terminal {
	return &Terminal{out: out, colours: colours, seen: make(map[string]struct{})}
}

func (t *Terminal) Consume(state domain.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state.Room != t.room {
		t.room = state.Room
		if state.Room != "" {
			t.println(t.paint(color.FgCyan, fmt.Sprintf("== #%s ==", state.Room)))
		}
	}
	if state.Phase != t.phase {
		t.phase = state.Phase
		t.println(t.paint(color.FgGray, "phase: "+state.Phase.String()))
	}
	if state.ConnectionStatus != t.status {
		t.status = state.ConnectionStatus
		if state.ConnectionStatus != "" {
			t.println(t.paint(color.FgGray, "connection: "+string(state.ConnectionStatus)))
		}
	}

	if state.MessagesRoom != t.messagesRoom {
		t.messagesRoom = state.MessagesRoom
		t.seen = make(map[string]struct{})
	}
	for _, m := range state.Messages {
		if _, ok := t.seen[m.ID]; ok {
			continue
		}
		t.seen[m.ID] = struct{}{}
		t.println(t.formatMessage(m))
	}

	typing := strings.Join(lo.Map(state.TypingUsers, func(s domain.TypingSignal, _ int) string {
		return s.DisplayName
	}), ", ")
	if typing != t.typing {
		t.typing = typing
		if typing != "" {
			t.println(t.paint(color.FgGray, typing+" typing..."))
		}
	}
}

func (t *Terminal) Notify(n domain.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch n.Kind {
	case domain.UserJoined:
		t.println(t.paint(color.FgGreen, fmt.Sprintf("%s joined #%s", n.User.DisplayName, n.Room)))
	case domain.Failure:
		t.println(t.paint(color.FgRed, "error: "+n.Err.Error()))
	}
}

// Roster renders the online users of state as a table.
func (t *Terminal) Roster(state domain.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"User", "Name", "Avatar", "Online since"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, entry := range state.OnlineUsers {
		table.Append([]string{
			shortID(entry.UserID),
			entry.DisplayName,
			entry.AvatarStyle,
			entry.OnlineAt.Format("15:04:05"),
		})
	}
	table.SetFooter([]string{"", "", "Total", fmt.Sprint(state.OnlineCount)})
	table.Render()
}

// Rooms lists the rooms reachable by the user, the active one marked.
func (t *Terminal) Rooms(active domain.RoomID, rooms []domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, room := range rooms {
		marker := "  "
		if room == active {
			marker = "* "
		}
		t.println(marker + "#" + room.String())
	}
}

// Info prints a line outside of any state change.
func (t *Terminal) Info(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(s)
}

func (t *Terminal) formatMessage(m domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: ", m.CreatedAt.Format("15:04:05"), t.paint(color.FgGray, shortID(m.ID)),
		t.paint(color.FgYellow, m.AuthorName))
	if m.Reply != nil {
		fmt.Fprintf(&b, "(> %s: %s) ", m.Reply.AuthorName, m.Reply.Content)
	}
	b.WriteString(m.Content)
	for _, group := range domain.GroupReactions(m.Reactions) {
		fmt.Fprintf(&b, " %s%d", group.Emoji, group.Count)
	}
	return b.String()
}

func (t *Terminal) paint(c color.Color, s string) string {
	if !t.colours {
		return s
	}
	return c.Render(s)
}

func (t *Terminal) println(s string) {
	_, _ = fmt.Fprintln(t.out, s)
}

func shortID(id string) string {
	if len(id) > idWidth {
		return id[:idWidth]
	}
	return id
}
