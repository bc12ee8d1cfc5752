package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	req := require.New(t)

	req.Equal(RoomID("book-club"), Slugify("Book Club"))
	req.Equal(RoomID("cafe-creme"), Slugify("  Café   Crème!! "))
	req.Equal(RoomID("go-1-24"), Slugify("Go 1.24"))
	req.Equal(RoomID(""), Slugify("!!!"))
}

func TestSlugify_Truncates(t *testing.T) {
	req := require.New(t)
	long := ""
	for i := 0; i < 60; i++ {
		long += "a"
	}
	req.Len(string(Slugify(long)), maxSlugLength)
}

func TestRoomID_IsFixed(t *testing.T) {
	req := require.New(t)
	req.True(DefaultRoom.IsFixed())
	req.True(RoomID("tech").IsFixed())
	req.False(RoomID("book-club").IsFixed())
}
