package websocket

import (
	"strings"

	"github.com/google/uuid"
)

const (
	userRoomPrefix    = "user:"
	meetingRoomPrefix = "meeting:"
)

// UserRoom is the direct-conversation room for a user. Every connection
// of the user is a member, so anything addressed to the user lands here.
func UserRoom(userID uuid.UUID) string {
	return userRoomPrefix + userID.String()
}

func MeetingRoom(meetingID uuid.UUID) string {
	return meetingRoomPrefix + meetingID.String()
}

func IsUserRoom(name string) bool {
	return strings.HasPrefix(name, userRoomPrefix)
}

func IsMeetingRoom(name string) bool {
	return strings.HasPrefix(name, meetingRoomPrefix)
}

// MeetingIDFromRoom parses the meeting id out of a meeting room name.
func MeetingIDFromRoom(name string) (uuid.UUID, bool) {
	if !IsMeetingRoom(name) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(name, meetingRoomPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
