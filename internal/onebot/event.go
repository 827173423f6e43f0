// Package onebot implements a forward websocket client for the OneBot v11
// chat protocol. The event side decodes inbound frames into group messages;
// everything else on the wire (heartbeats, API echoes, private chats) is
// filtered out before it reaches the host.
package onebot

import (
	"encoding/json"
	"fmt"
)

// Sender carries the profile fields OneBot attaches to a message author.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

// GroupMessage is one inbound group chat message.
type GroupMessage struct {
	MessageID  int64
	GroupID    int64
	UserID     int64
	RawMessage string
	Time       int64
	Sender     Sender
}

// frame is the superset of fields we inspect on any inbound event. OneBot
// multiplexes messages, notices, meta events, and API responses over one
// connection; post_type discriminates them.
type frame struct {
	PostType    string `json:"post_type"`
	MessageType string `json:"message_type"`
	MessageID   int64  `json:"message_id"`
	GroupID     int64  `json:"group_id"`
	UserID      int64  `json:"user_id"`
	RawMessage  string `json:"raw_message"`
	Time        int64  `json:"time"`
	Sender      Sender `json:"sender"`
}

// ParseGroupMessage decodes raw as an event frame and extracts a group
// message. ok is false for well-formed frames of any other kind.
func ParseGroupMessage(raw []byte) (msg *GroupMessage, ok bool, err error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false, fmt.Errorf("decode event: %w", err)
	}
	if f.PostType != "message" || f.MessageType != "group" {
		return nil, false, nil
	}
	return &GroupMessage{
		MessageID:  f.MessageID,
		GroupID:    f.GroupID,
		UserID:     f.UserID,
		RawMessage: f.RawMessage,
		Time:       f.Time,
		Sender:     f.Sender,
	}, true, nil
}
