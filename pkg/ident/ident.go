// Package ident generates the short identifiers and display names used by rooms and chat.
package ident

import (
	"encoding/hex"
	"math/rand"

	"github.com/google/uuid"
)

const roomIDLength = 6

const roomIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var adjectives = []string{
	"Brave", "Quick", "Silent", "Bright", "Swift", "Bold", "Calm", "Clever",
	"Eager", "Fierce", "Gentle", "Happy", "Kind", "Lazy", "Merry", "Nervous",
	"Open", "Proud", "Quiet", "Rapid", "Shy", "Tender", "Upbeat", "Vibrant",
	"Wise", "Zany",
}

var animals = []string{
	"Wolf", "Fox", "Bear", "Eagle", "Tiger", "Lion", "Hawk", "Owl",
	"Panda", "Raven", "Snake", "Turtle", "Vulture", "Xerus", "Yak", "Zebra",
}

// NewRoomID returns a random 6-character alphanumeric room identifier.
func NewRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

// NewUsername returns a random Adjective+Animal display name.
func NewUsername() string {
	return adjectives[rand.Intn(len(adjectives))] + animals[rand.Intn(len(animals))]
}

// NewMessageID returns a chat message identifier of the form "msg_<8 hex chars>".
func NewMessageID() string {
	u := uuid.New()
	return "msg_" + hex.EncodeToString(u[:])[:8]
}
