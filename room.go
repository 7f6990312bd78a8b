package main

import (
	"fmt"
	"math/rand"
)

const (
	// Placeholder prompt for rooms whose host hasn't posed a mystery yet.
	sentinelQuestion = "The host hasn't set a question yet..."

	hostDisplayName  = "Host"
	playerNamePrefix = "Player"
)

const (
	RoleHost   = "host"
	RolePlayer = "player"
	RoleSystem = "system"
)

// Clue is a single host-authored hint. IDs are stable for the lifetime of
// the room, so clients can cache them across highlight/delete operations.
type Clue struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
}

// Message is one chat entry. Sender is always assigned server-side;
// client-supplied values are discarded.
type Message struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
	Role   string `json:"role"`
}

// outcome records whether a room operation changed state. Unauthorized or
// dangling-reference operations come back rejected and produce no broadcast;
// the wire protocol only ever surfaces the host-claim rejection.
type outcome int

const (
	applied outcome = iota
	rejected
)

// clueList keeps clues in insertion order while still allowing lookup by ID.
type clueList struct {
	order []string
	byID  map[string]*Clue
}

func newClueList() *clueList {
	return &clueList{
		byID: make(map[string]*Clue),
	}
}

func (l *clueList) add(c Clue) {
	l.order = append(l.order, c.ID)
	l.byID[c.ID] = &c
}

func (l *clueList) remove(id string) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

func (l *clueList) toggle(id string) bool {
	c, ok := l.byID[id]
	if !ok {
		return false
	}
	c.Highlighted = !c.Highlighted
	return true
}

func (l *clueList) len() int {
	return len(l.order)
}

// snapshot returns the clues in insertion order. The returned slice is a
// copy and safe to hand to the broadcast layer.
func (l *clueList) snapshot() []Clue {
	out := make([]Clue, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// Room holds all state for one game session. Rooms are owned exclusively by
// the RoomStore and only ever touched from the engine goroutine.
type Room struct {
	key      string
	hostID   string // connection ID of the host, empty while unclaimed
	question string
	clueSeq  int // monotonic; never reset while the room lives
	clues    *clueList
	chat     []Message
	players  map[string]string    // connection ID -> assigned display name
	clients  map[*Client]struct{} // connections joined to the room topic
}

func newRoom(key string) *Room {
	return &Room{
		key:      key,
		question: sentinelQuestion,
		clues:    newClueList(),
		players:  make(map[string]string),
		clients:  make(map[*Client]struct{}),
	}
}

func (r *Room) hasHost() bool {
	return r.hostID != ""
}

func (r *Room) isHost(connID string) bool {
	return r.hostID != "" && r.hostID == connID
}

// claimHost assigns the host role to connID. Exactly one host per room: a
// claim while one is already seated is rejected with no state change.
func (r *Room) claimHost(connID string) outcome {
	if r.hostID != "" {
		return rejected
	}
	r.hostID = connID
	r.players[connID] = hostDisplayName
	return applied
}

// joinAsPlayer assigns a random display name to connID and returns it.
// Name collisions between players are permitted and not checked.
func (r *Room) joinAsPlayer(connID string) string {
	name := fmt.Sprintf("%s%d", playerNamePrefix, 1000+rand.Intn(9000))
	r.players[connID] = name
	return name
}

func (r *Room) setQuestion(connID, text string) outcome {
	if !r.isHost(connID) {
		return rejected
	}
	r.question = text
	return applied
}

func (r *Room) addClue(connID, text string) outcome {
	if !r.isHost(connID) {
		return rejected
	}
	r.clueSeq++
	r.clues.add(Clue{
		ID:   fmt.Sprintf("clue-%d", r.clueSeq),
		Text: text,
	})
	return applied
}

func (r *Room) deleteClue(connID, clueID string) outcome {
	if !r.isHost(connID) {
		return rejected
	}
	if !r.clues.remove(clueID) {
		return rejected
	}
	return applied
}

func (r *Room) toggleHighlight(connID, clueID string) outcome {
	if !r.isHost(connID) {
		return rejected
	}
	if !r.clues.toggle(clueID) {
		return rejected
	}
	return applied
}

// announceResult mutates nothing; it only gates the broadcast on the caller
// holding the host role.
func (r *Room) announceResult(connID string) outcome {
	if !r.isHost(connID) {
		return rejected
	}
	return applied
}

// appendChat records a chat message from a known player. The sender name and
// role always come from the room's own records, never from the client.
func (r *Room) appendChat(connID, text string) (Message, outcome) {
	name, ok := r.players[connID]
	if !ok {
		return Message{}, rejected
	}
	role := RolePlayer
	if r.isHost(connID) {
		role = RoleHost
	}
	msg := Message{
		Text:   text,
		Sender: name,
		Role:   role,
	}
	r.chat = append(r.chat, msg)
	return msg, applied
}

// appendSystem records a server-generated notice such as a join or leave
// announcement.
func (r *Room) appendSystem(text string) Message {
	msg := Message{
		Text:   text,
		Sender: "system",
		Role:   RoleSystem,
	}
	r.chat = append(r.chat, msg)
	return msg
}

// removePlayer drops connID from the player roster, returning the name it
// held.
func (r *Room) removePlayer(connID string) (string, bool) {
	name, ok := r.players[connID]
	if !ok {
		return "", false
	}
	delete(r.players, connID)
	return name, true
}

// stateSnapshot copies the question, clue list, and chat history for replay
// to a joining connection.
func (r *Room) stateSnapshot() (string, []Clue, []Message) {
	chat := make([]Message, len(r.chat))
	copy(chat, r.chat)
	return r.question, r.clues.snapshot(), chat
}
