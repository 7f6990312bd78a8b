package main

import (
	"testing"
)

func newTestEngine() *Engine {
	return newEngine(&Config{}, NewRoomStore())
}

func newTestClient() *Client {
	return &Client{
		send: make(chan any, 32),
		id:   newConnID(),
	}
}

// drain empties a client's outbound buffer without blocking. Dispatch is
// synchronous, so everything a handler produced is already buffered.
func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// joinAs runs the join flow for a client and returns its assigned display
// name. The client's buffer is left drained.
func joinAs(t *testing.T, e *Engine, c *Client, roomKey, role string) string {
	t.Helper()

	e.handle(joinRoomRequest{client: c, roomKey: roomKey})
	e.handle(selectRoleRequest{client: c, roomKey: roomKey, role: role})

	name := ""
	for _, msg := range drain(c) {
		if sync, ok := msg.(GameStateSyncMessage); ok {
			name = sync.MyName
		}
	}
	if name == "" {
		t.Fatalf("join flow for role %q produced no gameStateSync", role)
	}
	return name
}

func TestJoinRoomAcknowledgesHostPresence(t *testing.T) {
	e := newTestEngine()

	first := newTestClient()
	e.handle(joinRoomRequest{client: first, roomKey: "ABC123"})

	msgs := drain(first)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages on join, want 1", len(msgs))
	}
	ack, ok := msgs[0].(JoinSuccessMessage)
	if !ok || ack.HasHost {
		t.Fatalf("join ack = %+v, want joinSuccess with hasHost=false", msgs[0])
	}

	e.handle(selectRoleRequest{client: first, roomKey: "ABC123", role: RoleHost})
	drain(first)

	second := newTestClient()
	e.handle(joinRoomRequest{client: second, roomKey: "ABC123"})
	ack = drain(second)[0].(JoinSuccessMessage)
	if !ack.HasHost {
		t.Error("join ack should report hasHost=true once a host is seated")
	}
}

func TestSecondHostClaimRejected(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)

	rival := newTestClient()
	e.handle(joinRoomRequest{client: rival, roomKey: "ABC123"})
	drain(rival)
	e.handle(selectRoleRequest{client: rival, roomKey: "ABC123", role: RoleHost})

	msgs := drain(rival)
	if len(msgs) != 1 {
		t.Fatalf("rejected claimant got %d messages, want just roleRejected", len(msgs))
	}
	rej, ok := msgs[0].(RoleRejectedMessage)
	if !ok || rej.Role != RoleHost {
		t.Fatalf("got %+v, want roleRejected(host)", msgs[0])
	}

	room := e.store.Lookup("ABC123")
	if room.hostID != host.id {
		t.Error("host role changed hands on a rejected claim")
	}
	if msgs := drain(host); len(msgs) != 0 {
		t.Errorf("rejected claim broadcast %d messages to the room, want 0", len(msgs))
	}
}

func TestSnapshotReplayOnJoin(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	e.handle(updateQuestionRequest{client: host, roomKey: "ABC123", questionText: "who did it?"})
	e.handle(addClueRequest{client: host, roomKey: "ABC123", clueText: "knife"})
	e.handle(sendMessageRequest{client: host, roomKey: "ABC123", message: Message{Text: "welcome"}})
	drain(host)

	player := newTestClient()
	e.handle(joinRoomRequest{client: player, roomKey: "ABC123"})
	e.handle(selectRoleRequest{client: player, roomKey: "ABC123", role: RolePlayer})

	var syncs []GameStateSyncMessage
	for _, msg := range drain(player) {
		if sync, ok := msg.(GameStateSyncMessage); ok {
			syncs = append(syncs, sync)
		}
	}
	if len(syncs) != 1 {
		t.Fatalf("got %d gameStateSync messages, want exactly 1", len(syncs))
	}

	sync := syncs[0]
	if sync.Question != "who did it?" {
		t.Errorf("replayed question = %q", sync.Question)
	}
	if len(sync.Clues) != 1 || sync.Clues[0].ID != "clue-1" || sync.Clues[0].Text != "knife" {
		t.Errorf("replayed clues = %+v", sync.Clues)
	}
	// Host join notice plus the host's chat line; the joiner's own join
	// announcement must not appear in its snapshot.
	if len(sync.ChatHistory) != 2 {
		t.Fatalf("replayed chat has %d entries, want 2", len(sync.ChatHistory))
	}
	if sync.ChatHistory[1].Text != "welcome" || sync.ChatHistory[1].Sender != hostDisplayName {
		t.Errorf("replayed chat tail = %+v", sync.ChatHistory[1])
	}
	for _, msg := range sync.ChatHistory {
		if msg.Text == sync.MyName+" joined the room." {
			t.Error("snapshot was modified by the join itself")
		}
	}
}

func TestChatSenderIsServerAssigned(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)

	player := newTestClient()
	name := joinAs(t, e, player, "ABC123", RolePlayer)
	drain(host)

	e.handle(sendMessageRequest{
		client:  player,
		roomKey: "ABC123",
		message: Message{Text: "hello", Sender: "Admin", Role: RoleHost},
	})

	var chat *NewChatMessage
	for _, msg := range drain(host) {
		if m, ok := msg.(NewChatMessage); ok {
			chat = &m
		}
	}
	if chat == nil {
		t.Fatal("no newMessage broadcast")
	}
	if chat.Message.Sender != name {
		t.Errorf("sender = %q, want server-assigned %q", chat.Message.Sender, name)
	}
	if chat.Message.Role != RolePlayer {
		t.Errorf("role = %q, want %q despite the spoofed payload", chat.Message.Role, RolePlayer)
	}
}

func TestChatFromRolelessConnectionDropped(t *testing.T) {
	e := newTestEngine()

	lurker := newTestClient()
	e.handle(joinRoomRequest{client: lurker, roomKey: "ABC123"})
	drain(lurker)

	e.handle(sendMessageRequest{client: lurker, roomKey: "ABC123", message: Message{Text: "boo"}})
	if msgs := drain(lurker); len(msgs) != 0 {
		t.Errorf("roleless chat produced %d messages, want 0", len(msgs))
	}
	if room := e.store.Lookup("ABC123"); len(room.chat) != 0 {
		t.Error("roleless chat mutated the chat history")
	}
}

func TestNonHostResetIsNoOp(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	e.handle(updateQuestionRequest{client: host, roomKey: "ABC123", questionText: "who did it?"})

	player := newTestClient()
	joinAs(t, e, player, "ABC123", RolePlayer)
	drain(host)
	drain(player)

	e.handle(resetGameRequest{client: player, roomKey: "ABC123"})

	room := e.store.Lookup("ABC123")
	if room == nil {
		t.Fatal("room was deleted by a non-host reset")
	}
	if room.question != "who did it?" {
		t.Error("room state changed on a non-host reset")
	}
	if len(room.chat) != 2 {
		t.Errorf("chat history has %d entries after non-host reset, want 2", len(room.chat))
	}
	for _, c := range []*Client{host, player} {
		for _, msg := range drain(c) {
			if _, ok := msg.(GameResetMessage); ok {
				t.Error("gameReset was emitted for a non-host reset")
			}
		}
	}
}

func TestHostResetDeletesRoom(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	player := newTestClient()
	joinAs(t, e, player, "ABC123", RolePlayer)
	drain(host)
	drain(player)

	e.handle(resetGameRequest{client: host, roomKey: "ABC123"})

	if e.store.Lookup("ABC123") != nil {
		t.Error("room should be deleted on host reset")
	}
	for _, c := range []*Client{host, player} {
		reset := false
		for _, msg := range drain(c) {
			if _, ok := msg.(GameResetMessage); ok {
				reset = true
			}
		}
		if !reset {
			t.Error("every connection in the room should receive gameReset")
		}
	}
}

func TestHostDisconnectDeletesRoom(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	e.handle(addClueRequest{client: host, roomKey: "ABC123", clueText: "knife"})

	playerOne := newTestClient()
	playerTwo := newTestClient()
	joinAs(t, e, playerOne, "ABC123", RolePlayer)
	joinAs(t, e, playerTwo, "ABC123", RolePlayer)
	drain(playerOne)
	drain(playerTwo)

	e.handle(disconnectRequest{client: host})

	if e.store.Lookup("ABC123") != nil {
		t.Fatal("room should be deleted when the host disconnects")
	}
	for _, c := range []*Client{playerOne, playerTwo} {
		reset := false
		for _, msg := range drain(c) {
			if _, ok := msg.(GameResetMessage); ok {
				reset = true
			}
		}
		if !reset {
			t.Error("remaining players should receive gameReset on host disconnect")
		}
	}

	// The same key starts over from scratch.
	late := newTestClient()
	e.handle(joinRoomRequest{client: late, roomKey: "ABC123"})
	ack := drain(late)[0].(JoinSuccessMessage)
	if ack.HasHost {
		t.Error("recreated room should report hasHost=false")
	}

	e.handle(selectRoleRequest{client: late, roomKey: "ABC123", role: RolePlayer})
	for _, msg := range drain(late) {
		if sync, ok := msg.(GameStateSyncMessage); ok {
			if sync.Question != sentinelQuestion || len(sync.Clues) != 0 || len(sync.ChatHistory) != 0 {
				t.Errorf("recreated room leaked prior state: %+v", sync)
			}
		}
	}
}

func TestPlayerDisconnectAnnouncesLeave(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	player := newTestClient()
	name := joinAs(t, e, player, "ABC123", RolePlayer)
	drain(host)

	e.handle(disconnectRequest{client: player})

	if e.store.Lookup("ABC123") == nil {
		t.Fatal("player disconnect must not delete the room")
	}

	found := false
	for _, msg := range drain(host) {
		if m, ok := msg.(NewChatMessage); ok {
			if m.Message.Role == RoleSystem && m.Message.Text == name+" left the room." {
				found = true
			}
		}
	}
	if !found {
		t.Error("room should receive a system leave message")
	}
	if _, ok := e.store.Lookup("ABC123").players[player.id]; ok {
		t.Error("disconnected player should be removed from the roster")
	}
}

func TestClueLifecycleScenario(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)

	lastClues := func() []Clue {
		var clues []Clue
		for _, msg := range drain(host) {
			if m, ok := msg.(CluesUpdatedMessage); ok {
				clues = m.Clues
			}
		}
		return clues
	}

	e.handle(addClueRequest{client: host, roomKey: "ABC123", clueText: "knife"})
	clues := lastClues()
	if len(clues) != 1 || clues[0].ID != "clue-1" || clues[0].Highlighted {
		t.Fatalf("after add: %+v, want clue-1 unhighlighted", clues)
	}

	e.handle(toggleHighlightRequest{client: host, roomKey: "ABC123", clueID: "clue-1"})
	clues = lastClues()
	if len(clues) != 1 || !clues[0].Highlighted {
		t.Fatalf("after toggle: %+v, want clue-1 highlighted", clues)
	}

	e.handle(deleteClueRequest{client: host, roomKey: "ABC123", clueID: "clue-1"})
	clues = lastClues()
	if len(clues) != 0 {
		t.Fatalf("after delete: %+v, want empty list", clues)
	}

	e.handle(addClueRequest{client: host, roomKey: "ABC123", clueText: "rope"})
	clues = lastClues()
	if len(clues) != 1 || clues[0].ID != "clue-2" {
		t.Fatalf("after re-add: %+v, want clue-2 (not a reused clue-1)", clues)
	}
}

func TestAnnounceResultHostOnly(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	player := newTestClient()
	joinAs(t, e, player, "ABC123", RolePlayer)
	drain(host)
	drain(player)

	e.handle(announceResultRequest{client: player, roomKey: "ABC123", result: "the butler"})
	if msgs := drain(host); len(msgs) != 0 {
		t.Errorf("non-host announcement broadcast %d messages, want 0", len(msgs))
	}

	e.handle(announceResultRequest{client: host, roomKey: "ABC123", result: "the gardener"})
	found := false
	for _, msg := range drain(player) {
		if m, ok := msg.(ResultAnnouncedMessage); ok && m.Result == "the gardener" {
			found = true
		}
	}
	if !found {
		t.Error("host announcement should reach the room")
	}
}

func TestQuestionUpdateBroadcast(t *testing.T) {
	e := newTestEngine()

	host := newTestClient()
	joinAs(t, e, host, "ABC123", RoleHost)
	player := newTestClient()
	joinAs(t, e, player, "ABC123", RolePlayer)
	drain(player)

	e.handle(updateQuestionRequest{client: host, roomKey: "ABC123", questionText: "who did it?"})

	found := false
	for _, msg := range drain(player) {
		if m, ok := msg.(QuestionUpdatedMessage); ok && m.Question == "who did it?" {
			found = true
		}
	}
	if !found {
		t.Error("question update should reach the room")
	}
	if e.store.Lookup("ABC123").question != "who did it?" {
		t.Error("question was not applied")
	}
}
