package main

// Inbound events arrive as a closed set of request variants, one per wire
// operation plus the implicit disconnect. The gateway builds these; the
// engine consumes them.
type request interface {
	isRequest()
}

type joinRoomRequest struct {
	client  *Client
	roomKey string
}

type selectRoleRequest struct {
	client  *Client
	roomKey string
	role    string
}

type updateQuestionRequest struct {
	client       *Client
	roomKey      string
	questionText string
}

type sendMessageRequest struct {
	client  *Client
	roomKey string
	message Message
}

type addClueRequest struct {
	client   *Client
	roomKey  string
	clueText string
}

type deleteClueRequest struct {
	client  *Client
	roomKey string
	clueID  string
}

type toggleHighlightRequest struct {
	client  *Client
	roomKey string
	clueID  string
}

type announceResultRequest struct {
	client  *Client
	roomKey string
	result  string
}

type resetGameRequest struct {
	client  *Client
	roomKey string
}

type disconnectRequest struct {
	client *Client
}

func (joinRoomRequest) isRequest()        {}
func (selectRoleRequest) isRequest()      {}
func (updateQuestionRequest) isRequest()  {}
func (sendMessageRequest) isRequest()     {}
func (addClueRequest) isRequest()         {}
func (deleteClueRequest) isRequest()      {}
func (toggleHighlightRequest) isRequest() {}
func (announceResultRequest) isRequest()  {}
func (resetGameRequest) isRequest()       {}
func (disconnectRequest) isRequest()      {}

// Engine owns the room store and processes requests strictly one at a time,
// for all rooms. Every handler runs validate, mutate, broadcast to
// completion before the next request is picked up, so room state is never
// observed mid-mutation and no locking is needed.
type Engine struct {
	cfg      *Config
	store    *RoomStore
	requests chan request
}

func newEngine(cfg *Config, store *RoomStore) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		requests: make(chan request),
	}
}

func (e *Engine) run() {
	for req := range e.requests {
		e.handle(req)
	}
}

func (e *Engine) handle(req request) {
	switch req := req.(type) {
	case joinRoomRequest:
		e.handleJoinRoom(req)
	case selectRoleRequest:
		e.handleSelectRole(req)
	case updateQuestionRequest:
		e.handleUpdateQuestion(req)
	case sendMessageRequest:
		e.handleSendMessage(req)
	case addClueRequest:
		e.handleAddClue(req)
	case deleteClueRequest:
		e.handleDeleteClue(req)
	case toggleHighlightRequest:
		e.handleToggleHighlight(req)
	case announceResultRequest:
		e.handleAnnounceResult(req)
	case resetGameRequest:
		e.handleResetGame(req)
	case disconnectRequest:
		e.handleDisconnect(req)
	}
}

// send delivers msg to a single client without blocking. A client whose
// buffer is full is dropped from the room and closed.
func (e *Engine) send(room *Room, c *Client, msg any) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(room.clients, c)
		e.closeClient(c)
	}
}

// broadcast fans msg out to every connection currently joined to the room
// topic.
func (e *Engine) broadcast(room *Room, msg any) {
	for c := range room.clients {
		e.send(room, c, msg)
	}
}

// closeClient shuts the client's outbound channel exactly once. The engine
// is the only closer, so a plain flag is enough.
func (e *Engine) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (e *Engine) handleJoinRoom(req joinRoomRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	req.client.roomKey = req.roomKey
	room.clients[req.client] = struct{}{}

	e.send(room, req.client, JoinSuccessMessage{
		Type:    "joinSuccess",
		HasHost: room.hasHost(),
	})

	logf(e.cfg, "ROOMS: Connection %s joined %s", req.client.id, room.key)
}

func (e *Engine) handleSelectRole(req selectRoleRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)

	switch req.role {
	case RoleHost:
		if room.claimHost(req.client.id) == rejected {
			e.send(room, req.client, RoleRejectedMessage{
				Type: "roleRejected",
				Role: RoleHost,
			})
			return
		}
		e.confirmRole(room, req.client, RoleHost, hostDisplayName)
		e.broadcast(room, HostUpdateMessage{
			Type:    "hostUpdate",
			HasHost: true,
		})
		e.broadcast(room, NewChatMessage{
			Type:    "newMessage",
			Message: room.appendSystem(hostDisplayName + " joined the room."),
		})
		logf(e.cfg, "ROOMS: Host claimed for %s by %s", room.key, req.client.id)

	case RolePlayer:
		name := room.joinAsPlayer(req.client.id)
		e.confirmRole(room, req.client, RolePlayer, name)
		e.broadcast(room, NewChatMessage{
			Type:    "newMessage",
			Message: room.appendSystem(name + " joined the room."),
		})
		logf(e.cfg, "ROOMS: Player %q joined %s", name, room.key)
	}
}

// confirmRole acknowledges a role assignment and replays the full room state
// to the caller. The snapshot is taken before the join announcement lands,
// so the joiner's history is unmodified by the join itself.
func (e *Engine) confirmRole(room *Room, c *Client, role, name string) {
	question, clues, chat := room.stateSnapshot()

	e.send(room, c, RoleConfirmedMessage{
		Type: "roleConfirmed",
		Role: role,
	})
	e.send(room, c, GameStateSyncMessage{
		Type:        "gameStateSync",
		Question:    question,
		Clues:       clues,
		ChatHistory: chat,
		MyName:      name,
	})
}

func (e *Engine) handleUpdateQuestion(req updateQuestionRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if room.setQuestion(req.client.id, req.questionText) == rejected {
		return
	}
	e.broadcast(room, QuestionUpdatedMessage{
		Type:     "questionUpdated",
		Question: req.questionText,
	})
}

func (e *Engine) handleSendMessage(req sendMessageRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	msg, out := room.appendChat(req.client.id, req.message.Text)
	if out == rejected {
		return
	}
	e.broadcast(room, NewChatMessage{
		Type:    "newMessage",
		Message: msg,
	})
}

func (e *Engine) handleAddClue(req addClueRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if room.addClue(req.client.id, req.clueText) == rejected {
		return
	}
	e.broadcastClues(room)
}

func (e *Engine) handleDeleteClue(req deleteClueRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if room.deleteClue(req.client.id, req.clueID) == rejected {
		return
	}
	e.broadcastClues(room)
}

func (e *Engine) handleToggleHighlight(req toggleHighlightRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if room.toggleHighlight(req.client.id, req.clueID) == rejected {
		return
	}
	e.broadcastClues(room)
}

// broadcastClues re-sends the complete ordered clue list after every clue
// mutation; clients replace their copy wholesale.
func (e *Engine) broadcastClues(room *Room) {
	e.broadcast(room, CluesUpdatedMessage{
		Type:  "cluesUpdated",
		Clues: room.clues.snapshot(),
	})
}

func (e *Engine) handleAnnounceResult(req announceResultRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if room.announceResult(req.client.id) == rejected {
		return
	}
	e.broadcast(room, ResultAnnouncedMessage{
		Type:   "resultAnnounced",
		Result: req.result,
	})
}

func (e *Engine) handleResetGame(req resetGameRequest) {
	room := e.store.ResolveOrCreate(req.roomKey)
	if !room.isHost(req.client.id) {
		return
	}
	e.broadcast(room, GameResetMessage{Type: "gameReset"})
	e.store.Delete(room.key)
	logf(e.cfg, "ROOMS: Room %s reset by its host", room.key)
}

func (e *Engine) handleDisconnect(req disconnectRequest) {
	c := req.client

	// A departing host takes the whole room with it: no handoff, no grace.
	if room := e.store.FindByHost(c.id); room != nil {
		delete(room.clients, c)
		if name, ok := room.removePlayer(c.id); ok {
			e.broadcast(room, NewChatMessage{
				Type:    "newMessage",
				Message: room.appendSystem(name + " left the room."),
			})
		}
		e.broadcast(room, GameResetMessage{Type: "gameReset"})
		e.store.Delete(room.key)
		e.closeClient(c)
		logf(e.cfg, "ROOMS: Host left %s, room deleted", room.key)
		return
	}

	if room := e.store.Lookup(c.roomKey); room != nil {
		delete(room.clients, c)
		if name, ok := room.removePlayer(c.id); ok {
			e.broadcast(room, NewChatMessage{
				Type:    "newMessage",
				Message: room.appendSystem(name + " left the room."),
			})
			logf(e.cfg, "ROOMS: Player %q left %s", name, room.key)
		}
	}
	e.closeClient(c)
}
