// Cluebox Mystery Game
//
// One participant per room hosts a mystery: they publish a question, feed
// out an ordered list of clues, and eventually announce the result. Everyone
// else joins as a player, watches the board update live, and chats.
//
// Features:
// - WebSockets per room code: /mystery/:roomid and /mystery/:roomid/ws
// - Rooms are created lazily on first reference and live until the host
//   resets the game or disconnects
// - Exactly one host per room; a second claim is rejected
// - Host-only controls (question, clues, result, reset) enforced server-side
// - Players get random display names; chat sender names are server-assigned
// - Late joiners receive the full question/clue/chat history
// - Random 6-char room codes via crypto/rand
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// ClientMessage is the inbound wire envelope. Exactly one operation per
// message, selected by Type; unused fields stay empty.
type ClientMessage struct {
	Type         string   `json:"type"`
	RoomKey      string   `json:"roomKey,omitempty"`
	Role         string   `json:"role,omitempty"`         // selectRole
	QuestionText string   `json:"questionText,omitempty"` // updateQuestion
	MessageData  *Message `json:"messageData,omitempty"`  // sendMessage
	ClueText     string   `json:"clueText,omitempty"`     // addClue
	ClueID       string   `json:"clueId,omitempty"`       // deleteClue / toggleHighlightClue
	Result       string   `json:"result,omitempty"`       // announceResult
}

// JoinSuccessMessage acknowledges joinRoom to the caller only.
type JoinSuccessMessage struct {
	Type    string `json:"type"` // "joinSuccess"
	HasHost bool   `json:"hasHost"`
}

// GameStateSyncMessage replays the full room state to a caller that just
// selected a role.
type GameStateSyncMessage struct {
	Type        string    `json:"type"` // "gameStateSync"
	Question    string    `json:"question"`
	Clues       []Clue    `json:"clues"`
	ChatHistory []Message `json:"chatHistory"`
	MyName      string    `json:"myName"`
}

// RoleConfirmedMessage acknowledges a successful role selection.
type RoleConfirmedMessage struct {
	Type string `json:"type"` // "roleConfirmed"
	Role string `json:"role"` // "host" or "player"
}

// RoleRejectedMessage is the one failure the protocol surfaces: a host claim
// on a room that already has one.
type RoleRejectedMessage struct {
	Type string `json:"type"` // "roleRejected"
	Role string `json:"role"` // always "host"
}

// HostUpdateMessage tells the room whether a host is present.
type HostUpdateMessage struct {
	Type    string `json:"type"` // "hostUpdate"
	HasHost bool   `json:"hasHost"`
}

// QuestionUpdatedMessage carries the new prompt to the room.
type QuestionUpdatedMessage struct {
	Type     string `json:"type"` // "questionUpdated"
	Question string `json:"question"`
}

// NewChatMessage carries one chat entry (player, host, or system) to the room.
type NewChatMessage struct {
	Type    string  `json:"type"` // "newMessage"
	Message Message `json:"message"`
}

// CluesUpdatedMessage re-sends the complete ordered clue list.
type CluesUpdatedMessage struct {
	Type  string `json:"type"` // "cluesUpdated"
	Clues []Clue `json:"clues"`
}

// ResultAnnouncedMessage relays the host's announced result to the room.
type ResultAnnouncedMessage struct {
	Type   string `json:"type"` // "resultAnnounced"
	Result string `json:"result"`
}

// GameResetMessage tells the room its state is gone, either by explicit
// reset or because the host disconnected.
type GameResetMessage struct {
	Type string `json:"type"` // "gameReset"
}

// Client wraps one websocket connection. The id identifies the connection
// for host exclusivity and name assignment; identity is per-connection, so
// reconnecting mints a fresh one.
type Client struct {
	conn    *websocket.Conn
	send    chan any
	id      string
	roomKey string
	closed  bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newConnID generates a crypto-random connection identifier.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// newRoomCode generates a random shareable room code. No collision check:
// rooms are created lazily, so a colliding code simply lands in the
// existing room, same as typing in a shared code.
func newRoomCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, 6)
	buf := make([]byte, 12)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == 6 {
					return string(out)
				}
			}
		}
	}
}

// toRequest converts an inbound envelope into a typed engine request.
// Malformed envelopes (unknown type, missing room key or payload) are
// dropped here, before they reach the state machine.
func (m ClientMessage) toRequest(c *Client) (request, bool) {
	if m.RoomKey == "" {
		return nil, false
	}

	switch m.Type {
	case "joinRoom":
		return joinRoomRequest{client: c, roomKey: m.RoomKey}, true
	case "selectRole":
		if m.Role != RoleHost && m.Role != RolePlayer {
			return nil, false
		}
		return selectRoleRequest{client: c, roomKey: m.RoomKey, role: m.Role}, true
	case "updateQuestion":
		return updateQuestionRequest{client: c, roomKey: m.RoomKey, questionText: m.QuestionText}, true
	case "sendMessage":
		if m.MessageData == nil {
			return nil, false
		}
		return sendMessageRequest{client: c, roomKey: m.RoomKey, message: *m.MessageData}, true
	case "addClue":
		return addClueRequest{client: c, roomKey: m.RoomKey, clueText: m.ClueText}, true
	case "deleteClue":
		return deleteClueRequest{client: c, roomKey: m.RoomKey, clueID: m.ClueID}, true
	case "toggleHighlightClue":
		return toggleHighlightRequest{client: c, roomKey: m.RoomKey, clueID: m.ClueID}, true
	case "announceResult":
		return announceResultRequest{client: c, roomKey: m.RoomKey, result: m.Result}, true
	case "resetGame":
		return resetGameRequest{client: c, roomKey: m.RoomKey}, true
	default:
		return nil, false
	}
}

func (c *Client) readPump(e *Engine) {
	defer func() {
		e.requests <- disconnectRequest{client: c}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		req, ok := msg.toRequest(c)
		if !ok {
			continue
		}
		e.requests <- req
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// WebSocket handler; the room itself is addressed by the roomKey inside
// each envelope, the :roomid path segment only scopes the page.
func serveWSForEngine(cfg *Config, e *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("roomid") == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   newConnID(),
		}

		logf(cfg, "ROOMS: Connection %s from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(e)
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("roomid") == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed mystery/index.html
var indexHTML []byte

//go:embed mystery/app.css
var clueboxCSS []byte

//go:embed mystery/app.js
var clueboxJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(clueboxCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(clueboxJS)
	}
}

// redirectNewRoom handles GET /path by generating a new random room code
// and redirecting to /path/:roomid.
func redirectNewRoom(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := newRoomCode()
		logf(cfg, "ROOMS: Created room %s/%s", path, roomID)
		http.Redirect(w, r, path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerMysteryGame sets up routes so that:
//   - $path                  → redirects to new random room (6-char code)
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerMysteryGame(cfg *Config, path string, mux *httprouter.Router, e *Engine) {
	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, cfg.prefix+path))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:roomid", getIndexHandler(cfg))

	// Shared assets (no roomid in route)
	mux.GET(cfg.prefix+"/assets/mystery/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/mystery/app.js", getJsHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForEngine(cfg, e))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
