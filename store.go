package main

// RoomStore is the registry of live rooms, keyed by room code. It is owned
// by the engine goroutine, which serializes all access; nothing else may
// hold a *Room beyond a single event-handling step.
type RoomStore struct {
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*Room),
	}
}

// ResolveOrCreate returns the room for key, creating a fresh one on first
// reference. Rooms are never aged out; they live until Delete.
func (s *RoomStore) ResolveOrCreate(key string) *Room {
	if room, ok := s.rooms[key]; ok {
		return room
	}
	room := newRoom(key)
	s.rooms[key] = room
	return room
}

// Lookup returns the room for key, or nil if none exists. Unlike
// ResolveOrCreate it never materializes a room, so teardown paths can't
// accidentally resurrect one.
func (s *RoomStore) Lookup(key string) *Room {
	return s.rooms[key]
}

// Delete discards the room and all of its state. A later reference to the
// same key starts from scratch with no memory of prior contents.
func (s *RoomStore) Delete(key string) {
	delete(s.rooms, key)
}

// FindByHost locates the room whose host role is held by connID, or nil. A
// connection holds at most one host role at a time.
func (s *RoomStore) FindByHost(connID string) *Room {
	for _, room := range s.rooms {
		if room.isHost(connID) {
			return room
		}
	}
	return nil
}

func (s *RoomStore) Len() int {
	return len(s.rooms)
}
