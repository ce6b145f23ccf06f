package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/couchsync/server/internal/repository/connection"
)

// repo tracks which websocket connection belongs to which user. Each
// user has at most one live connection.
type repo struct {
	byConn map[*websocket.Conn]string
	byUser map[string]*websocket.Conn
	mu     sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		byConn: make(map[*websocket.Conn]string),
		byUser: make(map[string]*websocket.Conn),
	}
}

func (r *repo) Add(conn *websocket.Conn, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[conn] != "" || r.byUser[userId] != nil {
		return connection.ErrAlreadyExists
	}

	r.byConn[conn] = userId
	r.byUser[userId] = conn

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userId, ok := r.byConn[conn]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.byConn, conn)
	delete(r.byUser, userId)

	return nil
}

func (r *repo) RemoveByUserId(userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byUser[userId]
	if !ok {
		return connection.ErrNotFound
	}
	conn.Close()

	delete(r.byConn, conn)
	delete(r.byUser, userId)

	return nil
}

func (r *repo) GetUserId(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userId, ok := r.byConn[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return userId, nil
}

func (r *repo) GetConn(userId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byUser[userId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}
