package pages

import (
	"context"
	"net/http"
	"sync"

	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/gorilla/websocket"
)

const reloadMessage string = "reload"

type liveReloader struct {
	sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	utilities.Logger
}

func newLiveReloader(logger utilities.Logger) *liveReloader {
	return &liveReloader{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			//debug only, pages are served from the same host
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Logger: logger,
	}
}

func (l *liveReloader) Handler(writer http.ResponseWriter, request *http.Request) {
	conn, err := l.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		l.Error(request.Context(), "error while upgrading reload connection: %s", err)
		return
	}
	l.Lock()
	l.clients[conn] = struct{}{}
	l.Unlock()
	go func() {
		defer l.remove(conn)

		//the browser never writes, but reading is the only way to
		// notice that it went away
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func (l *liveReloader) remove(conn *websocket.Conn) {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.clients[conn]; ok {
		delete(l.clients, conn)
		_ = conn.Close()
	}
}

func (l *liveReloader) Broadcast() {
	l.Lock()
	defer l.Unlock()

	for conn := range l.clients {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			l.Debug(context.Background(), "dropping reload client: %s", err)
			delete(l.clients, conn)
			_ = conn.Close()
		}
	}
}

func (l *liveReloader) Close() {
	l.Lock()
	defer l.Unlock()

	for conn := range l.clients {
		_ = conn.Close()
		delete(l.clients, conn)
	}
}
