/*
File Name:  ws.go

WebSocket event stream bridging node.Node's Subscribe* channels to a
browser/UI client, grounded on the teacher's webapi/Search.go
apiSearchResultStream: upgrade, defer close, loop writing JSON frames
until the connection errors out.
*/

package webapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meshchat/core/node"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans a single Node's event streams out to any number of
// connected websocket clients.
type hub struct {
	node *node.Node
}

func newHub(n *node.Node) *hub {
	return &hub{node: n}
}

type wsFrame struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// handleWS upgrades the request and relays every incoming message,
// peer event, status change and log line to the client as a JSON
// frame, until the connection errors out; stopping the node does not
// end the stream.
//
// Request:  GET /ws
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	messages := h.node.SubscribeMessages()
	peers := h.node.SubscribePeers()
	statuses := h.node.SubscribeStatus()
	logs := h.node.SubscribeLogs()

	writes := make(chan wsFrame, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case m, ok := <-messages:
				if !ok {
					return
				}
				writes <- wsFrame{Kind: "message", Data: m}
			case p, ok := <-peers:
				if !ok {
					return
				}
				writes <- wsFrame{Kind: "peer", Data: p}
			case s, ok := <-statuses:
				if !ok {
					return
				}
				writes <- wsFrame{Kind: "status", Data: s.String()}
			case l, ok := <-logs:
				if !ok {
					return
				}
				writes <- wsFrame{Kind: "log", Data: l}
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case frame := <-writes:
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
