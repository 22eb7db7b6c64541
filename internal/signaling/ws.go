package signaling

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/util"
)

const (
	wsReadTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler serves the WebSocket variant of the offer endpoint: exactly one
// offer message in, one answer or error message out, then close.
type wsHandler struct {
	endpoint *Endpoint
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	if h.endpoint.maxBytes > 0 {
		conn.SetReadLimit(h.endpoint.maxBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		util.LogDebug("ws %s: read failed: %v", r.RemoteAddr, err)
		return
	}

	reply := h.exchange(r, data)

	out, err := protocol.EncodeMessage(reply)
	if err != nil {
		util.LogError("ws %s: encode reply: %v", r.RemoteAddr, err)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
		util.LogDebug("ws %s: write failed: %v", r.RemoteAddr, err)
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func (h *wsHandler) exchange(r *http.Request, data []byte) protocol.Message {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		return errorMessage(failure(err))
	}

	switch msg.Type {
	case protocol.MsgTypeOffer:
		resp := h.endpoint.Respond(r.Context(), msg.SDP)
		if resp.Failed() {
			return errorMessage(resp)
		}
		return protocol.Message{Type: protocol.MsgTypeAnswer, SDP: resp.Body}

	case protocol.MsgTypeCandidate:
		return protocol.Message{Type: protocol.MsgTypeError, Error: "trickle candidates are not accepted; send a fully gathered offer"}

	default:
		return protocol.Message{Type: protocol.MsgTypeError, Error: "expected an offer, got " + string(msg.Type)}
	}
}

func errorMessage(resp Response) protocol.Message {
	return protocol.Message{Type: protocol.MsgTypeError, Error: resp.Body}
}
