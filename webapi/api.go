/*
File Name:  api.go

Local HTTP/WebSocket bridge exposing node.Node's facade to a host UI
process (SPEC_FULL.md §19), grounded on the teacher's webapi/API.go
route-registration shape (gorilla/mux router, one handler per
operation, EncodeJSON/DecodeJSON helpers) -- narrowed from Peernet's
blockchain/search/download surface down to the mesh chat facade.
*/

package webapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/meshchat/core/node"
)

var errNoRequestBody = errors.New("webapi: no request body")

// Instance is the webapi bridge for one Node.
type Instance struct {
	Node   *node.Node
	Router *mux.Router

	hub *hub
}

// Start registers routes and begins listening on every address in
// listenAddresses (mirrors the teacher's Start(Backend, ListenAddresses, ...)
// multi-listener shape, minus TLS/API-key, which this local-only bridge
// does not need).
func Start(n *node.Node, listenAddresses []string) *Instance {
	api := &Instance{
		Node:   n,
		Router: mux.NewRouter(),
		hub:    newHub(n),
	}

	api.Router.HandleFunc("/status", api.handleStatus).Methods("GET")
	api.Router.HandleFunc("/peers", api.handlePeers).Methods("GET")
	api.Router.HandleFunc("/send/broadcast", api.handleSendBroadcast).Methods("POST")
	api.Router.HandleFunc("/send/private", api.handleSendPrivate).Methods("POST")
	api.Router.HandleFunc("/send/channel", api.handleSendChannel).Methods("POST")
	api.Router.HandleFunc("/channel/join", api.handleChannelJoin).Methods("POST")
	api.Router.HandleFunc("/channel/leave", api.handleChannelLeave).Methods("POST")
	api.Router.HandleFunc("/ws", api.hub.handleWS).Methods("GET")

	for _, listen := range listenAddresses {
		go startServer(listen, api.Router)
	}

	return api
}

func startServer(listen string, handler http.Handler) {
	server := &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	server.ListenAndServe()
}

func encodeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, data interface{}) error {
	if r.Body == nil {
		http.Error(w, "", http.StatusBadRequest)
		return errNoRequestBody
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return err
	}
	return nil
}

type statusResponse struct {
	Status     string `json:"status"`
	PeerCount  int    `json:"peerCount"`
	ID         string `json:"id"`
	Connected  bool   `json:"connected"`
}

func (api *Instance) handleStatus(w http.ResponseWriter, r *http.Request) {
	peers := api.Node.Peers()
	encodeJSON(w, statusResponse{
		Status:    api.Node.Status().String(),
		PeerCount: len(peers),
		Connected: len(peers) > 0,
	})
}

type peerResponse struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Online   bool   `json:"online"`
	Favorite bool   `json:"favorite"`
}

func (api *Instance) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := api.Node.Peers()
	out := make([]peerResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerResponse{ID: p.ID, Nickname: p.Nickname, Online: p.Online, Favorite: p.Favorite})
	}
	encodeJSON(w, out)
}

type sendResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeSendResult(w http.ResponseWriter, ok bool, err error) {
	resp := sendResult{OK: ok}
	if err != nil {
		resp.Error = err.Error()
	}
	encodeJSON(w, resp)
}

type broadcastRequest struct {
	Text string `json:"text"`
}

func (api *Instance) handleSendBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if decodeJSON(w, r, &req) != nil {
		return
	}
	ok, err := api.Node.SendBroadcast(req.Text)
	writeSendResult(w, ok, err)
}

type privateRequest struct {
	PeerID string `json:"peerId"`
	Text   string `json:"text"`
}

func (api *Instance) handleSendPrivate(w http.ResponseWriter, r *http.Request) {
	var req privateRequest
	if decodeJSON(w, r, &req) != nil {
		return
	}
	ok, err := api.Node.SendPrivate(req.PeerID, req.Text)
	writeSendResult(w, ok, err)
}

type channelRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (api *Instance) handleSendChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if decodeJSON(w, r, &req) != nil {
		return
	}
	ok, err := api.Node.SendChannel(req.Name, req.Text)
	writeSendResult(w, ok, err)
}

type channelNameRequest struct {
	Name string `json:"name"`
}

func (api *Instance) handleChannelJoin(w http.ResponseWriter, r *http.Request) {
	var req channelNameRequest
	if decodeJSON(w, r, &req) != nil {
		return
	}
	err := api.Node.JoinChannel(req.Name)
	writeSendResult(w, err == nil, err)
}

func (api *Instance) handleChannelLeave(w http.ResponseWriter, r *http.Request) {
	var req channelNameRequest
	if decodeJSON(w, r, &req) != nil {
		return
	}
	err := api.Node.LeaveChannel(req.Name)
	writeSendResult(w, err == nil, err)
}
