/*
File Name:  node.go

Node is the mesh coordinator (spec §4.5): a value owning all mutable
state, replacing the teacher's process-wide Backend singleton (Design
Notes "Singleton 'service' idiom" -- grounded on Peernet.go's
Init/Connect split for the two-phase New/Start lifecycle, and
Network.go's terminateSignal-channel idiom for Stop). Tests construct
independent Nodes against independent transport.Driver instances (see
transport/fake).
*/

package node

import (
	"sync"
	"time"

	"github.com/meshchat/core/crypto"
	"github.com/meshchat/core/forward"
	"github.com/meshchat/core/peer"
	"github.com/meshchat/core/relay"
	"github.com/meshchat/core/store"
	"github.com/meshchat/core/transport"

	"github.com/sirupsen/logrus"
)

// Node is one mesh chat participant.
type Node struct {
	cfg Config

	mu       sync.RWMutex
	status   Status
	id       [8]byte
	idStr    string
	nickname string

	identity *crypto.Identity
	keys     *crypto.KeyStore

	peers *peer.Table
	dedup *relay.DedupSet
	reasm *relay.Reassembler
	fwd   *forward.Buffer

	blocklist *Blocklist
	favorites *Favorites

	transport transport.Driver
	log       *logrus.Entry

	channelsMu sync.Mutex
	channels   map[string]bool

	exchangeMu   sync.Mutex
	exchangeSeen map[string]bool

	events chan event
	stopCh chan struct{}
	doneCh chan struct{}

	subMu       sync.Mutex
	messageSubs []chan<- IncomingMessage
	peerSubs    []chan<- PeerEvent
	statusSubs  []chan<- Status
	logSubs     []chan<- string
}

// New constructs a Node. The transport driver must not be started yet;
// Start() starts it. Persistent backing stores (blocklist, favorites)
// are opened here, per cfg, so they survive across Start/Stop cycles.
func New(cfg Config, driver transport.Driver) (*Node, error) {
	blocklistStore, err := openBackingStore(cfg.BlocklistPath)
	if err != nil {
		return nil, err
	}
	favoritesStore, err := openBackingStore(cfg.FavoritesPath)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:          cfg,
		status:       Stopped,
		peers:        peer.NewTableWithWindow(time.Duration(cfg.PeerEvictionWindow.Seconds) * time.Second),
		dedup:        relay.NewDedupSet(cfg.DedupCapacity, time.Duration(cfg.DedupRetention.Seconds)*time.Second),
		reasm:        relay.NewReassemblerWithExpiry(time.Duration(cfg.FragmentExpiry.Seconds) * time.Second),
		fwd:          forward.NewBuffer(nil, favoritesStore),
		blocklist:    newBlocklist(blocklistStore),
		favorites:    newFavorites(favoritesStore),
		transport:    driver,
		channels:     make(map[string]bool),
		exchangeSeen: make(map[string]bool),
	}
	n.log = newLogger(n)

	return n, nil
}

func openBackingStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPogrebStore(path)
}

// Start brings the node online under the given peer id and nickname
// (spec §6.4 start(peer_id, nickname?)). peerID must be 1 to 8 bytes;
// a shorter id is zero-padded to 8 bytes on the wire per spec §3.
func (n *Node) Start(peerID string, nickname string) error {
	if len(peerID) == 0 || len(peerID) > 8 {
		return ErrInvalidPeer
	}

	n.mu.Lock()
	if n.status != Stopped {
		n.mu.Unlock()
		return ErrNotInitialized
	}
	n.setStatusLocked(Initializing)
	n.idStr = peerID
	n.id = idToBytes(peerID)
	n.nickname = nickname
	n.log = n.log.WithField("peer_id", peerID)
	n.mu.Unlock()
	n.publishStatus(Initializing)

	identity, err := crypto.NewIdentity()
	if err != nil {
		n.transitionTo(Error)
		return err
	}
	n.identity = identity
	n.keys = crypto.NewKeyStore(identity)

	n.events = make(chan event, 256)
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	if err := n.transport.Start(transport.Handlers{
		OnPeer:     n.onPeer,
		OnBytes:    n.onBytes,
		OnPeerLost: n.onPeerLost,
	}); err != nil {
		n.transitionTo(Error)
		return ErrPermissionDenied
	}

	go n.loop()
	go n.runTimer(evTimerAnnounce, time.Duration(n.cfg.AnnounceInterval.Seconds)*time.Second)
	go n.runTimer(evTimerGC, time.Duration(n.cfg.GCInterval.Seconds)*time.Second)

	n.transitionTo(Running)
	n.postEvent(event{kind: evTimerAnnounce})

	return nil
}

// Stop tears the node down (spec §5 Cancellation): timers cancel, the
// send queue drains, the session key is wiped, peer table and dedup
// set clear. In-flight decrypts are allowed to finish but their
// deliveries are suppressed once stopCh is closed.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.status != Running && n.status != Error {
		n.mu.Unlock()
		return ErrNotRunning
	}
	n.mu.Unlock()

	close(n.stopCh)
	<-n.doneCh

	n.transport.Stop()

	if n.identity != nil {
		n.identity.Wipe()
	}
	n.peers = peer.NewTableWithWindow(time.Duration(n.cfg.PeerEvictionWindow.Seconds) * time.Second)
	n.dedup.Clear()

	n.transitionTo(Stopped)
	return nil
}

func (n *Node) transitionTo(s Status) {
	n.mu.Lock()
	n.setStatusLocked(s)
	n.mu.Unlock()
	n.publishStatus(s)
}

func (n *Node) setStatusLocked(s Status) {
	if !validTransition(n.status, s) {
		return
	}
	n.status = s
}

// Status returns the node's current lifecycle status.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

func (n *Node) runTimer(kind eventKind, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.postEvent(event{kind: kind})
		}
	}
}

// postEvent hands an event to the loop without blocking the caller
// (transport callbacks and timers must never stall -- spec §5
// "no operation may hold the loop for more than a few ms").
func (n *Node) postEvent(e event) {
	select {
	case n.events <- e:
	default:
		n.log.WithField("kind", e.kind).Warn("event queue full, dropping event")
	}
}

func idToBytes(id string) [8]byte {
	var out [8]byte
	copy(out[:], id)
	return out
}

func bytesToID(b [8]byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
