package node

import (
	"strings"
	"testing"
	"time"

	"github.com/meshchat/core/protocol"
	"github.com/meshchat/core/transport"
	"github.com/meshchat/core/transport/fake"
)

const scenarioTimeout = 2 * time.Second

// testConfig returns a Config with long timer intervals so the
// coordinator's periodic announce/GC timers never fire mid-test;
// each scenario drives the coordinator explicitly instead.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AnnounceInterval = Duration{Seconds: 3600}
	cfg.GCInterval = Duration{Seconds: 3600}
	return cfg
}

func newTestNode(t *testing.T, driver transport.Driver) *Node {
	t.Helper()
	n, err := New(testConfig(), driver)
	if err != nil {
		t.Fatalf("`New`: %v", err)
	}
	return n
}

func startNode(t *testing.T, n *Node, peerID, nickname string) {
	t.Helper()
	if err := n.Start(peerID, nickname); err != nil {
		t.Fatalf("`Start`(%q): %v", peerID, err)
	}
}

func expectMessage(t *testing.T, ch <-chan IncomingMessage) IncomingMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(scenarioTimeout):
		t.Fatalf("timed out waiting for an incoming message")
		return IncomingMessage{}
	}
}

func expectNoMessage(t *testing.T, ch <-chan IncomingMessage) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message delivered: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestScenarioS1BroadcastRoundTrip mirrors spec.md S1: A broadcasts
// "hi" and B's incoming-message stream emits exactly one matching event.
func TestScenarioS1BroadcastRoundTrip(t *testing.T) {
	mesh := fake.NewMesh()

	b := newTestNode(t, fake.NewDriver(mesh, "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	a := newTestNode(t, fake.NewDriver(mesh, "AAAAAAAA"))
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	ok, err := a.SendBroadcast("hi")
	if !ok {
		t.Fatalf("`SendBroadcast`: ok=false err=%v", err)
	}

	msg := expectMessage(t, messages)
	if msg.Content != "hi" || msg.SenderNickname != "Alice" || msg.SenderID != "AAAAAAAA" ||
		msg.IsPrivate || msg.Channel != "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

// TestScenarioS2PrivateEncryption mirrors spec.md S2: after a session
// is established, A's private message to B is delivered to B; a third
// node C that also hears the packet delivers nothing, and the wire form
// is signed and does not carry the plaintext.
func TestScenarioS2PrivateEncryption(t *testing.T) {
	mesh := fake.NewMesh()

	b := newTestNode(t, fake.NewDriver(mesh, "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()

	c := newTestNode(t, fake.NewDriver(mesh, "CCCCCCCC"))
	startNode(t, c, "CCCCCCCC", "Carol")
	defer c.Stop()
	cMessages := c.SubscribeMessages()

	observed := make(chan []byte, 16)
	observer := fake.NewDriver(mesh, "OBSERVER")
	if err := observer.Start(transport.Handlers{
		OnBytes: func(peerID string, data []byte) { observed <- data },
	}); err != nil {
		t.Fatalf("observer Start: %v", err)
	}

	a := newTestNode(t, fake.NewDriver(mesh, "AAAAAAAA"))
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	bMessages := b.SubscribeMessages()

	// Drain the ANNOUNCE/KEY_EXCHANGE traffic the handshake generates
	// until the session with B is up, then send the private message.
	waitForSession(t, a, "BBBBBBBB")

	ok, err := a.SendPrivate("BBBBBBBB", "secret")
	if !ok {
		t.Fatalf("`SendPrivate`: ok=false err=%v", err)
	}

	msg := expectMessage(t, bMessages)
	if msg.Content != "secret" || !msg.IsPrivate {
		t.Fatalf("unexpected message at B: %+v", msg)
	}

	// C never surfaces the private payload as a message (it is not the
	// addressed recipient and has no key for it).
	expectNoMessage(t, cMessages)

	// Inspect the captured wire bytes for the MESSAGE packet addressed
	// to B: recipient set, signed, and payload not the ASCII plaintext.
	found := false
	deadline := time.After(scenarioTimeout)
	for !found {
		select {
		case raw := <-observed:
			p, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			if p.Type != protocol.TypeMessage || !p.HasRecipient {
				continue
			}
			if p.RecipientID != ([8]byte{'B', 'B', 'B', 'B', 'B', 'B', 'B', 'B'}) {
				continue
			}
			found = true
			if !p.HasSignature {
				t.Fatalf("private message packet has no signature")
			}
			if string(p.Payload) == "secret" {
				t.Fatalf("private message payload is plaintext on the wire")
			}
		case <-deadline:
			t.Fatalf("never observed the private MESSAGE packet on the wire")
		}
	}
}

// waitForSession polls until n has an established symmetric key with
// peerID, while the coordinator loops finish the key exchange that
// peer discovery started.
func waitForSession(t *testing.T, n *Node, peerID string) {
	t.Helper()
	deadline := time.Now().Add(scenarioTimeout)
	for time.Now().Before(deadline) {
		if n.keys.HasSession(peerID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session with %s never established", peerID)
}

// TestScenarioS3TTLFlood mirrors spec.md S3: a chain A-R1-R2-B, with A
// and B out of direct range, relays a broadcast through R1 and R2. B
// must receive the message exactly once, and no copy on the wire may
// carry a TTL above the original 7.
func TestScenarioS3TTLFlood(t *testing.T) {
	mesh := fake.NewMesh()

	// Only adjacent links in the chain are open.
	for _, pair := range [][2]string{
		{"AAAAAAAA", "BBBBBBBB"}, {"BBBBBBBB", "AAAAAAAA"},
		{"AAAAAAAA", "R2222222"}, {"R2222222", "AAAAAAAA"},
		{"R1111111", "BBBBBBBB"}, {"BBBBBBBB", "R1111111"},
	} {
		mesh.Block(pair[0], pair[1])
	}

	a := newTestNode(t, fake.NewDriver(mesh, "AAAAAAAA"))
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	r1 := newTestNode(t, fake.NewDriver(mesh, "R1111111"))
	startNode(t, r1, "R1111111", "relay1")
	defer r1.Stop()

	r2 := newTestNode(t, fake.NewDriver(mesh, "R2222222"))
	startNode(t, r2, "R2222222", "relay2")
	defer r2.Stop()

	b := newTestNode(t, fake.NewDriver(mesh, "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()

	observed := make(chan *protocol.Packet, 64)
	observer := fake.NewDriver(mesh, "OBSERVER")
	observer.Start(transport.Handlers{
		OnBytes: func(peerID string, data []byte) {
			if p, err := protocol.Decode(data); err == nil && p.Type == protocol.TypeMessage {
				observed <- p
			}
		},
	})

	bMessages := b.SubscribeMessages()

	ok, err := a.SendBroadcast("ping")
	if !ok {
		t.Fatalf("`SendBroadcast`: ok=false err=%v", err)
	}

	msg := expectMessage(t, bMessages)
	if msg.Content != "ping" {
		t.Fatalf("unexpected message at B: %+v", msg)
	}
	expectNoMessage(t, bMessages)

	// Collect the distinct TTL values observed for this flood and
	// assert the original TTL 7 was seen and no copy exceeds it
	// (spec §8 property 8 TTL monotonicity).
	seenTTL := map[uint8]bool{}
	deadline := time.After(300 * time.Millisecond)
collect:
	for {
		select {
		case p := <-observed:
			seenTTL[p.TTL] = true
		case <-deadline:
			break collect
		}
	}
	if !seenTTL[7] {
		t.Fatalf("never observed the original TTL=7 on the wire: %v", seenTTL)
	}
	for ttl := range seenTTL {
		if ttl > 7 {
			t.Fatalf("observed a TTL greater than the original: %d", ttl)
		}
	}
}

// TestScenarioS4DuplicateSuppression mirrors spec.md S4: a packet that
// reaches B via two independent relay paths is delivered exactly once.
func TestScenarioS4DuplicateSuppression(t *testing.T) {
	b := newTestNode(t, fake.NewDriver(fake.NewMesh(), "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	record := &protocol.Record{
		TimestampMs:    1,
		ID:             "dup-1",
		SenderNickname: "Alice",
		Content:        []byte("hi"),
	}
	recordBytes, err := protocol.EncodeRecord(record)
	if err != nil {
		t.Fatalf("`EncodeRecord`: %v", err)
	}

	p := &protocol.Packet{
		Type:        protocol.TypeMessage,
		TTL:         5,
		TimestampMs: 1,
		SenderID:    idToBytes("AAAAAAAA"),
		Payload:     recordBytes,
	}
	wire, err := protocol.Encode(p)
	if err != nil {
		t.Fatalf("`Encode`: %v", err)
	}

	// Two independent relay paths deliver the identical wire bytes.
	b.onBytes("R1111111", wire)
	b.onBytes("R2222222", append([]byte(nil), wire...))

	msg := expectMessage(t, messages)
	if msg.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	expectNoMessage(t, messages)

	// One entry for the duplicated packet, plus the one B admitted for
	// its own startup ANNOUNCE when it emitted it.
	if b.dedup.Len() != 2 {
		t.Fatalf("dedup set has %d entries, want 2 (own ANNOUNCE + the duplicated packet)", b.dedup.Len())
	}
}

// TestScenarioS5StoreAndForward mirrors spec.md S5: a queued favorite
// message for an offline peer is delivered once that peer re-announces,
// in FIFO order, and the queue is empty afterward.
func TestScenarioS5StoreAndForward(t *testing.T) {
	mesh := fake.NewMesh()

	a := newTestNode(t, fake.NewDriver(mesh, "AAAAAAAA"))
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	c := newTestNode(t, fake.NewDriver(mesh, "CCCCCCCC"))
	startNode(t, c, "CCCCCCCC", "Carol")
	defer c.Stop()
	cMessages := c.SubscribeMessages()

	// C goes offline.
	if err := c.transport.Stop(); err != nil {
		t.Fatalf("stopping C's transport: %v", err)
	}

	ok, err := a.QueueForDelivery("CCCCCCCC", "queued message", true)
	if !ok {
		t.Fatalf("`QueueForDelivery`: ok=false err=%v", err)
	}

	// C re-announces: restart its transport and re-register with the
	// mesh, then post the announce timer event directly, standing in
	// for spec.md's "C re-announces 10s later".
	if err := c.transport.Start(transport.Handlers{
		OnPeer:     c.onPeer,
		OnBytes:    c.onBytes,
		OnPeerLost: c.onPeerLost,
	}); err != nil {
		t.Fatalf("restarting C's transport: %v", err)
	}
	c.postEvent(event{kind: evTimerAnnounce})

	msg := expectMessage(t, cMessages)
	if msg.Content != "queued message" {
		t.Fatalf("unexpected delivered message: %+v", msg)
	}

	deadline := time.Now().Add(scenarioTimeout)
	for a.fwd.Pending("CCCCCCCC") {
		if time.Now().After(deadline) {
			t.Fatalf("forward queue for C never drained")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestScenarioS6FragmentReassembly mirrors spec.md S6: a payload split
// into START/CONTINUE/END fragments reassembles into exactly one
// delivered MESSAGE; a dropped middle fragment yields no delivery.
func TestScenarioS6FragmentReassembly(t *testing.T) {
	b := newTestNode(t, fake.NewDriver(fake.NewMesh(), "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	record := &protocol.Record{
		TimestampMs:    1,
		ID:             "frag-msg",
		SenderNickname: "Alice",
		Content:        make([]byte, 1500),
	}
	for i := range record.Content {
		record.Content[i] = byte(i)
	}
	recordBytes, err := protocol.EncodeRecord(record)
	if err != nil {
		t.Fatalf("`EncodeRecord`: %v", err)
	}

	chunkSize := 512
	var chunks [][]byte
	for off := 0; off < len(recordBytes); off += chunkSize {
		end := off + chunkSize
		if end > len(recordBytes) {
			end = len(recordBytes)
		}
		chunks = append(chunks, recordBytes[off:end])
	}
	if len(chunks) < 3 {
		t.Fatalf("test setup produced %d chunks, want at least 3", len(chunks))
	}

	sender := idToBytes("AAAAAAAA")
	emitFragment := func(typ uint8, index int, data []byte) {
		envelope := encodeFragmentEnvelope("frag-msg", index, data)
		p := &protocol.Packet{
			Type:        typ,
			TTL:         5,
			TimestampMs: uint64(index + 1),
			SenderID:    sender,
			Payload:     envelope,
		}
		wire, err := protocol.Encode(p)
		if err != nil {
			t.Fatalf("`Encode` fragment %d: %v", index, err)
		}
		b.onBytes("relay1", wire)
	}

	emitFragment(protocol.TypeFragmentStart, 0, chunks[0])
	for i := 1; i < len(chunks)-1; i++ {
		emitFragment(protocol.TypeFragmentContinue, i, chunks[i])
	}
	emitFragment(protocol.TypeFragmentEnd, len(chunks)-1, chunks[len(chunks)-1])

	msg := expectMessage(t, messages)
	if msg.SenderNickname != "Alice" || len(msg.Content) != 1500 {
		t.Fatalf("unexpected reassembled message: sender=%q len=%d", msg.SenderNickname, len(msg.Content))
	}
}

// TestScenarioS6FragmentDroppedMiddle checks a missing middle fragment
// yields no delivery and the buffer later expires.
func TestScenarioS6FragmentDroppedMiddle(t *testing.T) {
	b := newTestNode(t, fake.NewDriver(fake.NewMesh(), "BBBBBBBB"))
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	sender := idToBytes("AAAAAAAA")
	send := func(typ uint8, index int, data []byte) {
		envelope := encodeFragmentEnvelope("frag-msg-2", index, data)
		p := &protocol.Packet{
			Type:        typ,
			TTL:         5,
			TimestampMs: uint64(index + 1),
			SenderID:    sender,
			Payload:     envelope,
		}
		wire, err := protocol.Encode(p)
		if err != nil {
			t.Fatalf("`Encode`: %v", err)
		}
		b.onBytes("relay1", wire)
	}

	send(protocol.TypeFragmentStart, 0, []byte("AAA"))
	// index 1 (CONTINUE) dropped
	send(protocol.TypeFragmentEnd, 2, []byte("CCC"))

	expectNoMessage(t, messages)
	if b.reasm.Len() != 1 {
		t.Fatalf("reassembler has %d in-flight sets, want 1", b.reasm.Len())
	}

	b.reasm.GC(time.Now().Add(2 * time.Minute))
	if b.reasm.Len() != 0 {
		t.Fatalf("reassembler did not expire the incomplete set")
	}
}

// fragmentingConfig returns a Config with an MTU small enough that
// SendBroadcast/SendPrivate's own fragmentation path (node/fragment.go
// sendFragmented) is exercised by a realistically sized message,
// rather than hand-crafted fragment packets.
func fragmentingConfig() Config {
	cfg := testConfig()
	cfg.MTU = 32
	return cfg
}

// TestFragmentedBroadcastEndToEnd drives a real SendBroadcast whose
// record exceeds the MTU through the actual sendFragmented/handleFragment
// path end to end, including signature verification of the reassembled
// packet -- catches the case where a fragment's own per-packet signature
// does not match what the reassembled MESSAGE packet needs.
func TestFragmentedBroadcastEndToEnd(t *testing.T) {
	mesh := fake.NewMesh()
	cfg := fragmentingConfig()

	b, err := New(cfg, fake.NewDriver(mesh, "BBBBBBBB"))
	if err != nil {
		t.Fatalf("`New`: %v", err)
	}
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	a, err := New(cfg, fake.NewDriver(mesh, "AAAAAAAA"))
	if err != nil {
		t.Fatalf("`New`: %v", err)
	}
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	waitForSession(t, a, "BBBBBBBB")

	longText := strings.Repeat("hello mesh chat ", 40)
	ok, err := a.SendBroadcast(longText)
	if !ok {
		t.Fatalf("`SendBroadcast`: ok=false err=%v", err)
	}

	msg := expectMessage(t, messages)
	if msg.Content != longText || msg.SenderNickname != "Alice" || msg.IsPrivate {
		t.Fatalf("unexpected reassembled broadcast: sender=%q len=%d private=%v",
			msg.SenderNickname, len(msg.Content), msg.IsPrivate)
	}
}

// TestFragmentedPrivateEndToEnd is TestFragmentedBroadcastEndToEnd's
// private-message counterpart: the reassembled packet must pass
// deliverPrivateMessage's unconditional signature check, which fails
// closed on any mismatch, so this is the regression test for the
// fragment-signature bug.
func TestFragmentedPrivateEndToEnd(t *testing.T) {
	mesh := fake.NewMesh()
	cfg := fragmentingConfig()

	b, err := New(cfg, fake.NewDriver(mesh, "BBBBBBBB"))
	if err != nil {
		t.Fatalf("`New`: %v", err)
	}
	startNode(t, b, "BBBBBBBB", "Bob")
	defer b.Stop()
	messages := b.SubscribeMessages()

	a, err := New(cfg, fake.NewDriver(mesh, "AAAAAAAA"))
	if err != nil {
		t.Fatalf("`New`: %v", err)
	}
	startNode(t, a, "AAAAAAAA", "Alice")
	defer a.Stop()

	waitForSession(t, a, "BBBBBBBB")

	longText := strings.Repeat("secret mesh payload ", 30)
	ok, err := a.SendPrivate("BBBBBBBB", longText)
	if !ok {
		t.Fatalf("`SendPrivate`: ok=false err=%v", err)
	}

	msg := expectMessage(t, messages)
	if msg.Content != longText || !msg.IsPrivate {
		t.Fatalf("unexpected reassembled private message: len=%d private=%v", len(msg.Content), msg.IsPrivate)
	}
}
