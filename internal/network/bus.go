package network

import "sync"

// broadcastBus is the in-memory stand-in for the distributed data store plus
// direct delivery. Authenticated payloads are retained until removed, so late
// subscribers can replay them the way a store-backed network would.
type broadcastBus struct {
	mu       sync.Mutex
	retained map[string]AuthenticatedPayload
	nodes    map[*Node]struct{}
	mailbox  map[string][]ConfidentialEnvelope
}

var globalBus = newBus()

func newBus() *broadcastBus {
	return &broadcastBus{
		retained: make(map[string]AuthenticatedPayload),
		nodes:    make(map[*Node]struct{}),
		mailbox:  make(map[string][]ConfidentialEnvelope),
	}
}

func (b *broadcastBus) attach(n *Node) {
	b.mu.Lock()
	b.nodes[n] = struct{}{}
	recipients := n.registeredRecipients()
	pending := make([]ConfidentialEnvelope, 0)
	for _, r := range recipients {
		pending = append(pending, b.mailbox[r]...)
		delete(b.mailbox, r)
	}
	b.mu.Unlock()

	for _, env := range pending {
		n.deliverConfidential(env)
	}
}

func (b *broadcastBus) detach(n *Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, n)
}

func (b *broadcastBus) add(payload AuthenticatedPayload) {
	b.mu.Lock()
	if _, exists := b.retained[payload.ID()]; exists {
		b.mu.Unlock()
		return
	}
	b.retained[payload.ID()] = payload
	nodes := b.subscribersLocked()
	b.mu.Unlock()

	for _, n := range nodes {
		n.deliverDataAdded(payload)
	}
}

func (b *broadcastBus) remove(payload AuthenticatedPayload, removerPubKey []byte) error {
	b.mu.Lock()
	existing, ok := b.retained[payload.ID()]
	if !ok {
		b.mu.Unlock()
		return ErrPayloadNotFound
	}
	if string(existing.PubKey) != string(removerPubKey) {
		b.mu.Unlock()
		return ErrNotPayloadOwner
	}
	delete(b.retained, payload.ID())
	nodes := b.subscribersLocked()
	b.mu.Unlock()

	for _, n := range nodes {
		n.deliverDataRemoved(existing)
	}
	return nil
}

func (b *broadcastBus) sendDirect(recipientID string, env ConfidentialEnvelope) {
	b.mu.Lock()
	var target *Node
	for n := range b.nodes {
		if n.handlesRecipient(recipientID) {
			target = n
			break
		}
	}
	if target == nil {
		b.mailbox[recipientID] = append(b.mailbox[recipientID], env)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	target.deliverConfidential(env)
}

func (b *broadcastBus) all() []AuthenticatedPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AuthenticatedPayload, 0, len(b.retained))
	for _, p := range b.retained {
		out = append(out, p)
	}
	return out
}

func (b *broadcastBus) subscribersLocked() []*Node {
	out := make([]*Node, 0, len(b.nodes))
	for n := range b.nodes {
		out = append(out, n)
	}
	return out
}
