package widget

// Transcript is the ordered message list of the open conversation.
// It is not safe for concurrent use; Session serializes access.
type Transcript struct {
	msgs []Message
}

func (t *Transcript) Append(m Message) {
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	t.msgs = append(t.msgs, m)
}

// Replace swaps the whole transcript, used after a history fetch.
func (t *Transcript) Replace(msgs []Message) {
	t.msgs = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		t.Append(m)
	}
}

// Unreconciled returns the local messages still pending or failed, in order.
func (t *Transcript) Unreconciled() []Message {
	var out []Message
	for _, m := range t.msgs {
		if m.ID == "" && (m.Delivery == DeliveryPending || m.Delivery == DeliveryFailed) {
			out = append(out, m)
		}
	}
	return out
}

func (t *Transcript) Clear() {
	t.msgs = nil
}

func (t *Transcript) Len() int {
	return len(t.msgs)
}

// Snapshot returns a copy safe to hand out.
func (t *Transcript) Snapshot() []Message {
	out := make([]Message, len(t.msgs))
	for i, m := range t.msgs {
		m.Attachments = append(make([]Attachment, 0, len(m.Attachments)), m.Attachments...)
		out[i] = m
	}
	return out
}

// ReconcileLatest attaches a durable id to the most recent unreconciled message of
// role and marks it delivered. Content is not used for matching; it is not unique.
func (t *Transcript) ReconcileLatest(role Role, id string) bool {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		m := &t.msgs[i]
		if m.Role == role && m.ID == "" {
			m.ID = id
			m.Delivery = DeliveryDelivered
			return true
		}
	}
	return false
}

// ReconcileRef attaches a durable id to the message minted with clientRef.
func (t *Transcript) ReconcileRef(clientRef, id string) bool {
	m := t.find(clientRef)
	if m == nil {
		return false
	}
	m.ID = id
	m.Delivery = DeliveryDelivered
	return true
}

func (t *Transcript) SetDelivery(clientRef string, state DeliveryState) bool {
	m := t.find(clientRef)
	if m == nil {
		return false
	}
	m.Delivery = state
	return true
}

// MarkAllRead flips readState on every message and returns how many changed.
func (t *Transcript) MarkAllRead() int {
	n := 0
	for i := range t.msgs {
		if !t.msgs[i].Read {
			t.msgs[i].Read = true
			n++
		}
	}
	return n
}

func (t *Transcript) Unread() int {
	n := 0
	for _, m := range t.msgs {
		if !m.Read {
			n++
		}
	}
	return n
}

func (t *Transcript) Get(clientRef string) (Message, bool) {
	m := t.find(clientRef)
	if m == nil {
		return Message{}, false
	}
	return *m, true
}

func (t *Transcript) find(clientRef string) *Message {
	for i := range t.msgs {
		if t.msgs[i].ClientRef == clientRef {
			return &t.msgs[i]
		}
	}
	return nil
}
