package mqtt

import "log"

// pending is a serialized message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a bounded FIFO of messages published while the broker was
// unreachable. When full the oldest message is dropped. It is not safe for
// concurrent use.
type backlog struct {
	msgs    []pending
	limit   int
	dropped int
	warned  bool
}

func newBacklog(limit int) *backlog {
	if limit < 1 {
		limit = 1
	}
	return &backlog{limit: limit}
}

func (b *backlog) push(msg pending) {
	if len(b.msgs) == b.limit {
		if !b.warned {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", b.limit)
			b.warned = true
		}
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:len(b.msgs)-1]
		b.dropped++
	}
	b.msgs = append(b.msgs, msg)
}

// take returns the held messages oldest first and empties the backlog.
func (b *backlog) take() []pending {
	if len(b.msgs) == 0 {
		return nil
	}
	out := b.msgs
	b.msgs = nil
	b.warned = false
	return out
}

func (b *backlog) len() int {
	return len(b.msgs)
}
