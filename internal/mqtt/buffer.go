package mqtt

import "github.com/rs/zerolog/log"

// pending is a serialized message waiting for the broker to come back.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages held while disconnected.
// When full the oldest message is overwritten.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	slots   []pending
	next    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]pending, capacity)}
}

func (o *outbox) push(msg pending) {
	capacity := len(o.slots)
	if o.count == capacity {
		if o.dropped == 0 {
			log.Warn().Int("capacity", capacity).Msg("mqtt: outbox full, dropping oldest")
		}
		o.dropped++
	} else {
		o.count++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % capacity
}

// drain returns buffered messages oldest first and empties the outbox.
func (o *outbox) drain() []pending {
	if o.count == 0 {
		return nil
	}
	capacity := len(o.slots)
	out := make([]pending, 0, o.count)
	first := (o.next - o.count + capacity) % capacity
	for i := 0; i < o.count; i++ {
		out = append(out, o.slots[(first+i)%capacity])
	}
	if o.dropped > 0 {
		log.Warn().Int("dropped", o.dropped).Msg("mqtt: messages lost while disconnected")
	}
	*o = outbox{slots: o.slots}
	return out
}

func (o *outbox) len() int { return o.count }
