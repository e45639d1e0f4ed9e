package mqtt

import "github.com/sirupsen/logrus"

// bufferedMsg is a serialized datapoint write queued for replay after
// reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that queues writes while the broker is
// unreachable. A retained write replaces an earlier queued retained write to
// the same topic, since only the latest value of a datapoint matters.
// Not safe for concurrent use; the store synchronizes.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
	log      *logrus.Entry
}

func newRingBuffer(capacity int, log *logrus.Entry) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained {
		start := r.oldest()
		for i := 0; i < r.count; i++ {
			idx := (start + i) % r.capacity
			if r.buf[idx].retained && r.buf[idx].topic == msg.topic {
				r.buf[idx] = msg
				return
			}
		}
	}

	if r.count == r.capacity {
		if !r.overflow {
			r.log.Warnf("write buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		// head points at the oldest entry when full
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}

	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) oldest() int {
	return (r.head - r.count + r.capacity) % r.capacity
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	start := r.oldest()
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
