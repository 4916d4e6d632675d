package notify

import "sync"

// Hub fans transitions out to observers and channel subscribers. It keeps
// the most recent message so new subscribers start with the current state.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int]chan Message
	nextID    int
	last      Message
	haveLast  bool
	observers []Observer
	dropped   uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Message)}
}

func (h *Hub) AddObserver(o Observer) {
	if h == nil || o == nil {
		return
	}
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

func (h *Hub) Subscribe(buffer int) (int, <-chan Message) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan Message, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.haveLast {
		ch <- h.last
	}
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish never blocks: a subscriber whose buffer is full misses the message.
func (h *Hub) Publish(msg Message) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.last = msg
	h.haveLast = true
	observers := append([]Observer(nil), h.observers...)
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped++
		}
	}
	h.mu.Unlock()

	for _, o := range observers {
		if msg.Moving {
			o.OnMotionStart()
		} else {
			o.OnMotionEnd()
		}
	}
}

// Forget drops the stored message so new subscribers get no replay.
func (h *Hub) Forget() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.last = Message{}
	h.haveLast = false
	h.mu.Unlock()
}

// Last returns the most recent message, if any.
func (h *Hub) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.haveLast
}

// Dropped counts messages lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
