package controller

// DefaultSubscriberBuffer is the channel size used when Subscribe gets 0
const DefaultSubscriberBuffer = 16

// Subscribe returns a channel of state changes and a function that ends the
// subscription. Events arrive in the order the state changed. Slow
// subscribers miss events rather than blocking the controller; Snapshot
// always has the latest state.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	c.subsMu.Lock()
	if c.subsClosed {
		c.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// publishStateLocked sends the current snapshot as a state event
func (c *Controller) publishStateLocked() {
	c.publishLocked(Event{Type: EventState, Data: c.snapshotLocked()})
}

// publishLocked is called with mu held so events leave in the same order as
// the state changes they describe. Sends never block.
func (c *Controller) publishLocked(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Controller) closeSubscribersLocked() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.subsClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}
