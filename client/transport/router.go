package transport

import "github.com/google/uuid"

type (
	topicHandler struct {
		id uint64
		fn func(Message)
	}

	// topicSub is one broker subscription shared by every local handler of
	// the same topic.
	topicSub struct {
		id       string
		topic    string
		handlers []topicHandler
		// SUBSCRIBE was sent on the current connection
		active bool
	}

	// router is owned by the loop, it is never touched from socket goroutines.
	router struct {
		next uint64
		subs []*topicSub
	}
)

func (r *router) find(topic string) *topicSub {
	for _, s := range r.subs {
		if s.topic == topic {
			return s
		}
	}
	return nil
}

func (r *router) byID(id string) *topicSub {
	for _, s := range r.subs {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (r *router) add(topic string, fn func(Message)) (*topicSub, uint64, bool) {
	r.next++
	sub := r.find(topic)
	created := sub == nil
	if created {
		sub = &topicSub{id: "sub-" + uuid.NewString(), topic: topic}
		r.subs = append(r.subs, sub)
	}
	sub.handlers = append(sub.handlers, topicHandler{id: r.next, fn: fn})
	return sub, r.next, created
}

// remove drops handler hid. When it was the last handler of the topic the
// subscription itself is returned.
func (r *router) remove(topic string, hid uint64) *topicSub {
	sub := r.find(topic)
	if sub == nil {
		return nil
	}
	handlers := make([]topicHandler, 0, len(sub.handlers))
	for _, h := range sub.handlers {
		if h.id != hid {
			handlers = append(handlers, h)
		}
	}
	sub.handlers = handlers
	if len(handlers) > 0 {
		return nil
	}

	subs := make([]*topicSub, 0, len(r.subs))
	for _, s := range r.subs {
		if s != sub {
			subs = append(subs, s)
		}
	}
	r.subs = subs
	return sub
}

func (r *router) deactivate() {
	for _, s := range r.subs {
		s.active = false
	}
}

func (r *router) topics() []string {
	topics := make([]string, 0, len(r.subs))
	for _, s := range r.subs {
		topics = append(topics, s.topic)
	}
	return topics
}

// route resolves the subscription a MESSAGE belongs to. Brokers set the
// subscription header, the destination is the fallback.
func (r *router) route(subID, destination string) *topicSub {
	if sub := r.byID(subID); sub != nil {
		return sub
	}
	return r.find(destination)
}
