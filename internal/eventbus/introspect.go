package eventbus

// TopicInfo describes the wiring of a single topic.
type TopicInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Publishers  []string `json:"publishers"`
	Subscribers []string `json:"subscribers"`
	History     int      `json:"history"`
}

// NodeInfo lists the topics an identity publishes and subscribes to.
type NodeInfo struct {
	ID         string   `json:"id"`
	Publishes  []string `json:"publishes"`
	Subscribes []string `json:"subscribes"`
}

// Topics returns the topic names in creation order.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Describe returns the publishers and subscribers of a topic.
func (b *Bus) Describe(name string) (TopicInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[name]
	if !ok {
		return TopicInfo{}, false
	}
	return t.info(), true
}

// Graph describes every topic in creation order.
func (b *Bus) Graph() []TopicInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TopicInfo, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.topics[name].info())
	}
	return out
}

// Node returns the topics id is registered on.
func (b *Bus) Node(id string) NodeInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := NodeInfo{ID: id}
	for _, name := range b.order {
		t := b.topics[name]
		for _, p := range t.publishers {
			if p == id {
				n.Publishes = append(n.Publishes, name)
				break
			}
		}
		for _, s := range t.subs {
			if s.id == id {
				n.Subscribes = append(n.Subscribes, name)
				break
			}
		}
	}
	return n
}

// History returns a copy of the values retained on a topic, oldest first.
func (b *Bus) History(name string) []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[name]
	if !ok {
		return nil
	}
	return append([]any(nil), t.history...)
}

func (t *topic) info() TopicInfo {
	info := TopicInfo{
		Name:       t.name,
		Type:       t.typ.String(),
		Publishers: append([]string(nil), t.publishers...),
		History:    len(t.history),
	}
	for _, s := range t.subs {
		info.Subscribers = append(info.Subscribers, s.id)
	}
	return info
}
