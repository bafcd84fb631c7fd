package notify

import (
	"log/slog"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

// Topic registry
//
// A topic's subscribers are a set value stored in the admin keyspace under the
// topic name, so membership updates get the keyspace's per-key atomicity and
// show up in snapshots like any other key. The registry itself holds no state
// besides the keyspace and the send function.

// Slaves is the topic holding the session ids of attached replicas.
const Slaves = "slaves"

// ChannelTopic is the topic for a pub/sub channel.
func ChannelTopic(channel string) string {
	return "subscriptions:" + channel
}

// SendFunc delivers payload to the destination identified by channel.
type SendFunc func(channel string, payload resp.Token) error

type Registry struct {
	admin *data.Database
	send  SendFunc
	log   *slog.Logger
}

func New(admin *data.Database, send SendFunc, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{admin: admin, send: send, log: log.With("component", "notify")}
}

// Subscribe adds channel to topic, returning the number of subscribers.
func (r *Registry) Subscribe(topic, channel string) int {
	v := r.admin.Merge(data.SafeKey(topic), data.EmptySet, func(cur, _ data.Value) data.Value {
		next, _ := cur.SetAdd(channel)
		return next
	})
	return v.Len()
}

// Unsubscribe removes channel from topic, returning the number of subscribers
// left. The topic key disappears with its last subscriber.
func (r *Registry) Unsubscribe(topic, channel string) int {
	v := r.admin.Merge(data.SafeKey(topic), data.EmptySet, func(cur, _ data.Value) data.Value {
		next, _ := cur.SetRemove(channel)
		return next
	})
	return v.Len()
}

// Subscribers lists the channels subscribed to topic, sorted.
func (r *Registry) Subscribers(topic string) []string {
	v, ok := r.admin.Get(topic)
	if !ok || v.Type() != data.TypeSet {
		return nil
	}
	return v.SetMembers()
}

// Count is the number of subscribers to topic.
func (r *Registry) Count(topic string) int {
	v, ok := r.admin.Get(topic)
	if !ok || v.Type() != data.TypeSet {
		return 0
	}
	return v.Len()
}

// Notify sends payload to every subscriber of topic and returns how many
// deliveries succeeded. Failed deliveries are logged and otherwise ignored;
// subscribers are removed only when their session disconnects.
func (r *Registry) Notify(topic string, payload resp.Token) int {
	delivered := 0
	for _, ch := range r.Subscribers(topic) {
		if err := r.send(ch, payload); err != nil {
			r.log.Debug("delivery failed", "topic", topic, "channel", ch, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}
