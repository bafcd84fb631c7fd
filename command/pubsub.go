package command

import (
	"sort"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/notify"
	"github.com/tchajed/tinydb/resp"
)

// SubscriptionsAttr is the session attribute holding its channel set.
const SubscriptionsAttr = "subscriptions"

// Pub/sub commands touch only the admin keyspace: they are read-only with
// respect to client data and are not replicated.
func registerPubSub(t *Table) {
	t.Register(&Command{Name: "SUBSCRIBE", Handler: subscribe, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "UNSUBSCRIBE", Handler: unsubscribe, ReadOnly: true})
	t.Register(&Command{Name: "PUBLISH", Handler: publish, ReadOnly: true, MinParams: 2})
}

func subscriptions(s Session) map[string]struct{} {
	if v, ok := s.Attr(SubscriptionsAttr); ok {
		return v.(map[string]struct{})
	}
	subs := make(map[string]struct{})
	s.SetAttr(SubscriptionsAttr, subs)
	return subs
}

func subscribe(db *data.Database, req *Request) resp.Token {
	subs := subscriptions(req.Session)
	for _, ch := range req.Params {
		req.Server.Registry().Subscribe(notify.ChannelTopic(ch), req.Session.ID())
		subs[ch] = struct{}{}
		req.Session.Send(resp.Array(resp.Bulk("subscribe"), resp.Bulk(ch), resp.Integer(int64(len(subs)))))
	}
	return resp.NoReply()
}

func unsubscribe(db *data.Database, req *Request) resp.Token {
	subs := subscriptions(req.Session)
	channels := req.Params
	if len(channels) == 0 {
		for ch := range subs {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
	}
	if len(channels) == 0 {
		return resp.Array(resp.Bulk("unsubscribe"), resp.Null(), resp.Integer(0))
	}
	for _, ch := range channels {
		req.Server.Registry().Unsubscribe(notify.ChannelTopic(ch), req.Session.ID())
		delete(subs, ch)
		req.Session.Send(resp.Array(resp.Bulk("unsubscribe"), resp.Bulk(ch), resp.Integer(int64(len(subs)))))
	}
	return resp.NoReply()
}

func publish(db *data.Database, req *Request) resp.Token {
	ch := req.Param(0)
	msg := resp.Array(resp.Bulk("message"), resp.Bulk(ch), resp.Bulk(req.Param(1)))
	return resp.Integer(int64(req.Server.Registry().Notify(notify.ChannelTopic(ch), msg)))
}

// UnsubscribeAll removes every subscription held by s; it runs when the
// session disconnects.
func UnsubscribeAll(reg *notify.Registry, s Session) {
	v, ok := s.Attr(SubscriptionsAttr)
	if !ok {
		return
	}
	for ch := range v.(map[string]struct{}) {
		reg.Unsubscribe(notify.ChannelTopic(ch), s.ID())
	}
	s.RemoveAttr(SubscriptionsAttr)
}
