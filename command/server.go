package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerServer(t *Table) {
	t.Register(&Command{Name: "DBSIZE", Handler: dbSize, ReadOnly: true})
	t.Register(&Command{Name: "FLUSHDB", Handler: flushDB})
	t.Register(&Command{Name: "FLUSHALL", Handler: flushAll})
	t.Register(&Command{Name: "INFO", Handler: info, ReadOnly: true})
	t.Register(&Command{Name: "TIME", Handler: serverTime, ReadOnly: true})
	t.Register(&Command{Name: "ROLE", Handler: role, ReadOnly: true})
	// SLAVEOF changes replication state but no keyspace; it must work on a
	// slave so that "SLAVEOF NO ONE" can promote it.
	t.Register(&Command{Name: "SLAVEOF", Handler: slaveOf, ReadOnly: true, MinParams: 2})
	t.Alias("REPLICAOF", "SLAVEOF")
	t.Register(&Command{Name: "SYNC", Handler: sync, ReadOnly: true, TxIgnore: true})
	t.Register(&Command{Name: "SAVE", Handler: save, ReadOnly: true})
	t.Register(&Command{Name: "BGSAVE", Handler: bgSave, ReadOnly: true})
}

func dbSize(db *data.Database, req *Request) resp.Token {
	return resp.Integer(int64(db.Size()))
}

func flushDB(db *data.Database, req *Request) resp.Token {
	db.Clear()
	return resp.OK
}

func flushAll(db *data.Database, req *Request) resp.Token {
	for i := 0; i < req.Server.NumDatabases(); i++ {
		req.Server.Database(i).Clear()
	}
	return resp.OK
}

func serverTime(db *data.Database, req *Request) resp.Token {
	now := db.Now()
	return resp.BulkArray(
		strconv.FormatInt(now.Unix(), 10),
		strconv.Itoa(now.Nanosecond()/1000))
}

func role(db *data.Database, req *Request) resp.Token {
	info := req.Server.Info()
	if info.Master {
		return resp.Array(resp.Bulk("master"), resp.Integer(int64(info.ConnectedSlaves)))
	}
	port, _ := strconv.ParseInt(info.MasterPort, 10, 64)
	return resp.Array(resp.Bulk("slave"), resp.Bulk(info.MasterHost), resp.Integer(port))
}

func info(db *data.Database, req *Request) resp.Token {
	section := ""
	if req.Length() > 0 {
		section = strings.ToLower(req.Param(0))
	}
	info := req.Server.Info()
	var b strings.Builder
	want := func(name string) bool {
		return section == "" || section == "all" || section == name
	}
	if want("server") {
		fmt.Fprintf(&b, "# Server\r\ntinydb_version:%s\r\ntcp_port:%d\r\nuptime_in_seconds:%d\r\n\r\n",
			info.Version, info.Port, int64(info.Uptime/time.Second))
	}
	if want("clients") {
		fmt.Fprintf(&b, "# Clients\r\nconnected_clients:%d\r\n\r\n", info.ConnectedClients)
	}
	if want("replication") {
		b.WriteString("# Replication\r\n")
		if info.Master {
			fmt.Fprintf(&b, "role:master\r\nconnected_slaves:%d\r\n", info.ConnectedSlaves)
		} else {
			fmt.Fprintf(&b, "role:slave\r\nmaster_host:%s\r\nmaster_port:%s\r\nconnected_slaves:%d\r\n",
				info.MasterHost, info.MasterPort, info.ConnectedSlaves)
		}
		b.WriteString("\r\n")
	}
	if want("keyspace") {
		b.WriteString("# Keyspace\r\n")
		for i := 0; i < req.Server.NumDatabases(); i++ {
			keys, expires := 0, 0
			req.Server.Database(i).ForEach(func(k data.Key, _ data.Value) bool {
				keys++
				if k.HasExpiry() {
					expires++
				}
				return true
			})
			if keys > 0 {
				fmt.Fprintf(&b, "db%d:keys=%d,expires=%d\r\n", i, keys, expires)
			}
		}
	}
	return resp.Bulk(b.String())
}

func slaveOf(db *data.Database, req *Request) resp.Token {
	if err := req.Server.SlaveOf(req.Param(0), req.Param(1)); err != nil {
		return resp.Errorf("ERR %v", err)
	}
	return resp.OK
}

func sync(db *data.Database, req *Request) resp.Token {
	if InTx(req.Session) {
		return resp.Error("ERR SYNC is not allowed inside MULTI")
	}
	if err := req.Server.Sync(req.Session); err != nil {
		return resp.Errorf("ERR %v", err)
	}
	return resp.NoReply()
}

func save(db *data.Database, req *Request) resp.Token {
	if err := req.Server.Save(); err != nil {
		return resp.Errorf("ERR %v", err)
	}
	return resp.OK
}

func bgSave(db *data.Database, req *Request) resp.Token {
	if err := req.Server.BackgroundSave(); err != nil {
		return resp.Errorf("ERR %v", err)
	}
	return resp.Simple("Background saving started")
}
