package command

import (
	"strings"
	"time"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/notify"
	"github.com/tchajed/tinydb/resp"
)

// Session is the per-connection state visible to handlers.
type Session interface {
	ID() string
	CurrentDB() int
	SetCurrentDB(index int)
	Attr(name string) (interface{}, bool)
	SetAttr(name string, v interface{})
	RemoveAttr(name string)
	// Send writes t to the client immediately, ahead of the current reply.
	Send(t resp.Token) error
}

// Info is the server state reported by INFO and ROLE.
type Info struct {
	Version          string
	Port             int
	Uptime           time.Duration
	ConnectedClients int
	Master           bool
	ConnectedSlaves  int
	MasterHost       string
	MasterPort       string
}

// ServerContext is the part of the server that handlers reach through.
type ServerContext interface {
	NumDatabases() int
	Database(index int) *data.Database
	Registry() *notify.Registry
	Info() Info
	SlaveOf(host, port string) error
	// Sync registers s as a slave and sends it a full snapshot.
	Sync(s Session) error
	Save() error
	BackgroundSave() error
	// Execute runs req through the pipeline, as EXEC does for queued commands.
	Execute(req *Request) resp.Token
}

// Request is a single command invocation.
type Request struct {
	Server  ServerContext
	Session Session
	// Command is the upper-cased command name.
	Command string
	Params  []string
	exit    bool
	replay  []string
}

func NewRequest(server ServerContext, session Session, args []string) *Request {
	req := &Request{Server: server, Session: session}
	if len(args) > 0 {
		req.Command = strings.ToUpper(args[0])
		req.Params = args[1:]
	}
	return req
}

func (r *Request) Param(i int) string {
	return r.Params[i]
}

func (r *Request) Length() int {
	return len(r.Params)
}

// Exit asks the pipeline to close the connection after replying.
func (r *Request) Exit() {
	r.exit = true
}

func (r *Request) IsExit() bool {
	return r.exit
}

// ReplayAs replaces the command recorded for slaves and the command log
// with args. Handlers with non-deterministic effects use it to record the
// effect instead.
func (r *Request) ReplayAs(args ...string) {
	r.replay = args
}

// Replay returns the command name and parameters to record for this
// request once it has executed.
func (r *Request) Replay() (string, []string) {
	if r.replay != nil {
		return r.replay[0], r.replay[1:]
	}
	return r.Command, r.Params
}

// Args returns the command name followed by the parameters.
func (r *Request) Args() []string {
	return append([]string{r.Command}, r.Params...)
}
