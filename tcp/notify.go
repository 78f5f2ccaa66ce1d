package tcp

// ListenNotify receives a listener's lifecycle events. Every method except
// Connected has a no-op default; embed BaseListenNotify to implement only
// what you need.
//
// Grounded on original_source/src/async.rs's TcpListenNotify trait (whose
// default trait methods this interface's BaseListenNotify embed mirrors).
type ListenNotify interface {
	Listening(l *Listener)
	NotListening(err error)
	Closed(l *Listener)
	Connected(l *Listener) ConnNotify
}

// BaseListenNotify supplies no-op implementations of every ListenNotify
// method except Connected, which callers must still provide (there is no
// sensible default observer to hand back).
type BaseListenNotify struct{}

func (BaseListenNotify) Listening(l *Listener)   {}
func (BaseListenNotify) NotListening(err error)  {}
func (BaseListenNotify) Closed(l *Listener)      {}

// ConnNotify receives a connection's lifecycle events. Grounded on
// original_source/src/async.rs's TcpConnectionNotify trait.
type ConnNotify interface {
	Accepted(c *Conn)
	Connecting(c *Conn, count int)
	Connected(c *Conn)
	ConnectFailed(c *Conn)
	Received(c *Conn, data []byte)
	Closed(c *Conn)
	Throttled(c *Conn)
	Unthrottled(c *Conn)
}

// BaseConnNotify supplies no-op implementations for every ConnNotify
// method; embed it and override only the events you care about.
type BaseConnNotify struct{}

func (BaseConnNotify) Accepted(c *Conn)          {}
func (BaseConnNotify) Connecting(c *Conn, n int) {}
func (BaseConnNotify) Connected(c *Conn)         {}
func (BaseConnNotify) ConnectFailed(c *Conn)     {}
func (BaseConnNotify) Received(c *Conn, d []byte) {}
func (BaseConnNotify) Closed(c *Conn)            {}
func (BaseConnNotify) Throttled(c *Conn)         {}
func (BaseConnNotify) Unthrottled(c *Conn)       {}
