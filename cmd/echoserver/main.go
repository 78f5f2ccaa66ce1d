// Command echoserver is a minimal TCP echo server driving tcp+poll
// directly, with no handler-loop fan-out: every accepted connection's
// own ConnNotify writes back whatever it receives.
package main

import (
	"flag"
	"log"

	"github.com/nanokernel/nanokernel/internal/xlog"
	"github.com/nanokernel/nanokernel/poll"
	"github.com/nanokernel/nanokernel/tcp"
)

var addr = flag.String("addr", "127.0.0.1:7070", "address to listen on")

type listenNotify struct {
	tcp.BaseListenNotify
}

func (listenNotify) Listening(l *tcp.Listener) {
	log.Printf("echoserver: listening on %s", l.Addr())
}

func (listenNotify) NotListening(err error) {
	xlog.Default.Errorf("echoserver: could not listen: %v", err)
}

func (listenNotify) Connected(l *tcp.Listener) tcp.ConnNotify {
	return &echoConn{}
}

type echoConn struct {
	tcp.BaseConnNotify
}

func (echoConn) Received(c *tcp.Conn, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	if err := c.Write(buf); err != nil {
		xlog.Default.Errorf("echoserver: write: %v", err)
	}
}

func main() {
	flag.Parse()

	reactor, err := poll.New()
	if err != nil {
		log.Fatalf("echoserver: reactor: %v", err)
	}
	defer reactor.Close()

	l, err := tcp.Listen(reactor, *addr, listenNotify{})
	if err != nil {
		log.Fatalf("echoserver: listen: %v", err)
	}
	defer l.Close()

	if err := reactor.Run(); err != nil {
		log.Fatalf("echoserver: run: %v", err)
	}
}
