// Command chatclient connects to a chatserver, printing every line it
// receives and forwarding every line typed on stdin.
//
// Ported from original_source/examples/chat_client.rs. The original reads
// stdin on a dedicated OS thread and posts lines into the event loop
// cross-thread via a Stream; this port instead registers stdin (fd 0)
// directly with the reactor as a non-blocking, edge-triggered descriptor,
// since Go's poll.Reactor already polls an arbitrary fd — no reader
// goroutine and no Stream handoff are needed here.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/nanokernel/nanokernel/poll"
	"github.com/nanokernel/nanokernel/tcp"
)

var (
	host = flag.String("host", "localhost", "chat server host")
	port = flag.String("port", "1337", "chat server port")
)

type clientNotify struct {
	tcp.BaseConnNotify
	conn *tcp.Conn
}

func (n *clientNotify) Connected(c *tcp.Conn) {
	n.conn = c
	fmt.Println("Connected")
}

func (n *clientNotify) ConnectFailed(c *tcp.Conn) {
	fmt.Fprintln(os.Stderr, "Connect failed")
}

func (n *clientNotify) Received(c *tcp.Conn, data []byte) {
	fmt.Print("-> " + string(data))
}

func main() {
	flag.Parse()

	reactor, err := poll.New()
	if err != nil {
		log.Fatalf("chatclient: reactor: %v", err)
	}
	defer reactor.Close()

	notify := &clientNotify{}
	if err := tcp.DialHost(reactor, *host, *port, notify); err != nil {
		log.Fatalf("chatclient: dial: %v", err)
	}

	if err := syscall.SetNonblock(0, true); err != nil {
		log.Fatalf("chatclient: stdin nonblock: %v", err)
	}
	if _, err := reactor.AddFD(0, poll.Read, func(ev poll.Event) poll.Action {
		if ev.Errored() || ev.HungUp() {
			reactor.Stop()
			return poll.Stop
		}
		buf := make([]byte, 4096)
		for {
			n, err := syscall.Read(0, buf)
			if n > 0 && notify.conn != nil {
				notify.conn.Write(buf[:n])
			}
			if err == syscall.EAGAIN {
				return poll.Continue
			}
			if err != nil || n == 0 {
				reactor.Stop()
				return poll.Stop
			}
		}
	}); err != nil {
		log.Fatalf("chatclient: stdin register: %v", err)
	}

	if err := reactor.Run(); err != nil {
		log.Fatalf("chatclient: run: %v", err)
	}
}
