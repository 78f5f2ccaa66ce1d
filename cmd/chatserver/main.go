// Command chatserver is a tiny broadcast chat server: every line received
// from any client is written back to every connected client, and the
// literal line "/quit\n" stops the server.
//
// Ported from original_source/examples/chat_server.rs. The original's
// single-threaded reactor plus a Stream-driven ChatHandler maps directly
// onto handler.Loop: tcp.Listener registers against the loop's underlying
// reactor, and each accepted connection's observer forwards
// Accepted/Received/Closed into the chat handler's mailbox instead of
// running client fan-out logic inline on the reactor callback.
package main

import (
	"bytes"
	"flag"
	"log"

	"github.com/nanokernel/nanokernel/handler"
	"github.com/nanokernel/nanokernel/tcp"
)

var addr = flag.String("addr", "127.0.0.1:1337", "address to listen on")

type msgKind int

const (
	msgAccepted msgKind = iota
	msgReceived
	msgClosed
)

type chatMsg struct {
	kind msgKind
	conn *tcp.Conn
	data []byte
}

type chatHandler struct {
	clients []*tcp.Conn
	loop    *handler.Loop
}

func (h *chatHandler) Update(stream handler.Stream[chatMsg], msg chatMsg) {
	switch msg.kind {
	case msgAccepted:
		h.clients = append(h.clients, msg.conn)
	case msgReceived:
		for _, client := range h.clients {
			if err := client.Write(msg.data); err != nil {
				log.Printf("chatserver: write: %v", err)
			}
		}
		if bytes.Equal(msg.data, []byte("/quit\n")) {
			h.loop.Stop()
		}
	case msgClosed:
		for i, client := range h.clients {
			if client.Fd() == msg.conn.Fd() {
				h.clients = append(h.clients[:i], h.clients[i+1:]...)
				break
			}
		}
	}
}

type chatListenNotify struct {
	tcp.BaseListenNotify
	stream handler.Stream[chatMsg]
}

func (chatListenNotify) Listening(l *tcp.Listener) {
	log.Printf("chatserver: listening on %s", l.Addr())
}

func (chatListenNotify) NotListening(err error) {
	log.Printf("chatserver: could not listen: %v", err)
}

func (n chatListenNotify) Connected(l *tcp.Listener) tcp.ConnNotify {
	return &chatConnNotify{stream: n.stream}
}

type chatConnNotify struct {
	tcp.BaseConnNotify
	stream handler.Stream[chatMsg]
}

func (n *chatConnNotify) Accepted(c *tcp.Conn) {
	n.stream.Send(chatMsg{kind: msgAccepted, conn: c})
}

func (n *chatConnNotify) Received(c *tcp.Conn, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	n.stream.Send(chatMsg{kind: msgReceived, conn: c, data: buf})
}

func (n *chatConnNotify) Closed(c *tcp.Conn) {
	n.stream.Send(chatMsg{kind: msgClosed, conn: c})
}

func main() {
	flag.Parse()

	loop, err := handler.New()
	if err != nil {
		log.Fatalf("chatserver: loop: %v", err)
	}
	defer loop.Close()

	h := &chatHandler{loop: loop}
	stream := handler.Spawn[chatMsg](loop, h)

	l, err := tcp.Listen(loop.Reactor(), *addr, chatListenNotify{stream: stream})
	if err != nil {
		log.Fatalf("chatserver: listen: %v", err)
	}
	defer l.Close()

	if err := loop.Run(); err != nil {
		log.Fatalf("chatserver: run: %v", err)
	}
}
