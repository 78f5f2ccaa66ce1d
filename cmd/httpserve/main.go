// Command httpserve is a minimal HTTP server driving httpaio.Serve,
// answering every request with its own path and query string.
//
// Grounded on original_source/examples/http_serve.rs's trivial handler.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nanokernel/nanokernel/httpaio"
	"github.com/nanokernel/nanokernel/poll"
)

var addr = flag.String("addr", "127.0.0.1:8080", "address to listen on")

type echoHandler struct{}

func (echoHandler) Request(req httpaio.Request) string {
	return fmt.Sprintf("You're on page %s and you queried %s via %s", req.Path, req.QueryString, req.Method)
}

func main() {
	flag.Parse()

	reactor, err := poll.New()
	if err != nil {
		log.Fatalf("httpserve: reactor: %v", err)
	}
	defer reactor.Close()

	l, err := httpaio.Serve(reactor, *addr, echoHandler{})
	if err != nil {
		log.Fatalf("httpserve: serve: %v", err)
	}
	defer l.Close()

	log.Printf("httpserve: listening on %s", *addr)
	if err := reactor.Run(); err != nil {
		log.Fatalf("httpserve: run: %v", err)
	}
}
