// Command q2bouncer runs the bouncer server against a SQLite store file,
// listening for remote clients on the given address (spec §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/cyndis/q2"
	"github.com/cyndis/q2/store"
)

func main() {
	listen := flag.String("listen", "0.0.0.0:9006", "address to listen for remote clients on")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-listen addr] store.db\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	st, err := store.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("q2bouncer: open store: %v", err)
	}
	defer st.Close()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("q2bouncer: listen: %v", err)
	}
	log.Printf("q2bouncer: listening on %v", ln.Addr())

	srv := q2.NewServer(st)
	if err := srv.Run(context.Background(), ln); err != nil {
		log.Fatalf("q2bouncer: %v", err)
	}
}
