// Command dcache-cli is a thin client for the node API socket: get, set,
// and delete (set with an empty value). It talks to a node the same way any
// other external client would, over the API socket, and is deliberately
// minimal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dcache/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9003", "node API address")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	dialer := wire.NewDialer(*timeout)
	defer dialer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var payload [][]byte
	switch cmd := args[0]; cmd {
	case "get":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		payload = frame("1", "get", args[1])
	case "set":
		if len(args) != 3 {
			usage()
			os.Exit(1)
		}
		payload = frame("1", "set", args[1], args[2])
	case "delete":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		payload = frame("1", "set", args[1], "")
	default:
		usage()
		os.Exit(1)
	}

	reply, err := dialer.Request(ctx, *addr, payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printReply(reply)
}

func frame(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func printReply(reply [][]byte) {
	parts := make([]string, len(reply))
	for i, f := range reply {
		parts[i] = string(f)
	}
	fmt.Println(strings.Join(parts, " "))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dcache-cli [-addr host:port] get <key> | set <key> <value> | delete <key>")
}
