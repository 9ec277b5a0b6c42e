// Command dhtnode starts a single overlay peer, or, with -simulate,
// spins up N peers wired together in-process to exercise a Put/Get
// round trip — the Go analogue of original_source/server.py's main(),
// minus its Flask REST admin surface (an external HTTP control plane
// is out of scope for this node binary).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT"
	"github.com/PirosB3/DHT/internal/transport"
	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

func main() {
	var (
		listenPort  = flag.Int("port", 4000, "TCP port to listen on")
		bootstrap   = flag.String("bootstrap", "", "host:port of an existing peer; not used to join: without that peer's id this mode only prints a notice")
		simulate    = flag.Int("simulate", 0, "run N peers in-process over an in-memory network instead of listening on the network")
		key         = flag.String("key", "", "with -simulate=0, put this key (requires -value) or get it")
		value       = flag.String("value", "", "value to store at -key; omit to perform a get instead of a put")
		logLevel    = flag.String("log-level", "info", "ipfs/go-log level: debug, info, warn, error")
		simKey      = flag.String("sim-key", "hello", "key used for the -simulate Put/Get round trip")
		simValue    = flag.String("sim-value", "world", "value used for the -simulate Put/Get round trip")
	)
	flag.Parse()

	_ = logging.SetLogLevel("*", *logLevel)

	if *simulate > 0 {
		if err := runSimulation(*simulate, *simKey, *simValue); err != nil {
			log.Fatalf("simulate: %v", err)
		}
		return
	}

	if err := runNode(*listenPort, *bootstrap, *key, *value); err != nil {
		log.Fatalf("dhtnode: %v", err)
	}
}

// runNode starts exactly one peer on the real libp2p transport.
func runNode(listenPort int, bootstrapAddr, key, value string) error {
	tr, err := transport.NewLibp2p(listenPort)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	self := peerinfo.New(kadid.Random(), "127.0.0.1", uint16(listenPort))
	cfg := dht.DefaultConfig()

	node := dht.New(self, tr, cfg)
	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()

	fmt.Printf("%s listening on port %d\n", self, listenPort)

	if bootstrapAddr != "" {
		fmt.Fprintln(os.Stderr, "dhtnode: -bootstrap requires a known peer id; pass one via -simulate for a self-contained demo")
	}

	switch {
	case key != "" && value != "":
		if err := node.Put(key, value); err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("stored %q = %q\n", key, value)
	case key != "":
		v, ok := node.Get(key)
		if !ok {
			return fmt.Errorf("key %q not found", key)
		}
		fmt.Printf("%q = %q\n", key, v)
	default:
		fmt.Println("no -key given; listening only, press Ctrl+C to exit")
		select {}
	}
	return nil
}

// runSimulation builds n peers over a shared in-memory Network,
// bootstraps each through a previously-created peer (mirroring
// original_source/server.py's main loop, where every new node joins
// through `random.choice(kads).node`), then performs one Put/Get round
// trip to demonstrate the overlay works end to end.
func runSimulation(n int, key, value string) error {
	if n < 2 {
		return fmt.Errorf("-simulate needs at least 2 peers, got %d", n)
	}

	net := transport.NewNetwork()
	cfg := dht.DefaultConfig()

	nodes := make([]*dht.DHT, 0, n)
	for i := 0; i < n; i++ {
		self := peerinfo.New(kadid.Random(), "sim", uint16(3000+i))
		tr := transport.NewLocal(net, self)

		localCfg := cfg
		if len(nodes) > 0 {
			seed := nodes[len(nodes)-1].Self()
			localCfg.Bootstrap = &seed
		}

		node := dht.New(self, tr, localCfg)
		if err := node.Start(); err != nil {
			return fmt.Errorf("start peer %d: %w", i, err)
		}
		defer node.Close()

		nodes = append(nodes, node)
		fmt.Printf("peer %d: %s started\n", i, self)
	}

	// Give the newest peers' Bootstrap-triggered lookups a moment to
	// settle before driving a round trip through an arbitrary peer.
	time.Sleep(50 * time.Millisecond)

	writer := nodes[0]
	if err := writer.Put(key, value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	fmt.Printf("put %q = %q via peer 0\n", key, value)

	reader := nodes[len(nodes)-1]
	got, ok := reader.Get(key)
	if !ok {
		return fmt.Errorf("get %q via peer %d: not found", key, len(nodes)-1)
	}
	fmt.Printf("get %q via peer %d -> %q\n", key, len(nodes)-1, got)
	return nil
}
