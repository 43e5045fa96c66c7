// Package main is the groundlift sender CLI: it either scans for peers on
// the local network or sends one file to an explicit host:port, printing
// status lines in the teacher's client/main.go color-and-log style.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/groundlift/groundlift/internal/config"
	"github.com/groundlift/groundlift/internal/event"
	"github.com/groundlift/groundlift/internal/glproto"
	"github.com/groundlift/groundlift/internal/transport"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "groundlift"
	myApp.Usage = "send a file to a peer, or scan for peers"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Usage: "peer host to send to; required unless --scan is set",
		},
		cli.IntFlag{
			Name:  "port",
			Value: glproto.GLServerMainPort,
			Usage: "peer stream port",
		},
		cli.StringFlag{
			Name:  "file,f",
			Usage: "path of the file to send",
		},
		cli.BoolFlag{
			Name:  "scan",
			Usage: "scan for peers via discovery broadcast instead of sending",
		},
		cli.IntFlag{
			Name:  "discoveryport",
			Value: glproto.DefaultDiscoveryPort,
			Usage: "UDP port to broadcast discovery on",
		},
		cli.IntFlag{
			Name:  "timeout",
			Value: 1000,
			Usage: "discovery round timeout in milliseconds",
		},
		cli.StringFlag{
			Name:  "peerid",
			Value: "gl000002",
			Usage: "8-byte stable peer identifier",
		},
		cli.StringFlag{
			Name:  "devicetype",
			Value: "Lnx",
			Usage: "3-character device-type tag",
		},
		cli.StringFlag{
			Name:  "hostname",
			Value: hostnameOrDefault(),
			Usage: "hostname advertised to peers",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "load configuration from a JSON file, overriding the flags above",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	var cfg *config.Snapshot
	if c.String("c") != "" {
		loaded, err := config.Load(c.String("c"))
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	} else {
		var peerID [config.PeerIDLen]byte
		copy(peerID[:], c.String("peerid"))
		cfg = config.New(peerID, c.String("devicetype"), c.String("hostname"), ".")
	}

	if c.Bool("scan") {
		return scan(cfg, c.Int("discoveryport"), c.Int("timeout"))
	}

	host := c.String("host")
	filePath := c.String("file")
	if host == "" || filePath == "" {
		return cli.NewExitError("groundlift: --host and --file are required unless --scan is set", 1)
	}

	emitter := event.NewEmitter(&event.Handlers{
		Connected: func(addr net.Addr) {
			log.Println("connected:", addr)
		},
		ConnReqResp: func(basename string, accepted bool) {
			if accepted {
				color.Green("%s accepted", basename)
			} else {
				color.Red("%s declined", basename)
			}
		},
		PutProgress: func(basename string, sent, total int64, chunkIndex, chunkSize int) {
			fmt.Printf("  %s: %d/%d bytes (chunk %d, %d bytes)\n", basename, sent, total, chunkIndex, chunkSize)
		},
		PutSucceeded: func(basename, sha256Hex string) {
			color.Cyan("sent %s, sha256=%s", basename, sha256Hex)
		},
		Disconnected: func(addr net.Addr) {
			log.Println("disconnected:", addr)
		},
	})

	if err := transport.Send(cfg, host, c.Int("port"), filePath, emitter, nil); err != nil {
		log.Fatal(err)
	}
	return nil
}

func scan(cfg *config.Snapshot, discoveryPort, timeoutMs int) error {
	found := 0
	emitter := event.NewEmitter(&event.Handlers{
		PeerDiscovered: func(info event.PeerInfo) {
			found++
			color.Green("%-20s %-15s %s", info.Hostname, info.DeviceType, info.Addr)
		},
		DiscoveryEnd: func() {
			log.Printf("scan done, %d peer(s) found", found)
		},
	})

	if err := glproto.DiscoverAll(cfg, nil, discoveryPort, timeoutMs, emitter, nil); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil {
		return "groundlift"
	}
	return h
}
