// Package main is the groundliftd receiver daemon: it listens for inbound
// transfers and answers discovery broadcasts, printing events to stdout the
// way the teacher's server/main.go logs session lifecycle lines.
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
	"github.com/groundlift/groundlift/internal/glsock"
	"github.com/groundlift/groundlift/internal/transport"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "groundliftd"
	myApp.Usage = "GroundLift receiver daemon"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: fmt.Sprintf(":%d", glproto.GLServerMainPort),
			Usage: "stream listen address",
		},
		cli.IntFlag{
			Name:  "discoveryport",
			Value: glproto.DefaultDiscoveryPort,
			Usage: "UDP port to answer discovery broadcasts on",
		},
		cli.StringFlag{
			Name:  "peerid",
			Value: "gl000001",
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
			Name:  "downloaddir,d",
			Value: ".",
			Usage: "directory received files are written under",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "load configuration from a JSON file, overriding the flags above",
		},
		cli.BoolFlag{
			Name:  "noaccept",
			Usage: "decline every inbound transfer request",
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
		cfg = config.New(peerID, c.String("devicetype"), c.String("hostname"), c.String("downloaddir"))
	}

	log.Println("version:", VERSION)
	log.Println("hostname:", cfg.Hostname())
	log.Println("device type:", config.DeviceTypeString(cfg.DeviceType()))
	log.Println("download dir:", cfg.DownloadDir())
	log.Println("listen:", c.String("listen"))
	log.Println("discovery port:", c.Int("discoveryport"))

	noAccept := c.Bool("noaccept")
	emitter := event.NewEmitter(&event.Handlers{
		ConnReq: func(info event.ConnReqInfo) bool {
			if noAccept {
				color.Yellow("declined %s (%d bytes) from %s", info.Basename, info.Size, info.Hostname)
				return false
			}
			color.Green("accepting %s (%d bytes) from %s", info.Basename, info.Size, info.Hostname)
			return true
		},
		PutProgress: func(basename string, sent, total int64, chunkIndex, chunkSize int) {
			fmt.Printf("  %s: %d/%d bytes (chunk %d, %d bytes)\n", basename, sent, total, chunkIndex, chunkSize)
		},
		PutSucceeded: func(basename, sha256Hex string) {
			color.Cyan("received %s, sha256=%s", basename, sha256Hex)
		},
		Disconnected: func(addr net.Addr) {
			log.Println("disconnected:", addr)
		},
	})

	listener := glsock.New()
	if err := listener.SetAddress("", parsePort(c.String("listen"))); err != nil {
		log.Fatal(err)
	}
	if err := listener.SetupTCP(true); err != nil {
		log.Fatal(err)
	}
	log.Println("listening on:", listener.LocalEndpoint())

	resp, err := glproto.NewResponder(cfg, c.Int("discoveryport"), nil)
	if err != nil {
		log.Fatal(err)
	}
	go serveDiscovery(resp)

	return transport.Accept(listener, cfg, emitter, nil)
}

func serveDiscovery(resp *glproto.Responder) {
	for {
		if _, err := resp.ServeOne(); err != nil {
			log.Println("discovery:", err)
		}
	}
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil {
		return "groundlift"
	}
	return h
}

func parsePort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return glproto.GLServerMainPort
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}
