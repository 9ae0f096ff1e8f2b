/*
File Name:  main.go

Example daemon wiring transport/blegatt, node, and webapi into one
running process, grounded on the teacher's mobile/mobile.go
Init/webapi.Start/Connect sequence -- the same load-config, start-api,
start-core ordering, narrowed to a single CLI flag set since this
daemon targets a workstation/Raspberry Pi host rather than a mobile
bind layer.
*/

package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meshchat/core/node"
	"github.com/meshchat/core/transport/blegatt"
	"github.com/meshchat/core/webapi"
)

func main() {
	configPath := flag.String("config", "Config.yaml", "path to the node config file")
	adapterID := flag.String("adapter", "hci0", "local Bluetooth adapter id")
	nickname := flag.String("nickname", "anon", "display nickname advertised to peers")
	peerID := flag.String("peer-id", "", "8-character peer id (random if empty)")
	listen := flag.String("listen", "127.0.0.1:5125", "webapi listen address")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := node.LoadConfig(*configPath)
	if err != nil {
		cfg = node.DefaultConfig()
		if saveErr := node.SaveConfig(*configPath, cfg); saveErr != nil {
			logrus.WithError(saveErr).Warn("could not write default config")
		}
	}

	id := *peerID
	if id == "" {
		id = randomPeerID()
	}

	driver := blegatt.NewDriver(*adapterID, id)

	n, err := node.New(cfg, driver)
	if err != nil {
		logrus.WithError(err).Fatal("constructing node")
	}

	if err := n.Start(id, *nickname); err != nil {
		logrus.WithError(err).Fatal("starting node")
	}

	webapi.Start(n, []string{*listen})
	logrus.WithField("listen", *listen).WithField("peer_id", id).Info("meshchatd running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := n.Stop(); err != nil {
		logrus.WithError(err).Error("stopping node")
	}
}

// randomPeerID derives an 8-character printable peer id from a fresh
// UUIDv4, matching spec.md §8's "typically 8 printable characters".
func randomPeerID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return hex[:8]
}
