// Command xr-server is the render/encode side of the remote-rendering XR
// pipeline (§2 C3-C4, §6 render-side production loop). It terminates
// signaling WebSockets, negotiates one WebRTC peer per headset client,
// stamps each outbound access unit's FrameMeta into the RTP stream, and
// serves an admin/debug HTTP surface alongside it — the server-side
// counterpart to cmd/xr-client.
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/pion/webrtc/v4"
	"github.com/xrrelay/xrrelay/internal/adminhttp"
	"github.com/xrrelay/xrrelay/internal/config"
	"github.com/xrrelay/xrrelay/internal/framesource"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/rtpstamp"
	"github.com/xrrelay/xrrelay/internal/signaling"
	"github.com/xrrelay/xrrelay/internal/utils"
	"github.com/xrrelay/xrrelay/internal/wrtcpeer"
)

func main() {
	getServerConfig := config.RegisterServerFlags(flag.CommandLine)
	flag.Parse()

	cfg := getServerConfig()
	if err := cfg.Validate(); err != nil {
		logx.Fatal("xr-server: %v", err)
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	}

	bus := signaling.NewBus()
	bridge := signaling.NewBridge(bus)
	registry := wrtcpeer.NewRegistry(bus, bridge, iceServers)

	source := framesource.NewStub()

	registry.SetFactory(func(clientID string) (*wrtcpeer.Peer, error) {
		stamper := rtpstamp.New(cfg.ExtensionID)
		session := newPeerSession(stamper, source, cfg.KeyframeEvery)

		ctx, cancel := context.WithCancel(context.Background())

		peer, err := wrtcpeer.NewServerPeer(clientID, wrtcpeer.Config{
			ICEServers:      iceServers,
			Stamper:         stamper,
			KeyframeRequest: session.gate.RequestKeyframeNow,
			OnDataMessage:   session.onTrackingReport,
			OnDataOpen: func() {
				utils.GoSafe("xr-server-pump-"+clientID, func() { session.run(ctx, clientID) })
			},
			OnDataClose: cancel,
			OnDataError: func(error) { cancel() },
		})
		if err != nil {
			cancel()
			return nil, err
		}
		session.peer = peer
		return peer, nil
	})

	mux := http.NewServeMux()
	mux.Handle("/signaling", bridge)
	mux.Handle("/", adminhttp.NewRouter(registry))

	logx.Info("xr-server: listening on %s (/signaling, /sessions, /debug/vars)", cfg.ListenAddr)
	utils.GoSafe("xr-server-http", func() {
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		logx.Fatal("xr-server: http server exited: %v", srv.ListenAndServe())
	})

	select {}
}
