// Command xr-client is the headset side of the remote-rendering XR pipeline
// (§2 C5-C7, §4.6 render loop). It resolves the signaling endpoint, answers
// the server's WebRTC offer, decodes the incoming stereo video, and drives
// internal/remoteexperience's render loop against a demo OpenXR/GL backend
// standing in for the hardware this module has no binding to.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/3d0c/gmf"
	"github.com/xrrelay/xrrelay/internal/config"
	"github.com/xrrelay/xrrelay/internal/connection"
	"github.com/xrrelay/xrrelay/internal/glscope"
	"github.com/xrrelay/xrrelay/internal/logx"
	"github.com/xrrelay/xrrelay/internal/passthrough"
	"github.com/xrrelay/xrrelay/internal/remoteexperience"
	"github.com/xrrelay/xrrelay/internal/signaling"
	"github.com/xrrelay/xrrelay/internal/streamclient"
	"github.com/xrrelay/xrrelay/internal/swapchain"
	"github.com/xrrelay/xrrelay/internal/utils"
	"github.com/xrrelay/xrrelay/internal/wrtcpeer"
	"github.com/xrrelay/xrrelay/internal/xrtypes"
)

// eyeWidth/eyeHeight fix the per-eye swapchain dimensions the demo backend
// advertises (§6.2 side-by-side layout).
const eyeWidth = 1024
const eyeHeight = 1024
const swapchainImageCount = 3

func main() {
	getClientConfig := config.RegisterClientFlags(flag.CommandLine)
	flag.Parse()

	cfg := getClientConfig()
	if err := cfg.Validate(); err != nil {
		logx.Fatal("xr-client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uri := cfg.SignalingURI
	if uri == "" {
		uri = config.ResolveSignalingURI(ctx, config.EnvPropertyReader{})
	}
	logx.Info("xr-client: dialing signaling at %s", uri)

	sigConn, err := signaling.Dial(ctx, uri)
	if err != nil {
		logx.Fatal("xr-client: dial signaling: %v", err)
	}
	defer sigConn.Close()

	scope := glscope.New()

	var nextTexture atomic.Uint32
	decoder, err := streamclient.NewGMFDecoder(
		func(*gmf.Frame) (streamclient.Texture, error) {
			// Uploading a decoded frame's pixels into a bound GL texture is
			// the external EGL/GL collaborator's job (§2 Non-goals); this
			// demo stands in with a bare incrementing handle.
			return streamclient.Texture(nextTexture.Add(1)), nil
		},
		func(streamclient.Texture) {},
	)
	if err != nil {
		logx.Fatal("xr-client: new decoder: %v", err)
	}

	streamClient := streamclient.New(decoder, scope, cfg.ExtensionID)

	mapper, err := swapchain.New(swapchainImageCount, demoSwapchainAllocator)
	if err != nil {
		logx.Fatal("xr-client: new swapchain mapper: %v", err)
	}

	var conn *connection.Connection

	peer, err := wrtcpeer.NewClientPeer(wrtcpeer.ClientConfig{
		OnTrack: streamClient.SpawnThread,
		OnDataMessage: func(payload []byte) {
			if conn != nil {
				conn.OnMessageReceived()
			}
		},
		OnICECandidate: func(candidate string, mLineIndex uint16) {
			if err := sigConn.WriteICECandidate(ctx, candidate, mLineIndex); err != nil {
				logx.Error("xr-client: trickle ice candidate: %v", err)
			}
		},
	})
	if err != nil {
		logx.Fatal("xr-client: new client peer: %v", err)
	}
	defer peer.Close()

	conn = connection.New(peer)
	conn.StartHealthLoop()
	defer conn.Stop()

	policy := passthrough.New(false)

	exp := remoteexperience.New(remoteexperience.Config{
		Backend:    newDemoBackend(),
		Compositor: &demoCompositor{},
		Stream:     streamClient,
		Mapper:     mapper,
		Policy:     policy,
		Conn:       conn,
		Scope:      scope,
		Dimensions: remoteexperience.Dimensions{EyeWidth: eyeWidth, EyeHeight: eyeHeight},
	})

	utils.GoSafe("xr-client-signaling", func() {
		runSignalingLoop(ctx, sigConn, peer)
	})

	if err := exp.HandleSessionStateChange(xrtypes.StateReady); err != nil {
		logx.Fatal("xr-client: begin session: %v", err)
	}

	for ctx.Err() == nil {
		if err := exp.PollAndRenderFrame(); err != nil {
			logx.Fatal("xr-client: render loop: %v", err)
		}
	}

	if err := exp.HandleSessionStateChange(xrtypes.StateExiting); err != nil {
		logx.Error("xr-client: end session: %v", err)
	}
	if err := streamClient.Stop(); err != nil {
		logx.Error("xr-client: stop stream client: %v", err)
	}
}

// runSignalingLoop applies every sdp-offer/ice-candidate the server sends
// until the socket closes or ctx is done (§4.3 client side).
func runSignalingLoop(ctx context.Context, sigConn *signaling.ClientConn, peer *wrtcpeer.ClientPeer) {
	for {
		ev, err := sigConn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.Error("xr-client: signaling read ended: %v", err)
			return
		}

		switch ev.Type {
		case "sdp-offer":
			if err := peer.SetOffer(ev.SDP); err != nil {
				logx.Error("xr-client: set offer: %v", err)
				continue
			}
			answer, err := peer.CreateAnswer()
			if err != nil {
				logx.Error("xr-client: create answer: %v", err)
				continue
			}
			if err := sigConn.WriteAnswer(ctx, answer.SDP); err != nil {
				logx.Error("xr-client: write answer: %v", err)
			}
		case "ice-candidate":
			if err := peer.AddICECandidate(ev.Candidate.Candidate, ev.Candidate.SDPMLineIndex); err != nil {
				logx.Error("xr-client: add ice candidate: %v", err)
			}
		default:
			logx.Debug("xr-client: ignoring signaling message type %q", ev.Type)
		}
	}
}
