package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flammafex/prestige/issuer"
	"github.com/flammafex/prestige/relay"
	"github.com/flammafex/prestige/service"
	"github.com/flammafex/prestige/types"
	"github.com/flammafex/prestige/witness"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/log"
)

func main() {
	dataDir := flag.String("dataDir", "./prestige-data", "data directory for the key-value store")
	dbType := flag.String("dbType", db.TypePebble, "database engine")
	logLevel := flag.String("logLevel", "info", "log level (debug, info, warn, error)")
	issuerURL := flag.String("issuerURL", "", "eligibility issuer base URL (empty runs the in-process mock)")
	witnessURL := flag.String("witnessURL", "", "witness base URL (empty runs the in-process mock)")
	relayURL := flag.String("relayURL", "", "relay websocket URL (empty disables gossip)")
	ballotGate := flag.String("ballotGate", types.BallotGateOwner, "ballot gate: open, owner, delegation, token, petition")
	voterGate := flag.String("voterGate", types.VoterGateToken, "voter gate: open, token, allowlist")
	adminKey := flag.String("adminKey", "", "hex admin public key for the owner ballot gate")
	petitionThreshold := flag.Int("petitionThreshold", 10, "signatures needed to activate a petition ballot")
	privacyEnabled := flag.Bool("privacy", false, "enable the timing-decorrelation subsystem")
	flag.Parse()

	log.Init(*logLevel, "stderr", nil)

	cfg := types.DefaultConfig()
	cfg.BallotGate = *ballotGate
	cfg.VoterGate = *voterGate
	cfg.PetitionThreshold = *petitionThreshold
	cfg.Privacy.Enabled = *privacyEnabled
	if *adminKey != "" {
		if err := cfg.AdminKey.SetString(*adminKey); err != nil {
			log.Fatalf("invalid admin key: %v", err)
		}
	}

	database, err := metadb.New(*dbType, *dataDir)
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}

	clk := clock.New()
	collab, err := buildCollaborators(cfg, clk, *issuerURL, *witnessURL, *relayURL)
	if err != nil {
		log.Fatalf("cannot reach collaborators: %v", err)
	}

	svc, err := service.New(cfg, database, clk, collab, nil)
	if err != nil {
		log.Fatalf("cannot assemble service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("cannot start service: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Infow("shutting down")
	svc.Stop()
}

func buildCollaborators(cfg *types.Config, clk clock.Clock, issuerURL, witnessURL, relayURL string) (*service.Collaborators, error) {
	collab := &service.Collaborators{}

	if issuerURL == "" {
		mock := issuer.NewMock("prestige-dev", 24*time.Hour, clk)
		collab.Issuer = mock
		collab.Verifier = mock.Verifier()
		log.Warnw("using in-process mock issuer; tokens are not production grade")
	} else {
		client, err := issuer.NewHTTPClient(issuerURL, cfg.OutboundTimeout)
		if err != nil {
			return nil, err
		}
		collab.Issuer = client
		meta, err := client.Metadata(context.Background())
		if err != nil {
			return nil, err
		}
		collab.Verifier = issuer.NewLocalVerifier(meta.VOPRFPubKey, clk)
	}

	if witnessURL == "" {
		mock, err := witness.NewMock(3, cfg.WitnessQuorum, clk)
		if err != nil {
			return nil, err
		}
		cfg.WitnessIDs = mock.IDs()
		collab.Witness = mock
		log.Warnw("using in-process mock witness; attestations are not production grade")
	} else {
		client, err := witness.NewHTTPClient(witnessURL, cfg.OutboundTimeout)
		if err != nil {
			return nil, err
		}
		collab.Witness = client
	}

	if relayURL != "" {
		ws, err := relay.NewWSClient(context.Background(), relayURL,
			cfg.OutboundTimeout, cfg.MaxReconnectAttempts)
		if err != nil {
			return nil, err
		}
		collab.Relay = ws
	}
	return collab, nil
}
