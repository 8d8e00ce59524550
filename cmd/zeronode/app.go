// Package main wires the znsite/znprotocol/zntracker/zncontrol/znidentity
// components into a command-line node, structured as a cobra command tree:
// one file per concern, each contributing a command group that shares a
// PersistentPreRunE bootstrap.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zeronode/internal/logging"
	"zeronode/pkg/znconfig"
	"zeronode/pkg/znidentity"
	"zeronode/pkg/znprotocol"
	"zeronode/pkg/znstore"
	"zeronode/pkg/zntransport"
)

// Exit codes, per the node's documented CLI contract: 0 success, 1
// invalid argument, 2 network failure, 3 verification failure, 4 I/O
// failure.
const (
	ExitSuccess             = 0
	ExitInvalidArgument     = 1
	ExitNetworkFailure      = 2
	ExitVerificationFailure = 3
	ExitIOFailure           = 4
)

// exitError carries the process exit code a failed command should produce,
// so main's Execute wrapper doesn't have to guess a code from a bare error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func invalidArgument(format string, a ...any) error {
	return &exitError{code: ExitInvalidArgument, err: fmt.Errorf(format, a...)}
}

func networkFailure(err error) error {
	return &exitError{code: ExitNetworkFailure, err: err}
}

func verificationFailure(err error) error {
	return &exitError{code: ExitVerificationFailure, err: err}
}

func ioFailure(err error) error {
	return &exitError{code: ExitIOFailure, err: err}
}

// app bundles the node's runtime collaborators, assembled once in
// rootInit and threaded through every subcommand: shared state is built
// lazily behind a PersistentPreRunE guard rather than scattered across
// package globals.
type app struct {
	cfg    *znconfig.Config
	logger *logrus.Logger
	user   *znidentity.User
	dialer *zntransport.Dialer
}

var theApp *app

func rootInit(cmd *cobra.Command, _ []string) error {
	if theApp != nil {
		return nil
	}
	cfg, err := znconfig.LoadFromEnv()
	if err != nil {
		return ioFailure(fmt.Errorf("load config: %w", err))
	}

	logger := logging.MustNew("zeronode", logging.ParseLevel(os.Getenv("ZERONODE_LOG_LEVEL"), logrus.InfoLevel), cfg.LogDir)

	user, err := loadOrCreateUser(cfg.DataDir)
	if err != nil {
		return ioFailure(fmt.Errorf("load identity: %w", err))
	}

	theApp = &app{
		cfg:    cfg,
		logger: logger,
		user:   user,
		dialer: zntransport.NewDialer(10*time.Second, 30*time.Second),
	}
	return nil
}

// identityDoc is the on-disk shape of a user's identity: just the master
// seed, from which everything else (master address, per-site AuthPairs)
// is re-derived deterministically rather than persisted directly.
type identityDoc struct {
	MasterSeedHex string `json:"master_seed_hex"`
}

func loadOrCreateUser(dataDir string) (*znidentity.User, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	store := znstore.NewDocumentStore(dataDir + "/identity.json")

	var doc identityDoc
	if err := store.Load(&doc); err == nil && doc.MasterSeedHex != "" {
		seedBytes, err := hex.DecodeString(doc.MasterSeedHex)
		if err != nil || len(seedBytes) != 32 {
			return nil, fmt.Errorf("corrupt identity.json")
		}
		var seed [32]byte
		copy(seed[:], seedBytes)
		return znidentity.UserFromSeed(seed)
	}

	user, err := znidentity.NewUser()
	if err != nil {
		return nil, err
	}
	seed := user.MasterSeed()
	doc = identityDoc{MasterSeedHex: hex.EncodeToString(seed[:])}
	if err := store.Save(&doc); err != nil {
		return nil, err
	}
	return user, nil
}

// connectPeer dials addr, wraps it in a protocol client, and completes the
// handshake the way pkg/znprotocol expects before any other verb is sent.
func (a *app) connectPeer(ctx context.Context, addr string) (*znprotocol.Client, error) {
	sess, err := a.dialer.DialSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	client := znprotocol.NewClient(sess)
	if _, err := client.Handshake(ctx, znprotocol.HandshakeInfo{
		PeerID:  a.user.MasterAddress().Short(),
		Version: Version,
	}); err != nil {
		sess.Close()
		return nil, err
	}
	return client, nil
}
