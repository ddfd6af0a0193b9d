package main

import (
	"context"
	"crypto/rand"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	gep "github.com/Rocket-Rescue-Node/guarded-engine-proxy"
	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/kv"
)

var log = logrus.WithField("prefix", "main")

var (
	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Address to listen for Engine API requests on",
		Value: "0.0.0.0:8551",
	}
	authNodeFlag = &cli.StringFlag{
		Name:     "auth-node-url",
		Usage:    "URL of the authenticated execution node",
		Required: true,
	}
	unauthNodeFlag = &cli.StringFlag{
		Name:  "unauth-node-url",
		Usage: "Optional URL of the unauthenticated companion node used for advisory cross-checks",
	}
	jwtSecretFlag = &cli.StringFlag{
		Name:     "jwt-secret",
		Usage:    "Path to a file holding the 32-byte hex-encoded JWT secret shared with the execution node",
		Required: true,
	}
	authenticateInboundFlag = &cli.BoolFlag{
		Name:  "authenticate-inbound",
		Usage: "Require inbound callers to present a bearer token signed with the shared secret",
	}
	dbPathFlag = &cli.StringFlag{
		Name:  "db-path",
		Usage: "Path to the bolt database holding canonical call records",
		Value: "engine-records.db",
	}
	nodeTimeoutFlag = &cli.DurationFlag{
		Name:  "node-timeout",
		Usage: "Budget for one outbound node round trip",
		Value: 8 * time.Second,
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "guarded-engine-proxy",
		Usage: "safety relay between a consensus client and its execution nodes",
		Flags: []cli.Flag{
			addrFlag,
			authNodeFlag,
			unauthNodeFlag,
			jwtSecretFlag,
			authenticateInboundFlag,
			dbPathFlag,
			nodeTimeoutFlag,
			verbosityFlag,
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "generate-jwt-secret",
				Usage:  "creates a random 32 byte hex string in a jwt.secret plaintext file",
				Action: generateSecret,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Proxy exited with error")
	}
}

func run(cliCtx *cli.Context) error {
	level, err := logrus.ParseLevel(cliCtx.String(verbosityFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not parse verbosity")
	}
	logrus.SetLevel(level)

	authURL, err := url.Parse(cliCtx.String(authNodeFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not parse auth node URL")
	}

	var unauthURL *url.URL
	if raw := cliCtx.String(unauthNodeFlag.Name); raw != "" {
		unauthURL, err = url.Parse(raw)
		if err != nil {
			return errors.Wrap(err, "could not parse unauth node URL")
		}
	}

	secret, err := readSecret(cliCtx.String(jwtSecretFlag.Name))
	if err != nil {
		return err
	}

	store, err := kv.NewStore(cliCtx.String(dbPathFlag.Name))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("Could not close record store")
		}
	}()

	proxy := &gep.GuardedEngineProxy{
		AuthNodeURL:         authURL,
		UnauthNodeURL:       unauthURL,
		JWTSecret:           secret,
		AuthenticateInbound: cliCtx.Bool(authenticateInboundFlag.Name),
		Addr:                cliCtx.String(addrFlag.Name),
		NodeTimeout:         cliCtx.Duration(nodeTimeoutFlag.Name),
		Logger:              logrus.WithField("prefix", "proxy"),
		Store:               store,
	}

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		log.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		proxy.Stop(ctx)
	}()

	log.WithField("addr", proxy.Addr).Info("Starting guarded engine proxy")
	return proxy.ListenAndServe()
}

// readSecret loads the shared 32-byte hex secret from a file.
func readSecret(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read jwt secret file")
	}
	hexSecret := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(hexSecret, "0x") {
		hexSecret = "0x" + hexSecret
	}
	secret, err := hexutil.Decode(hexSecret)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode jwt secret")
	}
	if len(secret) != 32 {
		return nil, errors.Errorf("jwt secret must be 32 bytes, got %d", len(secret))
	}
	return secret, nil
}

func generateSecret(_ *cli.Context) error {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return errors.Wrap(err, "could not generate secret")
	}
	f, err := os.Create("jwt.secret")
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hexutil.Encode(secret)[2:]); err != nil {
		return err
	}
	log.Info("Wrote jwt.secret")
	return nil
}
