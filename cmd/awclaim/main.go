// Command awclaim is the session-claim demo client.
//
// It receives deep links, extracts a session token and claims the session on the
// configured verification server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/awclaim/internal/app"
	"github.com/and161185/awclaim/internal/claimclient"
	"github.com/and161185/awclaim/internal/config"
	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/links"
	"github.com/and161185/awclaim/internal/logging"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/settings"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, `awclaim CLI
Usage:
  awclaim [-server URL] [-timeout D] [-policy independent|singleflight] [-log-level L] <cmd> [args]

Commands:
  version
  open       <url>                        handle one deep link
  listen     [-url <initial>] [-file f]   handle deep links, one per line (default stdin)
  claim      -token <token>               claim a manually entered token
  check                                   look for a pending claim for this network
  settings   show | set-server <url> | reset
`)
}

// fixedServer pins the server URL for one run (-server flag or env).
type fixedServer string

func (f fixedServer) ServerURL() string { return string(f) }

// env bundles what the subcommands need.
type env struct {
	cfg      *config.Client
	log      *zap.Logger
	settings *settings.Service
	out      io.Writer
	errOut   io.Writer
}

func (e *env) serverSource() app.ServerURLSource {
	if e.cfg.ServerURL != "" {
		return fixedServer(e.cfg.ServerURL)
	}
	return e.settings
}

func (e *env) controller() (*app.Controller, error) {
	policy, err := claimclient.ParsePolicy(e.cfg.Policy)
	if err != nil {
		return nil, err
	}
	cl := claimclient.New(claimclient.Options{
		HTTPClient: &http.Client{Timeout: e.cfg.Timeout},
		Logger:     e.log,
		Policy:     policy,
		DeviceID:   e.cfg.DeviceID,
		AppVersion: e.cfg.AppVersion,
	})
	return app.NewController(cl, e.serverSource(), app.NewTextPresenter(e.out), e.log), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("awclaim", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() { usage(errOut) }

	cfg, rest, err := config.LoadClient(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, err)
		return 2
	}
	if len(rest) < 1 {
		usage(errOut)
		return 2
	}

	logger, err := logging.New(cfg.LogLevel, cfg.DevLog)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	e := &env{
		cfg:      cfg,
		log:      logger,
		settings: settings.NewService(settings.DefaultFileStore(), config.DefaultServerURL),
		out:      out,
		errOut:   errOut,
	}

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "version":
		fmt.Fprintf(out, "awclaim %s (%s)\n", version, buildDate)
		return 0
	case "open":
		return cmdOpen(ctx, e, cmdArgs)
	case "listen":
		return cmdListen(ctx, e, cmdArgs, in)
	case "claim":
		return cmdClaim(ctx, e, cmdArgs)
	case "check":
		return cmdCheck(ctx, e)
	case "settings":
		return cmdSettings(e, cmdArgs)
	default:
		usage(errOut)
		return 2
	}
}

func cmdOpen(ctx context.Context, e *env, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(e.errOut, "need exactly one url")
		return 2
	}
	c, err := e.controller()
	if err != nil {
		return fail(e, err)
	}
	res, err := c.HandleURL(ctx, args[0])
	if errors.Is(err, errs.ErrNoToken) {
		// links without a session are ignored
		return 0
	}
	return exitFor(res)
}

func cmdListen(ctx context.Context, e *env, args []string, in io.Reader) int {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	initial := fs.String("url", "", "cold-start url")
	file := fs.String("file", "-", "read urls from file ('-' = stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	r := in
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fail(e, err)
		}
		defer f.Close()
		r = f
	}

	c, err := e.controller()
	if err != nil {
		return fail(e, err)
	}
	if err := c.Run(ctx, &links.LineSource{Initial: *initial, R: r}); err != nil && !errors.Is(err, context.Canceled) {
		return fail(e, err)
	}
	return 0
}

func cmdClaim(ctx context.Context, e *env, args []string) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	token := fs.String("token", "", "session token, e.g. AWVF-YYYY-XXXX-NNNN-XXXX")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c, err := e.controller()
	if err != nil {
		return fail(e, err)
	}
	res, err := c.SubmitToken(ctx, *token)
	if errors.Is(err, errs.ErrNoToken) {
		fmt.Fprintln(e.errOut, "need -token")
		return 2
	}
	return exitFor(res)
}

func cmdCheck(ctx context.Context, e *env) int {
	c, err := e.controller()
	if err != nil {
		return fail(e, err)
	}
	res, found, err := c.CheckPending(ctx)
	if err != nil {
		return 1
	}
	if !found {
		return 0
	}
	return exitFor(res)
}

func cmdSettings(e *env, args []string) int {
	if len(args) == 0 {
		args = []string{"show"}
	}
	switch args[0] {
	case "show":
		saved, err := e.settings.Lookup(settings.KeyServerURL)
		switch {
		case errors.Is(err, errs.ErrSettingNotFound):
			fmt.Fprintf(e.out, "server_url: %s (default)\n", e.settings.Default())
		case err != nil:
			return fail(e, err)
		default:
			fmt.Fprintf(e.out, "server_url: %s (saved)\n", saved)
			fmt.Fprintf(e.out, "default:    %s\n", e.settings.Default())
		}
		if e.cfg.ServerURL != "" {
			fmt.Fprintf(e.out, "override:   %s\n", e.cfg.ServerURL)
		}
		return 0
	case "set-server":
		if len(args) != 2 {
			fmt.Fprintln(e.errOut, "need a url")
			return 2
		}
		if err := e.settings.SetServerURL(args[1]); err != nil {
			return fail(e, err)
		}
		fmt.Fprintf(e.out, "saved server_url: %s\n", args[1])
		return 0
	case "reset":
		if err := e.settings.Reset(); err != nil {
			return fail(e, err)
		}
		fmt.Fprintf(e.out, "server_url reset to %s\n", e.settings.Default())
		return 0
	default:
		usage(e.errOut)
		return 2
	}
}

func exitFor(res model.ClaimResult) int {
	if res.Kind == model.ClaimClaimed {
		return 0
	}
	return 1
}

func fail(e *env, err error) int {
	e.log.Error("command failed", zap.Error(err))
	fmt.Fprintln(e.errOut, err)
	return 1
}
