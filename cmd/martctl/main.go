// Command martctl drives a Happily Mart session from the terminal. It keeps the
// cookie jar and local storage on disk, so a login survives between runs the
// same way it survives a browser restart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/apiclient"
	"github.com/jatinkumar-gitdev/happily-mart/cookies"
	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
	"github.com/jatinkumar-gitdev/happily-mart/internal/obs"
	"github.com/jatinkumar-gitdev/happily-mart/session"
	"github.com/jatinkumar-gitdev/happily-mart/tokencache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const usage = `usage: martctl [flags] <command> [args]

commands:
  login <email> <password>   sign in
  me                         revalidate the session and print the profile
  status                     print the local session state without calling the backend
  refresh                    exchange the refresh cookie for a new access token
  deals                      list deals
  deal <title> <price>       create a deal
  profile                    update profile fields (-name, -city, -company)
  logout                     sign out

flags:
`

type options struct {
	admin      bool
	remember   bool
	configPath string
	stateFile  string
	verbose    bool
	metrics    bool

	name    string
	city    string
	company string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "martctl: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("martctl", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.BoolVar(&opts.admin, "admin", false, "use the admin namespace")
	fs.BoolVar(&opts.remember, "remember", false, "keep the session for 30 days (login)")
	fs.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	fs.StringVar(&opts.stateFile, "state", "", "state file (defaults to the configured STATE_FILE)")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.BoolVar(&opts.metrics, "metrics", false, "print client metrics on exit")
	fs.StringVar(&opts.name, "name", "", "profile name (profile)")
	fs.StringVar(&opts.city, "city", "", "profile city (profile)")
	fs.StringVar(&opts.company, "company", "", "profile company (profile)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	env := cfg.GetEnv()
	if !opts.verbose {
		env = "production"
	}
	obs.SetupLogger(env, os.Stderr)
	if opts.stateFile == "" {
		opts.stateFile = cfg.GetStateFile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := newApp(cfg, opts, out)
	if err != nil {
		return err
	}
	cmdErr := app.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
	if err := app.close(); err != nil {
		log.Warn().Err(err).Msg("Failed to save state")
	}
	return cmdErr
}

type app struct {
	opts     options
	out      io.Writer
	jar      *cookies.Jar
	tokens   *tokencache.Cache
	api      *apiclient.Client
	session  *session.Manager
	registry *prometheus.Registry
}

func newApp(cfg config.Config, opts options, out io.Writer) (*app, error) {
	a := &app{opts: opts, out: out, jar: cookies.New(), registry: prometheus.NewRegistry()}
	if err := loadState(opts.stateFile, a.jar); err != nil {
		return nil, err
	}
	local, err := tokencache.OpenFileStorage(localStoragePath(opts.stateFile))
	if err != nil {
		return nil, err
	}

	ns, apiCfg, policy := tokencache.UserNamespace(), apiclient.UserConfig(cfg.GetAPIURL()), session.UserPolicy()
	if opts.admin {
		ns, apiCfg, policy = tokencache.AdminNamespace(), apiclient.AdminConfig(cfg.GetAdminAPIURL()), session.AdminPolicy()
	}
	apiCfg.Jar = a.jar
	apiCfg.Timeout = cfg.GetHTTPTimeout()
	policy.FreshnessWindow = cfg.GetRevalidateWindow()

	a.tokens = tokencache.New(ns, a.jar,
		tokencache.WithLocalStorage(local),
		tokencache.WithSecure(cfg.IsProduction()),
		tokencache.WithExpiry(cfg.GetRememberedTokenExpiry(), cfg.GetSessionTokenExpiry()),
	)

	metrics := obs.NewClientMetrics(a.registry)
	clientOpts := []apiclient.Option{
		apiclient.WithMetrics(metrics),
		apiclient.WithNavigator(apiclient.NavigatorFunc(func(target string) {
			fmt.Fprintf(a.out, "session expired, sign in again (%s)\n", target)
		})),
	}
	if rps := cfg.GetRateLimitRPS(); rps > 0 {
		clientOpts = append(clientOpts, apiclient.WithRateLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}
	a.api, err = apiclient.New(apiCfg, a.tokens, clientOpts...)
	if err != nil {
		return nil, err
	}
	a.session = session.NewManager(policy, a.api, a.tokens, session.WithMetrics(metrics))
	return a, nil
}

func (a *app) close() error {
	if a.opts.metrics {
		a.printMetrics()
	}
	return saveState(a.opts.stateFile, a.jar)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "me":
		return a.me(ctx)
	case "status":
		return a.status()
	case "refresh":
		return a.refresh(ctx)
	case "deals":
		return a.listDeals(ctx)
	case "deal":
		return a.createDeal(ctx, args)
	case "profile":
		return a.updateProfile(ctx)
	case "logout":
		a.session.Logout(ctx)
		fmt.Fprintln(a.out, "logged out")
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) printMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, l := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", l.GetName(), l.GetValue())
			}
			fmt.Fprintf(a.out, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}

func formatExpiry(exp time.Time) string {
	left := time.Until(exp).Round(time.Second)
	if left <= 0 {
		return fmt.Sprintf("%s (expired)", exp.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", exp.Format(time.RFC3339), left)
}
