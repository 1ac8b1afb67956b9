// Package cli implements feedctl, the terminal client of the post API. It wires
// the client-side stores together and renders their state as text.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"minilink/internal/config"
	"minilink/internal/engagement"
	"minilink/internal/feed"
	"minilink/internal/feedsource"
	"minilink/internal/notifications"
	"minilink/internal/observability"
	"minilink/internal/posts"
	"minilink/internal/profile"
	"minilink/internal/session"
	"minilink/internal/storage"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

const usage = `usage: feedctl <command> [args]

account:
  register -name N -email E -password P
  login -email E -password P
  logout
  whoami

feed:
  feed                 refresh and show the feed
  post <text>          publish a post
  like <post-id>       like or unlike a post
  comment <post-id> <text>
  comments <post-id>   show or hide the comments of a post
  myposts              list posts you published from this device
  rm <post-id>         forget one of your posts on this device

profile:
  profile show
  profile set [-name N] [-surname S] [-email E] [-phone P] [-description D]
  profile image [-cover] <file>

other:
  watch                print changes made by other feedctl processes
  shell                read commands from standard input
`

// App holds the client-side stores of one feedctl process.
type App struct {
	cfg        *config.Config
	store      storage.Store
	bus        *notifications.Bus
	relay      *notifications.Relay
	session    *session.Store
	client     *feedsource.Client
	posts      *posts.Collection
	engagement *engagement.Store
	feed       *feed.Reconciler
	profile    *profile.Store

	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// New wires the stores over store. When store is Redis-backed, changes are also
// relayed to other processes sharing it. The caller keeps ownership of store.
func New(ctx context.Context, cfg *config.Config, store storage.Store, in io.Reader, out io.Writer) (*App, error) {
	a := &App{
		cfg:    cfg,
		store:  store,
		bus:    notifications.NewBus(nil),
		in:     in,
		out:    out,
		logger: observability.Component("feedctl"),
	}

	a.session = session.New(store)
	timeout := time.Duration(cfg.APITimeoutSeconds) * time.Second
	a.client = feedsource.NewClient(cfg.APIBaseURL, timeout, a.session)

	coll, err := posts.Open(ctx, store, a.bus)
	if err != nil {
		return nil, err
	}
	a.posts = coll
	a.engagement = engagement.New(store)
	a.feed = feed.New(a.client, a.engagement, a.posts, a.bus)
	a.profile = profile.New(store, cfg.ProfileImageMaxBytes, a.bus)

	if rs, ok := store.(*storage.RedisStore); ok {
		a.relay = notifications.NewRelay(rs.Client(), a.bus)
		if err := a.relay.Start(ctx); err != nil {
			a.logger.WarnContext(ctx, "cross-process updates disabled", slog.String("error", err.Error()))
			a.relay = nil
		}
	}
	return a, nil
}

// Close releases the subscriptions held by the app.
func (a *App) Close() {
	a.feed.Close()
}

// Run executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "register":
		err = a.register(ctx, rest)
	case "login":
		err = a.login(ctx, rest)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami(ctx)
	case "feed":
		err = a.showFeed(ctx)
	case "post":
		err = a.post(ctx, rest)
	case "like":
		err = a.like(ctx, rest)
	case "comment":
		err = a.comment(ctx, rest)
	case "comments":
		err = a.toggleComments(ctx, rest)
	case "myposts":
		err = a.myPosts(ctx)
	case "rm":
		err = a.remove(ctx, rest)
	case "profile":
		err = a.profileCmd(ctx, rest)
	case "watch":
		err = a.watch(ctx)
	case "shell":
		err = a.shell(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return explain(err)
}

// explain adds the next step to errors the user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, feedsource.ErrAuthFailure):
		return fmt.Errorf("%w; sign in again with `feedctl login`", err)
	case errors.Is(err, feedsource.ErrTransport):
		return fmt.Errorf("%w; check that the API at API_BASE_URL is running", err)
	}
	return err
}

// shell runs one command per input line until EOF or "exit". Transient view
// state such as comment visibility lasts for the whole session.
func (a *App) shell(ctx context.Context) error {
	scanner := bufio.NewScanner(a.in)
	fmt.Fprint(a.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, "shell"):
			fmt.Fprintln(a.out, "already in a shell")
		default:
			if err := a.Run(ctx, splitArgs(line)); err != nil && !errors.Is(err, ErrUsage) {
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(a.out, "> ")
	}
	return scanner.Err()
}

// splitArgs splits a shell line on whitespace. Double quotes group words.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}
