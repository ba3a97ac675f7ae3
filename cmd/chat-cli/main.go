// Command chat-cli talks to the messaging service from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"gosocial-messaging/internal/chat/handler"
	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/syncclient"
)

const usage = `usage: chat-cli [global flags] <command> [flags]

commands:
  token    mint a token for a user (needs JWT_SECRET)
  send     send one message
  history  print one page of a conversation
  read     mark a conversation read
  inbox    print the conversation list
  watch    open a conversation, print updates and send stdin lines
  rebuild  recompute a conversation summary (HTTP only)
`

type globals struct {
	server   string
	grpcAddr string
	token    string
	asUser   string
	logLevel string
}

func main() {
	_ = godotenv.Load()

	var g globals
	fs := pflag.NewFlagSet("chat-cli", pflag.ExitOnError)
	fs.StringVar(&g.server, "server", envOr("GOSOCIAL_URL", "http://localhost:8080"), "REST base URL")
	fs.StringVar(&g.grpcAddr, "grpc", os.Getenv("GOSOCIAL_GRPC"), "gRPC address; when set the gRPC API is used")
	fs.StringVar(&g.token, "token", os.Getenv("GOSOCIAL_TOKEN"), "bearer token")
	fs.StringVar(&g.asUser, "as", "", "user id sent in X-User-ID (trusted gateway mode)")
	fs.StringVar(&g.logLevel, "log-level", "warn", "debug, info, warn or error")
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: common.ParseLevel(g.logLevel)}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, g, args[0], args[1:], logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, g globals, cmd string, args []string, logger *slog.Logger) error {
	if cmd == "token" {
		return runToken(args)
	}

	api, httpClient, closeFn, err := dial(g)
	if err != nil {
		return err
	}
	defer closeFn()

	switch cmd {
	case "send":
		return runSend(ctx, api, args)
	case "history":
		return runHistory(ctx, api, args)
	case "read":
		return runRead(ctx, api, args)
	case "inbox":
		return runInbox(ctx, api)
	case "watch":
		return runWatch(ctx, api, args, logger)
	case "rebuild":
		if httpClient == nil {
			return fmt.Errorf("rebuild is only available over HTTP")
		}
		return runRebuild(ctx, httpClient, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func dial(g globals) (syncclient.API, *syncclient.HTTPClient, func(), error) {
	if g.grpcAddr == "" {
		var opts []syncclient.Option
		if g.asUser != "" {
			opts = append(opts, syncclient.WithGatewayUser(g.asUser))
		}
		c := syncclient.NewHTTPClient(g.server, g.token, opts...)
		return c, c, func() {}, nil
	}

	conn, err := grpc.NewClient(g.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to dial %s: %w", g.grpcAddr, err)
	}
	api := syncclient.NewGRPCClient(handler.NewChatClient(conn, g.token))
	return api, nil, func() { conn.Close() }, nil
}

func runToken(args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ExitOnError)
	userID := fs.String("user", "", "user id to mint the token for")
	handle := fs.String("handle", "", "handle stored in the token")
	fs.Parse(args)

	cfg := config.LoadConfig()
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if err := common.ValidateUserID("user", *userID); err != nil {
		return err
	}
	token, err := common.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).GenerateToken(*userID, *handle)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runSend(ctx context.Context, api syncclient.API, args []string) error {
	fs := pflag.NewFlagSet("send", pflag.ExitOnError)
	to := fs.String("to", "", "receiver user id")
	clientID := fs.String("client-id", "", "idempotency key; retries with the same key store one message")
	fs.Parse(args)

	content := strings.Join(fs.Args(), " ")
	res, err := api.SendMessage(ctx, *to, content, *clientID)
	if err != nil {
		return err
	}
	if res.Duplicate {
		fmt.Println("already sent:", res.Message.ID)
		return nil
	}
	fmt.Println("sent:", res.Message.ID)
	return nil
}

func runHistory(ctx context.Context, api syncclient.API, args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ExitOnError)
	with := fs.String("with", "", "friend user id")
	page := fs.Int("page", 1, "page number, 1 is the newest")
	limit := fs.Int("limit", 0, "page size (server default when 0)")
	fs.Parse(args)

	p, err := api.ListMessages(ctx, *with, *page, *limit)
	if err != nil {
		return err
	}
	for _, m := range p.Messages {
		printMessage(m)
	}
	if p.HasMore {
		fmt.Printf("-- older messages on page %d --\n", p.Page+1)
	}
	return nil
}

func runRead(ctx context.Context, api syncclient.API, args []string) error {
	fs := pflag.NewFlagSet("read", pflag.ExitOnError)
	with := fs.String("with", "", "friend user id")
	fs.Parse(args)

	n, err := api.MarkRead(ctx, *with)
	if err != nil {
		return err
	}
	fmt.Printf("marked %d message(s) read\n", n)
	return nil
}

func runInbox(ctx context.Context, api syncclient.API) error {
	inbox, err := api.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range inbox.Conversations {
		printSummary(c)
	}
	fmt.Printf("%d unread\n", inbox.TotalUnread)
	return nil
}

func runRebuild(ctx context.Context, c *syncclient.HTTPClient, args []string) error {
	fs := pflag.NewFlagSet("rebuild", pflag.ExitOnError)
	with := fs.String("with", "", "friend user id")
	fs.Parse(args)

	s, err := c.RebuildConversation(ctx, *with)
	if err != nil {
		return err
	}
	printSummary(s)
	return nil
}

func runWatch(ctx context.Context, api syncclient.API, args []string, logger *slog.Logger) error {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	me := fs.String("me", "", "viewer user id")
	with := fs.String("with", "", "friend user id")
	poll := fs.Duration("poll", 3*time.Second, "poll interval")
	fs.Parse(args)

	if *me == "" || *with == "" {
		return fmt.Errorf("--me and --with are required")
	}

	shown := make(map[string]bool)
	lastDraft := ""
	cfg := syncclient.DefaultConversationConfig()
	cfg.PollInterval = *poll
	view := syncclient.NewConversationView(api, *me, *with, cfg, logger, func(s syncclient.Snapshot) {
		for _, e := range s.Entries {
			if e.State != syncclient.Persisted || shown[e.Message.ID] {
				continue
			}
			shown[e.Message.ID] = true
			printMessage(e.Message)
		}
		if s.Draft != "" && s.Draft != lastDraft {
			fmt.Fprintf(os.Stderr, "not sent, draft kept: %s\n", s.Draft)
		}
		lastDraft = s.Draft
	})
	if err := view.Open(ctx); err != nil {
		return err
	}
	defer view.Close()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := view.Send(ctx, line); err != nil && !errors.Is(err, syncclient.ErrEmptyDraft) {
				fmt.Fprintln(os.Stderr, "send failed:", err)
			}
		}
	}
}

func printMessage(m *models.Message) {
	receipt := ""
	if m.Read {
		receipt = " ✓✓"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderID, m.Content, receipt)
}

func printSummary(c *models.ConversationSummary) {
	name := c.FriendID
	if c.Friend != nil && c.Friend.Name != "" {
		name = c.Friend.Name
	}
	last := ""
	if c.LastMessage != nil {
		last = c.LastMessage.Content
	}
	fmt.Printf("%-20s %3d unread  %s\n", name, c.UnreadCount, last)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
