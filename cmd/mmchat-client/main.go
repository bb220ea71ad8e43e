package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"

	"github.com/ageniuscoder/mmchat/chatcore/internal/chat"
	"github.com/ageniuscoder/mmchat/chatcore/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	conversation := flag.String("conversation", "", "conversation id to join")
	user := flag.String("user", "", "log in as this user when CHAT_TOKEN is not set")
	password := flag.String("password", "", "password for -user")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error Loading Env file: %v", err)
	}
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	token := cfg.Token
	if token == "" {
		if *user == "" {
			log.Fatal("set CHAT_TOKEN or pass -user and -password")
		}
		var err error
		if token, err = login(ctx, cfg.ServerURL, *user, *password); err != nil {
			log.Fatalf("login: %v", err)
		}
	}
	tokens := chat.StaticToken(token)

	me, err := chat.NewIdentityClient(cfg.ServerURL, tokens, nil).Me(ctx)
	if err != nil {
		log.Fatalf("resolve account: %v", err)
	}
	fmt.Printf("signed in as %s (%s)\n", me.Username, me.ID)

	client := chat.NewClient(chat.Config{
		ServerURL:            cfg.ServerURL,
		ReconnectDelay:       cfg.ReconnectDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		TypingIdle:           cfg.TypingIdle,
		TypingTTL:            cfg.TypingTTL,
		PageSize:             cfg.PageSize,
		Logger:               logger,
	}, tokens, me.ID)
	roster := chat.NewRosterClient(cfg.ServerURL, tokens, nil)
	switcher := chat.NewSwitcher(client)
	defer switcher.Close()

	t := &terminal{out: os.Stdout, self: me.ID}
	if *conversation != "" {
		t.join(ctx, switcher, *conversation)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := t.command(ctx, switcher, roster, line); quit {
				return
			}
		}
	}
}

// login exchanges credentials for a bearer token.
func login(ctx context.Context, base, user, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Token string `json:"token"`
		Error any    `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %v", resp.Status, out.Error)
	}
	return out.Token, nil
}

type terminal struct {
	out  io.Writer
	self string

	mu      sync.Mutex
	printed map[string]bool
	typing  string
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) command(ctx context.Context, sw *chat.Switcher, roster *chat.RosterClient, line string) bool {
	line = strings.TrimSpace(line)
	s := sw.Active()
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/join "):
		t.join(ctx, sw, strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
	case s == nil:
		t.printf("join a conversation first: /join ID\n")
	case line == "/more":
		fetched, err := s.LoadMore(ctx)
		if err == nil && !fetched && !s.Cursor().HasMore {
			t.printf("-- no older messages --\n")
		}
		t.reprint(s)
	case line == "/members":
		conv, err := roster.Members(ctx, s.ConversationID())
		if err != nil {
			t.printf("! %v\n", err)
			return false
		}
		for _, m := range conv.Members {
			mark := " "
			if slices.Contains(s.Online(), m.AccountID) {
				mark = "*"
			}
			t.printf("%s %s (%s)\n", mark, m.Name, m.Role)
		}
	default:
		if !s.Send(line) {
			t.printf("! not sent\n")
		}
	}
	return false
}

func (t *terminal) join(ctx context.Context, sw *chat.Switcher, id string) {
	s, err := sw.Switch(ctx, id)
	if err != nil {
		t.printf("! could not join %s: %v\n", id, err)
		return
	}
	t.mu.Lock()
	t.printed = map[string]bool{}
	t.typing = ""
	t.mu.Unlock()
	t.printf("-- joined %s --\n", id)

	go func() {
		for range s.Changes() {
			t.render(s)
		}
	}()
	go func() {
		for n := range s.Notices() {
			t.printf("! %s\n", n.Text)
		}
	}()
	t.render(s)
}

// render prints messages not shown yet and the typing line when it changes.
func (t *terminal) render(s *chat.Session) {
	msgs := s.Messages()
	typing := strings.Join(s.Typing(), ", ")

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		if t.printed[m.ID] {
			continue
		}
		t.printed[m.ID] = true
		who := m.Sender.Name
		if m.SenderID == t.self {
			who = "you"
		}
		fmt.Fprintf(t.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
	}
	for _, p := range s.Pending() {
		if t.printed[p.LocalID] {
			continue
		}
		t.printed[p.LocalID] = true
		fmt.Fprintf(t.out, "[....] you: %s (sending)\n", p.Content)
	}
	if typing != t.typing {
		t.typing = typing
		if typing != "" {
			fmt.Fprintf(t.out, "   %s typing...\n", typing)
		}
	}
}

// reprint shows the whole view, used after older history was prepended.
func (t *terminal) reprint(s *chat.Session) {
	t.mu.Lock()
	t.printed = map[string]bool{}
	t.mu.Unlock()
	t.render(s)
}
