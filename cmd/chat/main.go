package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"chatrelay/internal/client"
	"chatrelay/internal/logger"
	"chatrelay/internal/tui"
)

type cli struct {
	URL       string        `help:"Relay chat endpoint." default:"http://localhost:3030/chat" env:"CHAT_RELAY_URL"`
	Stream    bool          `help:"Read the reply incrementally as the relay streams it." env:"CHAT_STREAM"`
	WS        bool          `name:"ws" help:"Stream the reply over the relay's WebSocket endpoint."`
	Simulate  bool          `help:"Answer locally with a canned reply instead of calling the relay."`
	Reveal    bool          `help:"Type the greeting out word by word on startup."`
	WordDelay time.Duration `help:"Delay between revealed words." default:"80ms"`
	LogFile   string        `help:"Write client logs to this file." type:"path" env:"CHAT_LOG_FILE"`
	LogLevel  string        `help:"Client log level." default:"info" env:"LOG_LEVEL"`
}

func main() {
	godotenv.Load()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("chat"),
		kong.Description("Terminal chat client for the chat relay."),
		kong.UsageOnError(),
	)

	kctx.FatalIfErrorf(run(c))
}

func run(c cli) error {
	logOut := io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log, err := logger.NewWithWriter(logOut, c.LogLevel, "json")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var transport client.Transport
	switch {
	case c.Simulate:
		sim := client.NewSimulatedTransport()
		sim.WordDelay = c.WordDelay
		transport = sim
	case c.WS:
		transport = client.NewWSTransport(wsURL(c.URL))
	case c.Stream:
		st := client.NewStreamTransport(c.URL)
		defer st.Close()
		transport = st
	default:
		at := client.NewAtomicTransport(c.URL)
		defer at.Close()
		transport = at
	}

	opts := []client.Option{client.WithLogger(log)}
	if c.Reveal {
		opts = append(opts, client.WithoutGreeting())
	}
	session := client.NewSession(transport, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("url", c.URL).Bool("stream", c.Stream).Bool("ws", c.WS).Bool("simulate", c.Simulate).Msg("chat client started")

	return tui.Run(ctx, session, tui.Options{
		RevealGreeting: c.Reveal,
		Greeting:       client.DefaultGreeting,
		WordDelay:      c.WordDelay,
	})
}

// wsURL maps the relay's /chat endpoint to its WebSocket counterpart.
func wsURL(chatURL string) string {
	u := strings.TrimSuffix(chatURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if !strings.HasSuffix(u, "/ws") {
		u += "/ws"
	}
	return u
}
