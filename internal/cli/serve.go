package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/triagegate/internal/config"
	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/discord"
	"github.com/lucasnoah/triagegate/internal/triage"
	"github.com/lucasnoah/triagegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Start the HTTP server that receives GitHub "issues" webhooks, runs each
opened issue through the triage pipeline, and collects human decisions.

When Discord is configured, decision requests are posted to the channel and
answered with buttons (POST /interactions). Otherwise they are logged and
answered with POST /api/decisions/<issue>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("  - %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}
		if cfg.GitHub.WebhookSecret == "" {
			cmd.PrintErrln("warning: GITHUB_WEBHOOK_SECRET not set, webhook signatures will not be verified")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var (
		pub      decision.Publisher
		notifier triage.Notifier
		channel  *discord.Channel
		verifier *discord.Verifier
	)
	if cfg.Discord.Enabled() || cfg.Discord.WebhookURL != "" {
		client := discord.NewClient(discord.ClientConfig{
			Token:             cfg.Discord.BotToken,
			RequestsPerSecond: cfg.Discord.RequestsPerSecond,
			Logger:            a.log,
		})
		notifier = discord.NewNotifier(client, cfg.Discord.WebhookURL, cfg.Discord.ChannelID)
		if cfg.Discord.Enabled() {
			channel = discord.NewChannel(client, discord.ChannelConfig{
				ChannelID: cfg.Discord.ChannelID,
				Timeout:   cfg.Triage.DecisionTimeout,
				Logger:    a.log,
			})
			pub = channel
			if cfg.Discord.PublicKey != "" {
				verifier, err = discord.NewVerifier(cfg.Discord.PublicKey)
				if err != nil {
					return err
				}
			} else {
				a.log.Warn("DISCORD_PUBLIC_KEY not set, /interactions is disabled")
			}
		}
	}
	apiDecisions := pub == nil
	if apiDecisions {
		if cfg.Server.APIToken == "" {
			return fmt.Errorf("no decision channel: configure discord or set server.api_token (TRIAGEGATE_API_TOKEN)")
		}
		a.log.Info("no interactive channel configured, decisions are taken over the HTTP API")
		pub = web.NewAPIPublisher(a.log)
	}

	broker := a.broker(pub)
	if channel != nil {
		channel.Bind(broker)
	}
	pipeline := a.pipeline(broker, notifier, nil)

	dispatcher := web.NewDispatcher(pipeline, a.store, cfg.Server.MaxConcurrent, nil, a.log)
	opts := []web.Option{
		web.WithLogger(a.log),
		web.WithStore(a.store),
		web.WithPending(broker),
	}
	apiToken := ""
	if apiDecisions {
		opts = append(opts, web.WithResolver(broker))
		apiToken = cfg.Server.APIToken
	}
	if channel != nil && verifier != nil {
		opts = append(opts, web.WithInteractions(channel, verifier))
	}
	srv := web.NewServer(web.Config{
		Port:          cfg.Server.Port,
		WebhookSecret: cfg.GitHub.WebhookSecret,
		APIToken:      apiToken,
		Version:       version,
	}, dispatcher, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func init() {
	serveCmd.Flags().Int("port", config.DefaultPort, "Port to listen on (overrides server.port)")
}
