// Package main provides the groupbot entry point: a group-chat command bot
// speaking the OneBot v11 websocket protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"groupbot/internal/bot"
	"groupbot/internal/config"
	"groupbot/internal/logger"
	"groupbot/internal/onebot"
	"groupbot/internal/plugin"
	"groupbot/internal/plugins/controller"
	"groupbot/internal/plugins/debugger"
	"groupbot/internal/plugins/helper"
	"groupbot/internal/plugins/schedule"
)

var (
	configPath string
	logLevel   string
	logFile    string
	version    = "0.1.0" // This could be set at build time
)

// rootCmd runs the bot when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "groupbot",
	Short: "groupbot - group-chat command bot",
	Long: `Groupbot connects to a OneBot v11 websocket endpoint and dispatches
group-chat command lines to its plugins.`,
	RunE:          runBot,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("groupbot v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	for _, name := range []string{"config", "log-level", "log-file"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
	viper.SetEnvPrefix("GROUPBOT")
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func runBot(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := onebot.NewClient(cfg.Bot.WebsocketURL, cfg.Bot.AccessToken)

	reg := plugin.NewRegistry()
	sched := schedule.New(client.SendGroupMessage)
	for _, p := range []plugin.Plugin{
		controller.New(reg, cfg),
		debugger.New(),
		helper.New(reg, cfg),
		sched,
	} {
		if err := reg.Register(p); err != nil {
			return fmt.Errorf("register plugin: %w", err)
		}
	}

	b := bot.New(cfg, reg, client)
	if err := b.Setup(); err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client.OnGroupMessage(func(msg *onebot.GroupMessage) { b.HandleMessage(ctx, msg) })
	client.OnConnect(func(reconnect bool) {
		text := "groupbot is online"
		if reconnect {
			text = "groupbot reconnected"
		}
		if err := b.Announce(ctx, text); err != nil {
			logger.Warn("Announcement failed", "error", err)
		}
	})

	logger.Info("Starting groupbot", "version", version, "url", cfg.Bot.WebsocketURL)
	err = client.Run(ctx)

	b.SaveAll()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Shut down")
	return nil
}
