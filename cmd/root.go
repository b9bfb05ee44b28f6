package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/config"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/utils"
)

var (
	configPath    string
	server        string
	outputDir     string
	token         string
	userAgent     string
	noSpoof       bool
	corsMode      string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	timeout       time.Duration
	kaTimeout     time.Duration
	pollInterval  time.Duration
	s3Bucket      string
	s3Prefix      string
	s3Profile     string
	s3Region      string
	debug         bool

	cfg *config.Config
)

var YtpullVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "ytpull",
	Short:   "ytpull submits YouTube downloads to a job service and fetches the results",
	Version: YtpullVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		loaded, err := config.Load(configPath)
		if err != nil {
			output.PrintError(fmt.Sprintf("Error loading config: %v", err))
			os.Exit(1)
		}
		applyFlags(cmd, loaded)
		if loaded.Debug {
			utils.InitLogger(true)
		}
		if err := loaded.Validate(); err != nil {
			output.PrintError(fmt.Sprintf("Invalid configuration: %v", err))
			os.Exit(1)
		}
		cfg = loaded
		log.Debug().Str("op", "cmd/root").Msgf("using service %s", cfg.Server)
	},
}

// applyFlags overrides loaded settings with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		c.Server = server
	}
	if flags.Changed("output-dir") {
		c.OutputDir = outputDir
	}
	if flags.Changed("token") {
		c.Token = token
	}
	if flags.Changed("user-agent") {
		c.UserAgent = userAgent
	}
	if flags.Changed("no-spoof") {
		c.SpoofUserAgent = !noSpoof
	}
	if flags.Changed("cors-mode") {
		c.CORSMode = corsMode
	}
	if flags.Changed("proxy") {
		c.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		c.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		c.ProxyPassword = proxyPassword
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		if c.Headers == nil {
			c.Headers = map[string]string{}
		}
		c.Headers[k] = v
	}
	if flags.Changed("timeout") {
		c.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		c.KATimeout = kaTimeout
	}
	if flags.Changed("poll-interval") {
		c.PollInterval = pollInterval
	}
	if flags.Changed("s3-bucket") {
		c.S3.Bucket = s3Bucket
	}
	if flags.Changed("s3-prefix") {
		c.S3.Prefix = s3Prefix
	}
	if flags.Changed("s3-profile") {
		c.S3.Profile = s3Profile
	}
	if flags.Changed("s3-region") {
		c.S3.Region = s3Region
	}
	if debug {
		c.Debug = true
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/ytpull/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", "", "Job service base URL")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "d", "", "Directory for fetched files")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for the job service")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent for media requests (\"randomize\" picks one)")
	rootCmd.PersistentFlags().BoolVar(&noSpoof, "no-spoof", false, "Send the tool user agent instead of a desktop browser one")
	rootCmd.PersistentFlags().StringVar(&corsMode, "cors-mode", "", "Credential policy for media requests (default, omit-credentials)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Team: media'); can be specified multiple times")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", time.Second, "Interval between job status checks")
	rootCmd.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "Upload fetched files to this S3 bucket instead of the output directory")
	rootCmd.PersistentFlags().StringVar(&s3Prefix, "s3-prefix", "", "Key prefix for S3 uploads")
	rootCmd.PersistentFlags().StringVar(&s3Profile, "s3-profile", "", "AWS profile for S3 uploads")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "", "AWS region for S3 uploads")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
