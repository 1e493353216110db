package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/transfer"
	"github.com/telsin/riptide/internal/utils"
)

var (
	outputPath     string
	connections    int
	chunkSizeStr   string
	rateLimitStr   string
	retryCount     int
	connectTimeout time.Duration
	readTimeout    time.Duration
	kaTimeout      time.Duration
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	headers        []string
	sha256sum      string
	gitDepth       int
	configFile     string
	quiet          bool
	jsonOutput     bool
	debug          bool
)

var RiptideVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "riptide [URL]",
	Short:   "Riptide is a fast resumable CLI download manager",
	Version: RiptideVersion,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output.InitLogger(debug)
		if err := applyConfigFile(cmd); err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		url := args[0]
		if _, err := u.Parse(url); err != nil {
			output.PrintError("Invalid URL format")
			os.Exit(1)
		}
		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Check if proxy URL contains auth
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			// Remove auth from URL to send in clientConfig
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		headerMap, err := utils.ParseHeaderArgs(headers)
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		chunkSize, err := utils.ParseSize(chunkSizeStr)
		if err != nil {
			output.PrintError(fmt.Sprintf("Invalid chunk size %q", chunkSizeStr))
			os.Exit(1)
		}
		var rateLimit int64
		if rateLimitStr != "" {
			rateLimit, err = utils.ParseSize(rateLimitStr)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid rate limit %q", rateLimitStr))
				os.Exit(1)
			}
		}
		spec := &utils.TransferSpec{
			ID:          uuid.New().String()[:8],
			Type:        utils.DetermineTransferType(url),
			URL:         url,
			OutputPath:  outputPath,
			Connections: connections,
			ChunkSize:   chunkSize,
			RateLimit:   rateLimit,
			RetryCount:  retryCount,
			SHA256:      sha256sum,
			GitDepth:    gitDepth,
			HTTPClientConfig: utils.HTTPClientConfig{
				ConnectTimeout: connectTimeout,
				ReadTimeout:    readTimeout,
				KATimeout:      kaTimeout,
				ProxyURL:       proxyURL,
				ProxyUsername:  proxyUsername,
				ProxyPassword:  proxyPassword,
				UserAgent:      userAgent,
				Headers:        headerMap,
				HighThreadMode: connections > 8,
			},
			Metadata: make(map[string]any),
		}
		var observers []progress.Observer
		switch {
		case jsonOutput:
			observers = append(observers, progress.NewJSONEmitter(os.Stdout))
		case !quiet:
			observers = append(observers, progress.NewConsoleRenderer())
		}
		tracker := progress.NewTracker(spec.ID, observers...)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		tracker.Start()
		err = transfer.Run(ctx, spec, tracker)
		tracker.Finish(err)
		if err != nil {
			var checksumErr *utils.ChecksumError
			switch {
			case errors.Is(err, context.Canceled):
				output.PrintWarning("Transfer interrupted, partial data kept for resume")
			case errors.As(err, &checksumErr):
				output.PrintError("Checksum verification failed, downloaded file kept for inspection")
			case quiet:
				output.PrintError(fmt.Sprintf("Transfer failed: %v", err))
			}
			os.Exit(1)
		}
		if !quiet && !jsonOutput {
			output.PrintInfo(fmt.Sprintf("Saved to %s", spec.OutputPath))
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyConfigFile fills in flag values from the YAML defaults file. Flags the
// user set explicitly always win over file values.
func applyConfigFile(cmd *cobra.Command) error {
	path := configFile
	explicit := cmd.Flags().Changed("config")
	if path == "" {
		path = utils.DefaultConfigPath()
	}
	cfg, err := utils.LoadConfigFile(path, explicit)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	if cfg.Connections > 0 && !cmd.Flags().Changed("connections") {
		connections = cfg.Connections
	}
	if cfg.ChunkSize != "" && !cmd.Flags().Changed("chunk-size") {
		chunkSizeStr = cfg.ChunkSize
	}
	if cfg.RateLimit != "" && !cmd.Flags().Changed("limit") {
		rateLimitStr = cfg.RateLimit
	}
	if cfg.Retries > 0 && !cmd.Flags().Changed("retries") {
		retryCount = cfg.Retries
	}
	if cfg.UserAgent != "" && !cmd.Flags().Changed("user-agent") {
		userAgent = cfg.UserAgent
	}
	if cfg.Proxy != "" && !cmd.Flags().Changed("proxy") {
		proxyURL = cfg.Proxy
	}
	if cfg.ConnectTimeout != "" && !cmd.Flags().Changed("connect-timeout") {
		d, err := time.ParseDuration(cfg.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("error parsing config file: bad connect_timeout: %v", err)
		}
		connectTimeout = d
	}
	if cfg.ReadTimeout != "" && !cmd.Flags().Changed("read-timeout") {
		d, err := time.ParseDuration(cfg.ReadTimeout)
		if err != nil {
			return fmt.Errorf("error parsing config file: bad read_timeout: %v", err)
		}
		readTimeout = d
	}
	for k, v := range cfg.Headers {
		headers = append(headers, fmt.Sprintf("%s: %s", k, v))
	}
	return nil
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (Riptide infers file name if not provided)")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of connections per download (above 8 enables high-thread-mode)")
	rootCmd.Flags().StringVar(&chunkSizeStr, "chunk-size", "4MB", "Chunk size for multi-connection downloads (eg. 4MB, 512KB)")
	rootCmd.Flags().StringVarP(&rateLimitStr, "limit", "l", "", "Throughput cap across all connections (eg. 5MB, 500KB)")
	rootCmd.Flags().IntVarP(&retryCount, "retries", "r", utils.DefaultRetryCount, "Retry attempts per chunk before the transfer fails")
	rootCmd.Flags().DurationVar(&connectTimeout, "connect-timeout", utils.DefaultConnectTimeout, "Connection timeout (eg. 5s, 1m)")
	rootCmd.Flags().DurationVar(&readTimeout, "read-timeout", utils.DefaultReadTimeout, "Per-read stall timeout (eg. 30s, 2m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	// flags without shorthand
	rootCmd.Flags().StringVar(&sha256sum, "sha256", "", "Expected SHA-256 of the finished file")
	rootCmd.Flags().IntVar(&gitDepth, "depth", 0, "Git clone depth (0 for full history)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to YAML defaults file (default ~/.riptide.yaml)")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit progress as JSON lines on stdout")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newCleanCmd())
}
