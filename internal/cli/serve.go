package cli

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutu-network/swimshell/internal/api"
	"github.com/tutu-network/swimshell/internal/config"
	"github.com/tutu-network/swimshell/internal/observability"
	"github.com/tutu-network/swimshell/internal/swim"
	"github.com/tutu-network/swimshell/internal/swimshell"
	"github.com/tutu-network/swimshell/internal/transport/udp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a swimd node until terminated",
	RunE:  runServe,
}

var (
	serveConfigPath string
	serveAPIAddr    string
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to a TOML config file (defaults applied when omitted)")
	serveCmd.Flags().StringVar(&serveAPIAddr, "api-addr", "127.0.0.1:8080", "Address for the HTTP status surface")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		loaded, err := config.Load(serveConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	self := swimshell.Node{Address: cfg.BindAddress, Port: cfg.BindPort, UID: uuid.NewString()}

	protocolPeriod, pingTimeout, suspicionTTL, suspicionFloor := cfg.Protocol.ProtocolDurations()
	engineCfg := swim.Config{
		IndirectFanout:          cfg.Protocol.IndirectFanout,
		Lambda:                  cfg.Protocol.Lambda,
		ProtocolPeriod:          protocolPeriod,
		PingTimeout:             pingTimeout,
		SuspicionTTL:            suspicionTTL,
		SuspicionFloor:          suspicionFloor,
		ExtensionUnreachability: cfg.Protocol.ExtensionUnreachability,
	}
	protocolEngine := swim.NewEngine(self, engineCfg)

	logger := log.New(os.Stderr, "", log.LstdFlags)
	network, err := udp.Listen(self, logger)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	contacts := make([]swimshell.Node, 0, len(cfg.InitialContactPoints))
	for _, addr := range cfg.InitialContactPoints {
		contacts = append(contacts, swimshell.Node{Address: addr, Port: cfg.BindPort})
	}

	shell := swimshell.New(swimshell.Config{
		Self:                    self,
		InitialContactPoints:    contacts,
		ExtensionUnreachability: cfg.Protocol.ExtensionUnreachability,
		IndirectFanout:          cfg.Protocol.IndirectFanout,
		Engine:                  protocolEngine,
		Network:                 network,
		Clock:                   swimshell.NewClock(),
		Recorder:                observability.PrometheusRecorder{},
		Logger:                  logger,
		RunProtocolLoop:         true,
		OnChange: func(change swimshell.MemberStatusChange) {
			logger.Printf("[membership] %s:%d -> %s", change.Member.Node.Address, change.Member.Node.Port, change.Member.Status.Kind)
		},
	})
	defer shell.Shutdown()

	network.Serve(shell)
	defer network.Close()

	server := api.NewServer(shell)
	server.EnableMetrics()
	httpServer := &http.Server{Addr: serveAPIAddr, Handler: server.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("[api] serve error: %v", err)
		}
	}()
	defer httpServer.Close()

	logger.Printf("[swimd] listening on %s:%d, api on %s", self.Address, self.Port, serveAPIAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("[swimd] shutting down")
	return nil
}
