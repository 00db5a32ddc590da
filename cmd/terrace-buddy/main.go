package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/terrace-buddy/api"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/filter"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/notify"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/ws"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	membership, err := persistence.NewMembershipChecker(persister, globalConfig.RealtimeConfig.MembershipCacheSize, globalConfig.RealtimeConfig.MembershipCacheTTL)
	if err != nil {
		panic(err)
	}

	liveFilter, err := filter.Compile(globalConfig.NotificationsConfig.LiveFilter)
	if err != nil {
		globals.AppLogger.Error("invalid live filter", "filter", globalConfig.NotificationsConfig.LiveFilter, "error", err)
		os.Exit(1)
	}
	// the dispatcher works without the live channel, notifications are persisted until it is attached
	dispatcher := notify.NewDispatcher(persister, liveFilter)

	verifier, err := auth.NewVerifier(globalConfig)
	if err != nil {
		globals.AppLogger.Error("no authentication configured", "error", err)
		os.Exit(1)
	}

	retention, err := notify.NewRetention(persister, globalConfig.NotificationsConfig.Retention, globalConfig.NotificationsConfig.RetentionCron)
	if err != nil {
		globals.AppLogger.Error("invalid retention schedule", "schedule", globalConfig.NotificationsConfig.RetentionCron, "error", err)
		os.Exit(1)
	}
	retention.Start()
	defer func() {
		<-retention.Stop().Done()
	}()

	hub := ws.NewHub(globalConfig, persister, membership)

	router := mux.NewRouter()
	router.Handle("/ws", auth.Gate(verifier, auth.HandshakeToken, nil)(ws.NewHandler(hub))).Methods(http.MethodGet)
	api.New(globalConfig, persister, membership, dispatcher, hub).Register(router, verifier)

	listener, err := net.Listen("tcp", globalConfig.ServerConfig.Addr)
	if err != nil {
		globals.AppLogger.Error("could not listen", "addr", globalConfig.ServerConfig.Addr, "error", err)
		os.Exit(1)
	}
	err = dispatcher.Attach(hub.Broadcaster())
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	server := &http.Server{Handler: router}
	go func() {
		<-ctx.Done()
		globals.AppLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			globals.AppLogger.Error("could not shut down cleanly", "error", err)
		}
	}()

	globals.AppLogger.Info("listening", "addr", listener.Addr().String())
	if globalConfig.ServerConfig.SSLCert != "" && globalConfig.ServerConfig.SSLKey != "" {
		err = server.ServeTLS(listener, globalConfig.ServerConfig.SSLCert, globalConfig.ServerConfig.SSLKey)
	} else {
		err = server.Serve(listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Error("stopped listening", "error", err)
	}
	stop()
	<-hubDone
}
