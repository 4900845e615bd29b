package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thereceipt/printcounter/internal/api"
	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/controller"
	"github.com/thereceipt/printcounter/internal/history"
	"github.com/thereceipt/printcounter/internal/logger"
	"github.com/thereceipt/printcounter/internal/printer"
	"github.com/thereceipt/printcounter/internal/settings"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	s, err := settings.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Errorw("failed to load settings", "err", err)
		return 1
	}

	log := logger.Get(s.LogLevel)
	defer func() { _ = log.Sync() }()

	log.Infow("printcounter starting", "version", Version, "config_path", s.ConfigPath, "history_path", s.HistoryPath)

	if err := settings.EnsureWritableDir(filepath.Dir(s.ConfigPath)); err != nil {
		log.Errorw("configuration directory unwritable", "err", err)
		return 1
	}

	db, err := openHistory(s.HistoryPath)
	if err != nil {
		log.Errorw("failed to open print history", "path", s.HistoryPath, "err", err)
		return 1
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Warnw("failed to close print history", "err", cerr)
		}
	}()
	ledger := history.NewLedger(db)

	ctrl, err := controller.New(controller.Options{
		Printer:  printer.NewGateway(s.PrintTimeout, log.Named("printer")),
		Detector: newDetector(s),
		Store:    config.NewStore(s.ConfigPath, log.Named("config")),
		Ledger:   ledger,
		Logger:   log.Named("controller"),
	})
	if err != nil {
		log.Errorw("failed to start controller", "err", err)
		return 1
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ctrl.WatchDevice(ctx, s.PollInterval)

	server := api.NewServer(ctrl, ledger, log.Named("api"))
	log.Infow("api listening", "addr", s.ListenAddr)

	if err := server.Run(ctx, s.ListenAddr); err != nil {
		log.Errorw("api server failed", "addr", s.ListenAddr, "err", err)
		return 1
	}

	log.Infow("shutting down")
	return 0
}

func openHistory(path string) (*sql.DB, error) {
	if err := settings.EnsureWritableDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return history.InitDB(path)
}

func newDetector(s settings.Settings) printer.Detector {
	if s.Detector == settings.DetectorLsusb {
		return printer.LsusbDetector{}
	}
	return printer.USBDetector{}
}
