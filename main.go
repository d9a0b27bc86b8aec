package main

import (
	"chatgate/app/client/kvstore"
	"chatgate/app/client/llm"
	"chatgate/app/config"
	"chatgate/app/server"
	"chatgate/app/service/admission"
	"chatgate/app/service/conversation"
	"chatgate/app/service/engine"
	"chatgate/app/service/language"
	"chatgate/app/service/queue"
	"chatgate/app/service/tokencount"
	"chatgate/app/util/mylog"
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, kvstore.NewRedis)
	do.Provide(di, llm.New)
	do.Provide(di, tokencount.New)
	do.Provide(di, language.New)
	do.Provide(di, admission.New)
	do.Provide(di, conversation.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, server.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*engine.Service](di).Run(appCtx)
	go do.MustInvoke[*server.Server](di).Run()

	<-appCtx.Done()
}
