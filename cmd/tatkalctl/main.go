package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/tatkal-desk/tatkal/cmd/tatkalctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	code := cli.Run(ctx, cli.Env{Stdout: os.Stdout, Stderr: os.Stderr, RedisAddr: redisAddr}, os.Args[1:])
	stop()
	os.Exit(code)
}
