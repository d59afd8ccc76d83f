package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"eventcheckin/internal/checkin"
	"eventcheckin/internal/config"
	"eventcheckin/internal/queue"
	"eventcheckin/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := &cli.App{
		Name:  "station",
		Usage: "event check-in station",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "resolve scans against the attendance service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: cfg.APIURL, Usage: "attendance service base URL"},
					&cli.StringFlag{Name: "station-id", Value: cfg.StationID, Usage: "identifier registered with the service"},
					&cli.StringFlag{Name: "port", Value: cfg.StationHTTPPort, Usage: "operator HTTP port"},
					&cli.StringFlag{Name: "mode", Value: cfg.CheckinMode, Usage: "toggle, time-in or time-out"},
					&cli.StringFlag{Name: "policy", Value: cfg.FailurePolicy, Usage: "rollback or keep on remote failure"},
				},
				Action: func(c *cli.Context) error {
					cfg.APIURL = c.String("api-url")
					cfg.StationID = c.String("station-id")
					cfg.StationHTTPPort = c.String("port")
					cfg.CheckinMode = c.String("mode")
					cfg.FailurePolicy = c.String("policy")
					return run(c.Context, cfg)
				},
			},
			{
				Name:      "scan",
				Usage:     "publish a decoded barcode to the scan queue",
				ArgsUsage: "<code>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "override the station's mode for this scan"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: station scan <code> [--mode m]", 2)
					}
					return publishScan(c.Context, cfg, c.Args().First(), c.String("mode"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func publishScan(ctx context.Context, cfg config.App, code, mode string) error {
	if cfg.QueueBackend != "redis" {
		return errors.New("scan requires QUEUE_BACKEND=redis")
	}
	if mode != "" {
		if _, err := checkin.ParseMode(mode); err != nil {
			return err
		}
	}
	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	msg, err := queue.NewMessage(queue.TypeScan, queue.ScanRequest{Code: code, Mode: mode})
	if err != nil {
		return err
	}
	if err := queue.NewRedisQueue(rdb.Client, cfg.ScanQueue).Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish scan: %w", err)
	}
	log.Printf("scan %s queued as %s", code, msg.ID)
	return nil
}
