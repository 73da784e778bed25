// Inspects the notification dead letter queue and requeues failed tasks.
//
//	dlq list [-limit 20]
//	dlq requeue <task-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ds124wfegd/bookit/config"
	"github.com/ds124wfegd/bookit/pkg/queue"
	"github.com/ds124wfegd/bookit/pkg/redis"
	"github.com/sirupsen/logrus"
)

func main() {
	limit := flag.Int("limit", 20, "number of failed tasks to list")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: dlq [-limit N] list | requeue <task-id>")
		os.Exit(2)
	}

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}
	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	client, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer client.Close()

	queueCfg := queue.DefaultRedisQueueConfig()
	queueCfg.Prefix = cfg.Queue.Prefix
	dlq := queue.NewDefaultDLQHandler(client, queueCfg.DLQ(), queueCfg.MainQueue())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch flag.Arg(0) {
	case "list":
		failed, err := dlq.GetFailedTasks(ctx, *limit)
		if err != nil {
			logrus.Fatalf("Failed to read DLQ: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(failed); err != nil {
			logrus.Fatalf("Failed to print tasks: %v", err)
		}

	case "requeue":
		if flag.NArg() < 2 {
			logrus.Fatal("requeue needs a task id")
		}
		if err := dlq.RequeueFailedTask(ctx, flag.Arg(1)); err != nil {
			logrus.Fatalf("Failed to requeue task: %v", err)
		}
		logrus.WithField("task_id", flag.Arg(1)).Info("Task requeued")

	default:
		logrus.Fatalf("unknown command %q", flag.Arg(0))
	}
}
