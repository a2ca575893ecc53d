package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"vericase/pkg/queue"
)

type queueFlags struct {
	redisAddr     string
	redisPassword string
	stream        string
}

func (f *queueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	cmd.Flags().StringVar(&f.redisPassword, "redis-password", envOr("REDIS_PASSWORD", ""), "redis password")
	cmd.Flags().StringVar(&f.stream, "stream", envOr("INGEST_QUEUE_NAME", "vericase:ingest"), "job stream name")
}

func (f *queueFlags) open() (*queue.RedisJobQueue, error) {
	return queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     f.redisAddr,
		Password: f.redisPassword,
		Stream:   f.stream,
	})
}

func newEnqueueCmd() *cobra.Command {
	var qf queueFlags
	var trigger queue.Trigger
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a container run",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.open()
			if err != nil {
				return err
			}
			defer q.Close()
			job, err := q.Enqueue(cmd.Context(), trigger)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			return printJSON(cmd, job)
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVar(&trigger.ContainerID, "container", "", "container id")
	cmd.Flags().StringVar(&trigger.StorageKey, "key", "", "object storage key of the PST file")
	cmd.Flags().StringVar(&trigger.CaseID, "case", "", "case id")
	cmd.Flags().StringVar(&trigger.CompanyID, "company", "", "company id")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var qf queueFlags
	cmd := &cobra.Command{
		Use:   "status [job id]",
		Short: "Show the status of a queued run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.open()
			if err != nil {
				return err
			}
			defer q.Close()
			job, ok, err := q.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("job not found")
			}
			return printJSON(cmd, job)
		},
	}
	qf.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
