package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voedger/qcache/pkg/qcache"
)

func newFetchCmd() *cobra.Command {
	var failChance float64
	var retries int

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a todo list through a flaky simulated network, showing retry/backoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			net := newFlakyNetwork(1, failChance, 20*time.Millisecond)
			client := qcache.NewQueryClient()

			key := qcache.QueryKey{"todos"}
			obs := qcache.NewQueryObserver(client, qcache.QueryObserverOptions{
				QueryOptions: qcache.QueryOptions{
					QueryKey: key,
					QueryFn:  func(ctx context.Context) (any, error) { return net.fetchTodos(ctx) },
					Retry:    qcache.RetryTimes(retries),
				},
			})

			unsubscribe := obs.Subscribe(func(result qcache.QueryObserverResult) {
				fmt.Printf("status=%s fetchStatus=%s data=%v error=%v failures=%d\n",
					result.Status, result.FetchStatus, result.Data, result.Error, result.FailureCount)
			})
			defer unsubscribe()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			data, err := client.FetchQuery(ctx, qcache.QueryOptions{QueryKey: key, QueryFn: func(ctx context.Context) (any, error) {
				return net.fetchTodos(ctx)
			}, Retry: qcache.RetryTimes(retries)})
			if err != nil {
				return err
			}
			fmt.Printf("final data: %v\n", data)
			return nil
		},
	}

	cmd.Flags().Float64Var(&failChance, "fail-chance", 0.5, "probability each network call fails")
	cmd.Flags().IntVar(&retries, "retries", 3, "max retry attempts before giving up")
	return cmd
}
