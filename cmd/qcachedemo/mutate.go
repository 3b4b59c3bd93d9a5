package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voedger/qcache/pkg/qcache"
)

func newMutateCmd() *cobra.Command {
	var title string
	var failChance float64

	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Submit a mutation through a flaky simulated network",
		RunE: func(cmd *cobra.Command, args []string) error {
			net := newFlakyNetwork(2, failChance, 20*time.Millisecond)
			client := qcache.NewQueryClient()

			obs := qcache.NewMutationObserver(client, qcache.MutationObserverOptions{
				MutationOptions: qcache.MutationOptions{
					MutationKey: qcache.MutationKey{"postTodo"},
					MutationFn: func(ctx context.Context, variables any) (any, error) {
						return net.postTodo(ctx, variables)
					},
					Callbacks: qcache.MutationCallbacks{
						OnSuccess: func(_ context.Context, data, variables, _ any) {
							fmt.Printf("committed %v -> %v\n", variables, data)
						},
						OnError: func(_ context.Context, err error, variables, _ any) {
							fmt.Printf("rejected %v: %v\n", variables, err)
						},
					},
				},
			})

			unsubscribe := obs.Subscribe(func(result qcache.MutationObserverResult) {
				fmt.Printf("mutation status=%s data=%v error=%v\n", result.Status, result.Data, result.Error)
			})
			defer unsubscribe()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			promise := obs.Mutate(ctx, title, nil)
			_, err := promise.Wait(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "buy eggs", "todo title to submit")
	cmd.Flags().Float64Var(&failChance, "fail-chance", 0.3, "probability the write fails")
	return cmd
}
