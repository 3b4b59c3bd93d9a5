package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voedger/qcache/pkg/persist/boltpersister"
	"github.com/voedger/qcache/pkg/qcache"
)

func newPersistCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Fetch a query, dehydrate the cache to a bbolt file, then restore it into a fresh client",
		RunE: func(cmd *cobra.Command, args []string) error {
			persister, err := boltpersister.Open(dbPath)
			if err != nil {
				return err
			}
			defer persister.Close()

			client := qcache.NewQueryClient(qcache.WithPersister(persister))
			key := qcache.QueryKey{"todos"}

			ctx := context.Background()
			data, err := client.FetchQuery(ctx, qcache.QueryOptions{
				QueryKey: key,
				QueryFn: func(ctx context.Context) (any, error) {
					return []string{"buy milk", "write demo"}, nil
				},
			})
			if err != nil {
				return err
			}
			fmt.Printf("fetched: %v\n", data)

			snapshot := qcache.Dehydrate(client, qcache.DehydrateOptions{})
			if err := persister.PersistClient(ctx, snapshot); err != nil {
				return err
			}
			fmt.Printf("persisted %d queries to %s\n", len(snapshot.Queries), dbPath)

			restored, err := persister.RestoreClient(ctx)
			if err != nil {
				return err
			}

			fresh := qcache.NewQueryClient()
			qcache.Hydrate(fresh, restored)
			if v, ok := fresh.GetQueryData(key); ok {
				fmt.Printf("restored into a fresh client without refetching: %v\n", v)
			} else {
				fmt.Println("restore did not find persisted data")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath(), "path to the bbolt snapshot file")
	return cmd
}

func defaultDBPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "qcachedemo.db"
	}
	return dir + "/qcachedemo.db"
}
