// Command kbctl loads and inspects the assistant's knowledge table.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"metro-assistant/internal/domain"
	"metro-assistant/internal/repository"
)

// knowledgeStore is the subset of the repository kbctl drives.
type knowledgeStore interface {
	LoadKnowledge(ctx context.Context) (domain.Knowledge, error)
	SaveKnowledge(ctx context.Context, k domain.Knowledge) (int, error)
}

type storeFactory func(ctx context.Context, table string) (knowledgeStore, error)

func dynamoStore(ctx context.Context, table string) (knowledgeStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	c, err := repository.New(awsdynamodb.NewFromConfig(cfg), table)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newRootCmd(open storeFactory) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:           "kbctl",
		Short:         "Manage the metro assistant knowledge table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&table, "table", os.Getenv("KNOWLEDGE_TABLE"), "DynamoDB table name (default $KNOWLEDGE_TABLE)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if table == "" {
			return errors.New("--table is required")
		}
		return nil
	}

	cmd.AddCommand(newSeedCmd(open, &table))
	cmd.AddCommand(newDumpCmd(open, &table))
	return cmd
}

func newSeedCmd(open storeFactory, table *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write FAQ, synonyms and sections from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var k domain.Knowledge
			if err := json.Unmarshal(data, &k); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			store, err := open(cmd.Context(), *table)
			if err != nil {
				return err
			}
			n, err := store.SaveKnowledge(cmd.Context(), k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d items to %s\n", n, *table)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "knowledge JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDumpCmd(open storeFactory, table *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the stored knowledge as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context(), *table)
			if err != nil {
				return err
			}
			k, err := store.LoadKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(k)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd(dynamoStore)))
}
