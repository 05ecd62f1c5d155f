package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vecolite/vecolite/pkg/core"
	"github.com/vecolite/vecolite/pkg/index"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadataStr, _ := cmd.Flags().GetString("metadata")
		metadata, err := parseMetadata(metadataStr)
		if err != nil {
			return err
		}
		metricStr, _ := cmd.Flags().GetString("collection-metric")
		var metric index.Metric
		if metricStr != "" {
			if metric, err = index.ParseMetric(metricStr); err != nil {
				return err
			}
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.Catalog().CreateCollection(cmd.Context(), args[0], &core.CollectionOptions{
			Metadata: metadata,
			Metric:   metric,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Collection %q created (metric %s)\n", col.Name(), col.Metric())
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		collections, err := db.Catalog().ListCollections()
		if err != nil {
			return err
		}
		if len(collections) == 0 {
			fmt.Println("No collections")
			return nil
		}
		for _, col := range collections {
			fmt.Printf("%s\t%d records\tdim %d\tmetric %s\n", col.Name(), col.Count(), col.Dim(), col.Metric())
		}
		return nil
	},
}

var collectionGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.Catalog().GetCollection(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:     %s\n", col.Name())
		fmt.Printf("ID:       %s\n", col.ID())
		fmt.Printf("Records:  %d\n", col.Count())
		fmt.Printf("Dim:      %d\n", col.Dim())
		fmt.Printf("Metric:   %s\n", col.Metric())
		if provider := col.Provider(); provider != "" {
			fmt.Printf("Provider: %s\n", provider)
		}
		if metadata := col.Metadata(); len(metadata) > 0 {
			fmt.Printf("Metadata: %s\n", formatMetadata(metadata))
		}
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a collection and all its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Catalog().DeleteCollection(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Collection %q deleted\n", args[0])
		return nil
	},
}

var collectionRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.Catalog().GetCollection(args[0])
		if err != nil {
			return err
		}
		if err := col.Modify(cmd.Context(), core.ModifyOptions{Name: args[1]}); err != nil {
			return err
		}
		fmt.Printf("Collection %q renamed to %q\n", args[0], args[1])
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <collection> <id>",
	Short: "Add a record from a document or an explicit vector",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, _ := cmd.Flags().GetString("document")
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")
		upsert, _ := cmd.Flags().GetBool("upsert")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		metadata, err := parseMetadata(metadataStr)
		if err != nil {
			return err
		}
		if document == "" && vector == nil {
			return fmt.Errorf("either --document or --vector is required")
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		opts := &core.CollectionOptions{}
		if e, _ := configuredEmbedder(); e != nil {
			opts.Embedder = e
		}
		col, err := db.Catalog().GetOrCreateCollection(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}

		batch := core.Batch{IDs: []string{args[1]}}
		if document != "" {
			batch.Documents = []string{document}
		}
		if vector != nil {
			batch.Embeddings = [][]float32{vector}
		}
		if metadata != nil {
			batch.Metadatas = []core.Metadata{metadata}
		}

		if upsert {
			err = col.Upsert(cmd.Context(), batch)
		} else {
			err = col.Add(cmd.Context(), batch)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Record %q stored in %q (%d records)\n", args[1], args[0], col.Count())
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <collection> [id...]",
	Short: "Show records, all of them when no ids are given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, col, err := openCollection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		var ids []string
		if len(args) > 1 {
			ids = args[1:]
		}
		records, err := col.Get(ids)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%s\t%s", rec.ID, rec.Document)
			if len(rec.Metadata) > 0 {
				fmt.Printf("\t%s", formatMetadata(rec.Metadata))
			}
			fmt.Println()
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <id...>",
	Short: "Delete records (absent ids are ignored)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, col, err := openCollection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		if err := col.Delete(cmd.Context(), args[1:]); err != nil {
			return err
		}
		fmt.Printf("Deleted; %q now has %d records\n", args[0], col.Count())
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <collection> <text>",
	Short: "Find the records nearest to a query text or vector",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		vectorStr, _ := cmd.Flags().GetString("vector")

		db, col, err := openCollection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		var result *core.QueryResult
		if vectorStr != "" {
			vector, err := parseVector(vectorStr)
			if err != nil {
				return err
			}
			result, err = col.QueryEmbeddings(cmd.Context(), [][]float32{vector}, topK)
			if err != nil {
				return err
			}
		} else {
			if len(args) < 2 {
				return fmt.Errorf("either a query text or --vector is required")
			}
			result, err = col.Query(cmd.Context(), []string{args[1]}, topK)
			if err != nil {
				return err
			}
		}

		if len(result.IDs[0]) == 0 {
			fmt.Println("No results")
			return nil
		}
		for i := range result.IDs[0] {
			fmt.Printf("%d. %s\t(distance %.4f)\n", i+1, result.IDs[0][i], result.Distances[0][i])
			if doc := result.Documents[0][i]; doc != "" {
				fmt.Printf("   %s\n", doc)
			}
		}
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count <collection>",
	Short: "Show the record count of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.Catalog().GetCollection(args[0])
		if err != nil {
			return err
		}
		fmt.Println(col.Count())
		return nil
	},
}

func init() {
	collectionCreateCmd.Flags().String("metadata", "", "collection metadata as JSON")
	collectionCreateCmd.Flags().String("collection-metric", "", "distance metric for this collection")

	addCmd.Flags().String("document", "", "document text (embedded via the configured provider)")
	addCmd.Flags().String("vector", "", "precomputed vector as comma-separated floats")
	addCmd.Flags().String("metadata", "", "record metadata as JSON")
	addCmd.Flags().Bool("upsert", false, "replace the record if the id exists")

	queryCmd.Flags().IntP("top-k", "k", 5, "number of results per query")
	queryCmd.Flags().String("vector", "", "query by vector instead of text")
}

func formatMetadata(m core.Metadata) string {
	data, err := core.EncodeMetadata(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return data
}
