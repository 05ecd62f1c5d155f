// Command vecolite is a thin CLI over the vecolite catalog: CRUD on
// collections and records, similarity queries, and counts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vecolite/vecolite/pkg/core"
	"github.com/vecolite/vecolite/pkg/embed"
	"github.com/vecolite/vecolite/pkg/index"
	"github.com/vecolite/vecolite/pkg/vecolite"
)

var rootCmd = &cobra.Command{
	Use:   "vecolite",
	Short: "Embedded vector-collection store",
	Long: `vecolite manages named collections of documents with vector
similarity search, stored in a single SQLite file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "vecolite.db", "database file path (:memory: for ephemeral)")
	rootCmd.PersistentFlags().String("metric", "l2", "default distance metric (l2, cosine, ip)")
	rootCmd.PersistentFlags().String("embedder", "hash", "embedding provider (none, hash, http)")
	rootCmd.PersistentFlags().Int("dim", 128, "embedding dimensionality")
	rootCmd.PersistentFlags().String("http-url", "http://localhost:11434", "embedding server URL for the http provider")
	rootCmd.PersistentFlags().String("http-model", "", "model name for the http provider")
	rootCmd.PersistentFlags().Bool("verbose", false, "log engine operations to stderr")

	for _, flag := range []string{"db", "metric", "embedder", "dim", "http-url", "http-model", "verbose"} {
		viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	}
	viper.SetEnvPrefix("vecolite")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(collectionCmd, addCmd, getCmd, deleteCmd, queryCmd, countCmd)
	collectionCmd.AddCommand(collectionCreateCmd, collectionListCmd, collectionGetCmd,
		collectionDeleteCmd, collectionRenameCmd)
}

func openDB(ctx context.Context) (*vecolite.DB, error) {
	config := vecolite.DefaultConfig(viper.GetString("db"))

	metric, err := index.ParseMetric(viper.GetString("metric"))
	if err != nil {
		return nil, err
	}
	config.Metric = metric
	if viper.GetBool("verbose") {
		config.Logger = core.NewStdLogger(core.LevelDebug)
	}

	var opts []vecolite.Option
	if e, err := configuredEmbedder(); err != nil {
		return nil, err
	} else if e != nil {
		opts = append(opts, vecolite.WithEmbedder(e))
	}
	return vecolite.Open(ctx, config, opts...)
}

func configuredEmbedder() (embed.Embedder, error) {
	switch name := viper.GetString("embedder"); name {
	case "none":
		return nil, nil
	case "hash":
		return embed.NewHashEmbedder(viper.GetInt("dim")), nil
	case "http":
		model := viper.GetString("http-model")
		if model == "" {
			return nil, fmt.Errorf("the http embedder requires --http-model")
		}
		return embed.NewHTTPEmbedder(embed.HTTPConfig{
			BaseURL: viper.GetString("http-url"),
			Model:   model,
			APIKey:  os.Getenv("VECOLITE_API_KEY"),
			Dim:     viper.GetInt("dim"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", name)
	}
}

// openCollection opens the database and binds the configured embedder
// to the named collection.
func openCollection(ctx context.Context, name string) (*vecolite.DB, *core.Collection, error) {
	db, err := openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	col, err := db.Catalog().GetCollection(name)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if e, _ := configuredEmbedder(); e != nil {
		if err := col.Use(ctx, e); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, col, nil
}

func parseMetadata(s string) (core.Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var m core.Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	return m, nil
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
