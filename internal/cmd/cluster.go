package cmd

import (
	"context"
	"fmt"

	"github.com/harrison/projsort/internal/cluster"
	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	"github.com/spf13/cobra"
)

// NewClusterCommand creates the cluster command
func NewClusterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group classified files into projects",
		Long: `Cluster assigns every scanned file to exactly one project and writes
clusters.jsonl plus clusters.summary.json.

--mode local (default) clusters on this machine from paths, names and
tags. --mode assisted sends masked metadata (ids, sizes, extensions, tags
and the last two directory names) to an OpenAI-compatible service; the
key is read from the environment variable named by
cluster.assisted.api_key_env (or OPENAI_API_KEY). If the service cannot
be reached the run falls back to local clustering and is reported as
partial.

Examples:
  projsort cluster
  projsort cluster --mode assisted
  projsort cluster --seed 7`,
		Args: cobra.NoArgs,
		RunE: clusterCommand,
	}
	cmd.Flags().String("mode", "", "Clustering strategy: local or assisted")
	cmd.Flags().Int64("seed", 0, "Seed for local clustering")
	return cmd
}

func clusterCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	return e.stage("cluster", e.cfg.Cluster.Mode, func() (models.StageResult, error) {
		return runCluster(ctx, e)
	})
}

// newEngine selects the strategies for the configured mode. Assisted
// always has local behind it.
func newEngine(cfg config.ClusterConfig, log cluster.Logger) *cluster.Engine {
	local := cluster.NewLocal(cfg.Seed, cfg.MaxClusters)
	if cfg.Mode != models.ClusterModeAssisted {
		return cluster.NewEngine(local, nil, log)
	}
	a := cfg.Assisted
	assisted := cluster.NewAssisted(cluster.AssistedOptions{
		BaseURL:        a.BaseURL,
		Model:          a.Model,
		APIKeyEnv:      a.APIKeyEnv,
		Timeout:        a.Timeout,
		Attempts:       a.Attempts,
		Backoff:        a.Backoff,
		MaxBatchTokens: a.MaxBatchTokens,
	}, log)
	return cluster.NewEngine(assisted, local, log)
}

func runCluster(ctx context.Context, e *env) (models.StageResult, error) {
	failed := models.StageResult{Stage: "cluster", Status: models.StatusFailure}

	scanPath := e.ws.Path(config.ScanFileName)
	if !fileutil.Exists(scanPath) {
		return failed, fmt.Errorf("no scan artifact at %s; run scan first", scanPath)
	}
	records, err := cluster.LoadRecords(scanPath, e.ws.Path(config.ClassifyFileName))
	if err != nil {
		return failed, err
	}

	run, err := newEngine(e.cfg.Cluster, e.log).Run(ctx, records)
	if err != nil {
		return failed, err
	}
	if err := cluster.WriteArtifacts(run, e.ws.Path(config.ClustersFileName), e.ws.Path(config.ClusterSummaryFileName)); err != nil {
		return failed, fmt.Errorf("write cluster artifacts: %w", err)
	}
	return cluster.StageResult(run), nil
}
