package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/chemlove/toolbx-pdb/logger"
	"github.com/chemlove/toolbx-pdb/pkg/conformation"
	mydb "github.com/chemlove/toolbx-pdb/pkg/db"
	"github.com/chemlove/toolbx-pdb/pkg/pca"
	"github.com/chemlove/toolbx-pdb/pkg/plot"
	"go.uber.org/zap"
)

const VERSION = "0.1.0"

func main() {

	var (
		dir       string
		project   string
		dim       int
		metric    string
		templates string
		consensus bool
		metricDB  string
		outDir    string
		logLevel  string
	)

	flag.StringVar(&dir, "dir", "", "Directory holding the .pdb conformations (default $TOOLBX_DATA)")
	flag.StringVar(&project, "project", "project", "Output file stem")
	flag.IntVar(&dim, "dim", 2, "Number of principal components to plot, 2 or 3")
	flag.StringVar(&metric, "metric", "", "Metric name used to color conformations, e.g. tanimoto")
	flag.StringVar(&templates, "templates", "", "Comma-separated conformation names rendered as templates")
	flag.BoolVar(&consensus, "consensus", false, "Restrict extraction to consensus residues")
	flag.StringVar(&metricDB, "metricdb", "", "Optional sqlite file with pre-computed metrics")
	flag.StringVar(&outDir, "out", ".", "Directory the images are written to")
	flag.StringVar(&logLevel, "loglevel", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if err := logger.InitLogger(logger.ParseLevel(logLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync() // Make sure that the buffered is flushed.

	// Try load env
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env found, using local environment")
	}

	if dir == "" {
		dir = os.Getenv("TOOLBX_DATA")
	}
	if dir == "" {
		logger.Warn("No conformation directory given (-dir / TOOLBX_DATA), using default value (./data)")
		dir = "./data"
	}

	runID := uuid.NewString()[:8]
	logger.Info("Start:", zap.String("Version", VERSION), zap.String("run", runID))
	logger.Info("Reading conformations from", zap.String("dir", dir))

	confs, err := conformation.Discover(dir)
	if err != nil {
		logger.Fatal("Conformation discovery failed", zap.Error(err))
	}
	logger.Info("Conformations loaded", zap.Int("count", len(confs)))

	templateSet := parseTemplates(templates)

	if metric != "" && metricDB != "" {
		mergeMetricDB(confs, metricDB, metric)
	}

	matrix, names, err := pca.BuildMatrix(confs, consensus)
	if err != nil {
		var ragged *pca.RaggedError
		if errors.As(err, &ragged) {
			for _, l := range ragged.Lengths {
				fmt.Printf("%s\t%d\n", l.Name, l.Len)
			}
			logger.Fatal("Number of coordinates not identical amongst conformations")
		}
		logger.Fatal("Feature matrix build failed", zap.Error(err))
	}

	var metricValues []float64
	if metric != "" {
		table, err := pca.CollectMetric(confs, metric, templateSet)
		switch {
		case errors.Is(err, pca.ErrMetricUnknown):
			logger.Warn("The metric is not in the loaded set, plotting without color",
				zap.String("metric", metric),
				zap.Strings("available", pca.MetricNames(confs)))
		case err != nil:
			logger.Fatal("Metric collection failed", zap.Error(err))
		default:
			metricValues = table[metric]
		}
	}

	projected, ratios, err := pca.Reduce(matrix, dim)
	if err != nil {
		logger.Fatal("Principal component reduction failed", zap.Error(err))
	}

	percents := pca.RoundedPercents(ratios)
	fmt.Printf("Explained variance ratio (first %d components): %v\n", dim, ratios)
	fmt.Printf("PCs rounded at 2 decimals: %v\n", percents)

	cfg := plot.DefaultConfig(project)
	cfg.OutDir = outDir
	cfg.MetricLabel = plot.MetricAxisLabel(metric)
	if dpi := os.Getenv("TOOLBX_DPI"); dpi != "" {
		v, err := strconv.Atoi(dpi)
		if err != nil {
			logger.Warn("Ignoring unparseable TOOLBX_DPI", zap.String("value", dpi))
		} else {
			cfg.DPI = v
		}
	}

	if err := plot.Render(cfg, projected, percents, names, metricValues, templateSet); err != nil {
		logger.Fatal("Plot rendering failed", zap.Error(err))
	}
	logger.Info("Wrote plot images", zap.String("dir", cfg.OutDir), zap.String("project", project))
}

func parseTemplates(s string) map[string]bool {
	set := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}
	return set
}

// mergeMetricDB overlays metric values from the sqlite file onto the
// REMARK-derived ones. The database is the scoring run's authoritative
// output, so its values win.
func mergeMetricDB(confs conformation.Set, path, metric string) {
	mdb, err := mydb.Open(path)
	if err != nil {
		logger.Fatal("Cannot open metric database", zap.String("path", path), zap.Error(err))
	}
	defer mdb.Close()

	values, err := mdb.Load(context.Background(), metric)
	if err != nil {
		logger.Fatal("Cannot load metric from database", zap.String("metric", metric), zap.Error(err))
	}
	confs.ApplyMetric(metric, values)
	logger.Info("Merged metric values from database",
		zap.String("metric", metric), zap.Int("count", len(values)))
}
