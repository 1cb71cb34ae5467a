// Command evaluate scores one offline run described by a run file and writes
// the tagged collections and the metrics table it names.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	geojsonadapter "github.com/samirrijal/detscore/internal/adapters/geojson"
	"github.com/samirrijal/detscore/internal/adapters/report"
	"github.com/samirrijal/detscore/internal/adapters/terrascan"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/core/ports"
	"github.com/samirrijal/detscore/internal/core/usecases"
	"github.com/samirrijal/detscore/internal/pkg/config"
	"github.com/samirrijal/detscore/internal/pkg/logging"
)

func main() {
	var (
		runFile    = flag.String("config", "run.yaml", "run file (YAML, JSON or TOML)")
		sectorProp = flag.String("sector-property", "", "sector name property (default \"sector\")")
		position   = flag.String("position", string(terrascan.PositionTrunk), "TerraScan tree position: trunk or average")
		logLevel   = flag.String("log-level", "info", "log level")
		logFormat  = flag.String("log-format", "text", "log format: text or json")
	)
	flag.Parse()

	logging.SetupStderr(*logLevel, *logFormat)

	rc, err := config.LoadRun(*runFile)
	if err != nil {
		log.Fatalf("run config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eval, err := run(ctx, rc, *sectorProp, terrascan.Position(*position))
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}

	slog.Info("evaluation finished",
		"strategy", eval.Strategy,
		"tp", eval.Metrics.TP,
		"fp", eval.Metrics.FP,
		"fn", eval.Metrics.FN,
		"f1", eval.Metrics.F1,
		"sectors", len(eval.Sectors),
		"balanced", eval.Balanced,
	)
}

func run(ctx context.Context, rc *config.RunConfig, sectorProp string, pos terrascan.Position) (*domain.Evaluation, error) {
	tol := rc.Settings.ToleranceInMeters
	buf := rc.Settings.GTSectorsBufferSizeInMeters
	req := &domain.EvaluationRequest{
		ToleranceM: &tol,
		Strategy:   domain.Strategy(rc.Settings.Strategy),
		SectorBufM: &buf,
	}
	for _, path := range rc.InputFiles.GTSectors {
		sectors, err := geojsonadapter.ReadSectorsFile(path, sectorProp)
		if err != nil {
			return nil, err
		}
		req.Sectors = append(req.Sectors, sectors...)
	}

	svc := usecases.NewEvaluationService(nil, nil, nil, usecases.Defaults{})
	eval, err := svc.RunFrom(ctx, source(rc, pos), req)
	if err != nil {
		return nil, err
	}

	if p := rc.OutputFiles.TaggedGTTrees; p != "" {
		if err := geojsonadapter.WriteTaggedFile(p, eval.Result.GT); err != nil {
			return nil, err
		}
	}
	if p := rc.OutputFiles.TaggedDetections; p != "" {
		if err := geojsonadapter.WriteTaggedFile(p, eval.Result.DET); err != nil {
			return nil, err
		}
	}
	if err := report.WriteMetricsFile(rc.OutputFiles.Metrics, eval); err != nil {
		return nil, err
	}
	return eval, nil
}

// source reads TerraScan text exports for detections when every detection
// file is a .txt, GeoJSON otherwise.
func source(rc *config.RunConfig, pos terrascan.Position) ports.ObjectSource {
	files := geojsonadapter.FileSource{GT: rc.InputFiles.GTTrees, DET: rc.InputFiles.Detections}
	for _, p := range rc.InputFiles.Detections {
		if !strings.EqualFold(filepath.Ext(p), ".txt") {
			return files
		}
	}
	return terrascan.Source{GT: files, DET: rc.InputFiles.Detections, Position: pos}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: evaluate [-config run.yaml] [flags]\n\n")
		flag.PrintDefaults()
	}
}
