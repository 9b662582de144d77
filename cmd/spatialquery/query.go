package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/adapters/geopackage"
	"github.com/jobrunner/spatialquery/internal/adapters/progress"
	"github.com/jobrunner/spatialquery/internal/adapters/storage"
	"github.com/jobrunner/spatialquery/internal/application"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/logger"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one relation query between two GeoPackage layers",
	Example: `  spatialquery query --target parcels.gpkg:parcels --reference zoning.gpkg:zones --relation within
  spatialquery query --target a.gpkg:roads --reference a.gpkg:rivers --relation crosses --target-ids 4,9`,
	RunE: runQuery,
}

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "List the relations applicable to two geometry types",
	Example: `  spatialquery relations --target-type POINT --reference-type POLYGON`,
	RunE:    runRelations,
}

func init() {
	queryCmd.Flags().String("target", "", "target layer as file.gpkg:layer")
	queryCmd.Flags().String("reference", "", "reference layer as file.gpkg:layer")
	queryCmd.Flags().String("relation", "", "relation name (intersects, disjoint, touches, crosses, within, equals, overlaps, contains)")
	queryCmd.Flags().Int64Slice("target-ids", nil, "only read these target feature ids")
	queryCmd.Flags().Int64Slice("reference-ids", nil, "only read these reference feature ids")
	_ = queryCmd.MarkFlagRequired("target")
	_ = queryCmd.MarkFlagRequired("reference")
	_ = queryCmd.MarkFlagRequired("relation")

	relationsCmd.Flags().String("target-type", "", "target geometry type, e.g. POINT")
	relationsCmd.Flags().String("reference-type", "", "reference geometry type, e.g. POLYGON")
	_ = relationsCmd.MarkFlagRequired("target-type")
	_ = relationsCmd.MarkFlagRequired("reference-type")
}

// layerArg is a file.gpkg:layer command line argument.
type layerArg struct {
	Path  string
	Layer string
}

// parseLayerArg splits at the last colon so drive letters survive.
func parseLayerArg(flag, s string) (layerArg, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return layerArg{}, &domain.ValidationError{
			Field:      flag,
			Value:      s,
			Constraint: "file.gpkg:layer",
			Message:    "expected a GeoPackage path and a layer name separated by a colon",
		}
	}
	return layerArg{Path: s[:i], Layer: s[i+1:]}, nil
}

func featureIDs(ids []int64) []domain.FeatureID {
	out := make([]domain.FeatureID, len(ids))
	for i, id := range ids {
		out[i] = domain.FeatureID(id)
	}
	return out
}

// queryOutput is the JSON document printed by the query command.
type queryOutput struct {
	Relation         string              `json:"relation"`
	Matched          []domain.FeatureID  `json:"matched"`
	InvalidTarget    []domain.FeatureID  `json:"invalid_target"`
	InvalidReference []domain.FeatureID  `json:"invalid_reference"`
	Diagnostics      []domain.Diagnostic `json:"diagnostics"`
	TargetCount      int64               `json:"target_count"`
	ReferenceCount   int64               `json:"reference_count"`
	Digest           string              `json:"digest"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
}

func newQueryOutput(resp *domain.SpatialQueryResponse) queryOutput {
	return queryOutput{
		Relation:         resp.Relation.String(),
		Matched:          nonNil(resp.Matched),
		InvalidTarget:    nonNil(resp.InvalidTarget),
		InvalidReference: nonNil(resp.InvalidReference),
		Diagnostics:      append([]domain.Diagnostic{}, resp.Diagnostics...),
		TargetCount:      resp.TargetCount,
		ReferenceCount:   resp.ReferenceCount,
		Digest:           resp.Digest,
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
	}
}

func nonNil(ids []domain.FeatureID) []domain.FeatureID {
	if ids == nil {
		return []domain.FeatureID{}
	}
	return ids
}

func runQuery(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging, cmd.ErrOrStderr())

	flags := cmd.Flags()
	targetFlag, _ := flags.GetString("target")
	referenceFlag, _ := flags.GetString("reference")
	relation, _ := flags.GetString("relation")
	targetIDs, _ := flags.GetInt64Slice("target-ids")
	referenceIDs, _ := flags.GetInt64Slice("reference-ids")

	target, err := parseLayerArg("target", targetFlag)
	if err != nil {
		return err
	}
	reference, err := parseLayerArg("reference", referenceFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := geopackage.NewRepository(cfg.Query.LayerCacheSize, log)
	if err != nil {
		return err
	}
	registry := application.NewPackageRegistry(
		repo,
		storage.NewLocalStorage(filepath.Dir(target.Path)),
		&output.NoOpMetrics{},
		log,
		filepath.Dir(target.Path),
	)
	for _, path := range []string{target.Path, reference.Path} {
		if err := registry.LoadPackage(ctx, path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	defer func() {
		_ = repo.Close(context.Background(), geopackage.DerivePackageID(target.Path))
		_ = repo.Close(context.Background(), geopackage.DerivePackageID(reference.Path))
	}()

	var reprojectors output.ReprojectorFactory = geometry.IdentityFactory{}
	if cfg.Query.Reprojection {
		transformer := geopackage.NewTransformer(log)
		defer func() { _ = transformer.Close() }()
		reprojectors = transformer
	}

	service := application.NewQueryService(
		registry,
		geometry.GeoJSONDecoder{},
		application.NewSpatialQuery(geometry.NewEngine(), geometry.IndexFactory{}, reprojectors, log),
		&output.NoOpMetrics{},
		log,
		application.QueryServiceConfig{
			Timeout:         cfg.Query.Timeout,
			StrictRelations: cfg.Query.StrictRelations,
			Progress:        logProgress(log, cfg.Query.ProgressLogEvery),
		},
	)

	resp, err := service.Run(ctx, domain.SpatialQueryRequest{
		Relation: relation,
		Target: domain.LayerRef{
			Package:   geopackage.DerivePackageID(target.Path),
			Layer:     target.Layer,
			Selection: featureIDs(targetIDs),
		},
		Reference: domain.LayerRef{
			Package:   geopackage.DerivePackageID(reference.Path),
			Layer:     reference.Layer,
			Selection: featureIDs(referenceIDs),
		},
	})
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), newQueryOutput(resp))
}

func logProgress(log *slog.Logger, every int) application.ProgressFactory {
	return func(relation domain.Relation, target, reference string) output.ProgressSink {
		return progress.NewLogSink(log.With(
			"relation", relation.String(),
			"target", target,
			"reference", reference,
		), every)
	}
}

func runRelations(cmd *cobra.Command, _ []string) error {
	targetType, _ := cmd.Flags().GetString("target-type")
	referenceType, _ := cmd.Flags().GetString("reference-type")

	set, err := domain.ApplicableRelationsForTypes(
		domain.NormalizeGeometryType(targetType),
		domain.NormalizeGeometryType(referenceType),
	)
	if err != nil {
		return err
	}

	for _, name := range set.Names() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
