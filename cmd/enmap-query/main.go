package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airbusgeo/enmap-catalog/bounds"
	"github.com/airbusgeo/enmap-catalog/catalog"
	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/interface/catalog/stac"
	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/airbusgeo/enmap-catalog/service/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentQueries is the number of bounds queried concurrently
const maxConcurrentQueries = 4

type config struct {
	BBox     bboxFlag
	CSVFile  string
	Datetime string
	MaxItems int
	Export   string

	STACURL         string
	Collection      string
	DownloadBaseURL string
	S3Region        string

	LogLevel string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.Var(&config.BBox, "bbox", "bounding box: min_lon,min_lat,max_lon,max_lat")
	flag.StringVar(&config.CSVFile, "csv-file", "", "bounds CSV exported from the bounds viewer (local path, gs:// or s3:// uri)")
	flag.StringVar(&config.Datetime, "datetime", common.DefaultDatetime, "time range: start_date/end_date")
	flag.IntVar(&config.MaxItems, "max-items", common.DefaultMaxItems, "maximum number of scenes per bounds")
	flag.StringVar(&config.Export, "export", "", "export the results to a JSON file (local path, gs:// or s3:// uri)")

	flag.StringVar(&config.STACURL, "stac-url", common.DefaultSTACURL, "url of the STAC API")
	flag.StringVar(&config.Collection, "collection", common.DefaultCollection, "STAC collection to search")
	flag.StringVar(&config.DownloadBaseURL, "download-base-url", catalog.DefaultDownloadBaseURL, "base url of the download server")
	flag.StringVar(&config.S3Region, "s3-region", "", "region of the s3 bucket (for s3:// uris)")

	flag.StringVar(&config.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Query EnMAP data availability for geographic bounds\n\nUsage:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nExamples:\n"+
			"  enmap-query -bbox 11.23,48.05,11.33,48.11\n"+
			"  enmap-query -csv-file bounds.csv -datetime 2025-01-01/2025-12-31\n"+
			"  enmap-query -bbox 11.23,48.05,11.33,48.11 -export enmap_results.json\n")
	}
	flag.Parse()

	if config.BBox.bbox == nil && config.CSVFile == "" {
		flag.Usage()
		return nil, fmt.Errorf("please provide either -bbox or -csv-file")
	}
	if config.MaxItems <= 0 {
		return nil, fmt.Errorf("-max-items must be positive")
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

// loadBounds reads the bounds of a CSV file (local or remote)
func loadBounds(ctx context.Context, storage service.Storage, csvFile string) ([]bounds.Bounds, error) {
	path, err := storage.ImportFile(ctx, csvFile, "")
	if err != nil {
		return nil, fmt.Errorf("loadBounds.%w", err)
	}
	if !service.IsLocal(csvFile) {
		defer os.Remove(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadBounds: %w", err)
	}
	defer f.Close()
	return bounds.Read(f)
}

type queryResult struct {
	results []entities.Result
	err     error
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	if err := log.Configure(config.LogLevel, true); err != nil {
		return fmt.Errorf("log.Configure: %w", err)
	}
	storage := service.Storage{S3: service.S3Config{Region: config.S3Region}}

	var toQuery []bounds.Bounds
	if config.BBox.bbox != nil {
		toQuery = append(toQuery, bounds.FromBBox("Custom Bounds", *config.BBox.bbox))
	}
	if config.CSVFile != "" {
		bs, err := loadBounds(ctx, storage, config.CSVFile)
		if err != nil {
			return err
		}
		toQuery = append(toQuery, bs...)
	}

	provider := stac.NewProvider(config.STACURL)
	provider.Collection = config.Collection
	c := catalog.NewCatalog(provider, config.STACURL, config.Collection)
	c.Resolver.Templates.BaseURL = config.DownloadBaseURL
	c.Resolver.Templates.Collection = config.Collection

	fmt.Printf("Searching %s in %s\n", config.Collection, config.STACURL)

	// Queries are run concurrently, results are printed in order
	results := make([]queryResult, len(toQuery))
	var wg errgroup.Group
	wg.SetLimit(maxConcurrentQueries)
	for i, b := range toQuery {
		i, b := i, b
		wg.Go(func() error {
			qctx := log.With(ctx, "bounds", b.GranuleID)
			area := &entities.Area{Name: b.GranuleID, BBox: b.BBox(), Datetime: config.Datetime, MaxItems: config.MaxItems}
			results[i].results, results[i].err = c.Query(qctx, area)
			return nil
		})
	}
	wg.Wait()

	var all []entities.Result
	for i, b := range toQuery {
		bbox := b.BBox()
		fmt.Printf("\nQuerying: %s\n", b.GranuleID)
		fmt.Printf("   Bounds: %v\n   Time Range: %s\n", [4]float64(bbox), config.Datetime)
		if err := results[i].err; err != nil {
			fmt.Printf("Error querying EnMAP data: %v\n", err)
			continue
		}
		printResults(os.Stdout, results[i].results)
		all = append(all, results[i].results...)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if config.Export != "" && len(all) > 0 {
		data, err := service.ToJSON(all)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := storage.ExportFile(ctx, config.Export, data); err != nil {
			return fmt.Errorf("export.%w", err)
		}
		fmt.Printf("Results exported to: %s\n", config.Export)
	}
	return nil
}
