package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/enmap-catalog/catalog"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/interface/catalog/stac"
	"github.com/airbusgeo/enmap-catalog/service"
	"github.com/airbusgeo/enmap-catalog/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type config struct {
	Listen     string
	STACURL    string
	Collection string

	DownloadBaseURL    string
	DataURLTemplate    string
	PreviewURLTemplate string
	FallbackDataURL    string
	FallbackPreviewURL string

	PreviewTimeout  time.Duration
	PreviewInsecure bool
	PreviewHosts    string
	Workers         int

	LogLevel string
	LogDev   bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Listen, "listen", ":8080", "address to listen on")
	flag.StringVar(&config.STACURL, "stac-url", common.DefaultSTACURL, "url of the STAC API")
	flag.StringVar(&config.Collection, "collection", common.DefaultCollection, "STAC collection to search")

	flag.StringVar(&config.DownloadBaseURL, "download-base-url", catalog.DefaultDownloadBaseURL, "base url of the download server ({BASE} in the url templates)")
	flag.StringVar(&config.DataURLTemplate, "data-url-template", catalog.DefaultDataURLTemplate, "template of the download url of a scene")
	flag.StringVar(&config.PreviewURLTemplate, "preview-url-template", catalog.DefaultPreviewURLTemplate, "template of the preview url of a scene")
	flag.StringVar(&config.FallbackDataURL, "fallback-data-url", catalog.DefaultFallbackDataURL, "template of the download url of a scene whose identifier cannot be parsed ({SCENE} and {COLLECTION} only)")
	flag.StringVar(&config.FallbackPreviewURL, "fallback-preview-url", catalog.DefaultFallbackPreviewURL, "template of the preview url of a scene whose identifier cannot be parsed ({SCENE} and {COLLECTION} only)")

	flag.DurationVar(&config.PreviewTimeout, "preview-timeout", catalog.DefaultPreviewTimeout, "timeout to fetch a preview image")
	flag.BoolVar(&config.PreviewInsecure, "preview-insecure", false, "do not verify the certificate of the preview server")
	flag.StringVar(&config.PreviewHosts, "preview-allowed-hosts", strings.Join(catalog.DefaultPreviewAllowedHosts, ","), "comma-separated domains the preview proxy may fetch from (subdomains included, empty allows any host)")
	flag.IntVar(&config.Workers, "workers", 0, "number of scenes resolved concurrently (default: number of CPUs)")

	flag.StringVar(&config.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&config.LogDev, "log-dev", false, "human readable logs")
	flag.Parse()

	if config.STACURL == "" {
		return nil, fmt.Errorf("missing -stac-url")
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("-workers must be positive")
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

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	if err := log.Configure(config.LogLevel, config.LogDev); err != nil {
		return fmt.Errorf("log.Configure: %w", err)
	}

	provider := stac.NewProvider(config.STACURL)
	provider.Collection = config.Collection

	c := catalog.NewCatalog(provider, config.STACURL, config.Collection)
	c.Resolver = &catalog.Resolver{
		Templates: catalog.URLTemplates{
			BaseURL:         config.DownloadBaseURL,
			Collection:      config.Collection,
			Data:            config.DataURLTemplate,
			Preview:         config.PreviewURLTemplate,
			FallbackData:    config.FallbackDataURL,
			FallbackPreview: config.FallbackPreviewURL,
		},
		Workers: config.Workers,
	}
	c.PreviewClient = service.NewHTTPClient(config.PreviewTimeout, config.PreviewInsecure)
	c.PreviewAllowedHosts = nil
	for _, h := range strings.Split(config.PreviewHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			c.PreviewAllowedHosts = append(c.PreviewAllowedHosts, h)
		}
	}

	// HTTP Server
	r := mux.NewRouter()
	c.AddHandler(r)
	var h http.Handler = catalog.RequestLogger(r)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)

	s := http.Server{
		Addr:              config.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Logger(ctx).Sugar().Infof("EnMAP catalog listening on %s (STAC: %s, collection: %s)", config.Listen, config.STACURL, config.Collection)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("catalog.ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Logger(ctx).Info("shutting down")
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}
