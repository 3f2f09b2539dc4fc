// Command lost-load bulk-loads GeoJSON boundary files into the shape and
// mapping stores (spec 4.8, spec 6 "Loader CLI").
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-spatial/cobra"

	"github.com/atlasdatatech/lost/config"
	"github.com/atlasdatatech/lost/dict"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/loader"
	"github.com/atlasdatatech/lost/store/mapping"
	"github.com/atlasdatatech/lost/store/shape"
)

var (
	configPath string
	urlMapPath string
	service    string
)

var rootCmd = &cobra.Command{
	Use:   "lost-load",
	Short: "Load GeoJSON boundaries into the LoST shape and mapping stores",
}

var loadCmd = &cobra.Command{
	Use:   "load <glob>",
	Short: "Ingest every GeoJSON file matching <glob>",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lost.toml", "path to the TOML config file")
	loadCmd.Flags().StringVar(&urlMapPath, "url-map", "", "path to a JSON {shape-uri: peer-url} map")
	loadCmd.Flags().StringVar(&service, "service", "urn:service:sos", "service URN new peer mappings are registered under")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	glob := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load config %q: %v", configPath, err)
	}

	shapeStore, err := shape.NewPostgisStore(dict.Dict{
		"db_url":  cfg.DBURL,
		"min_con": cfg.MinCon,
		"max_con": cfg.MaxCon,
	})
	if err != nil {
		log.Fatal("failed to open shape store: %v", err)
	}
	defer shapeStore.Close()

	mappingStore, err := mapping.NewPostgisStore(dict.Dict{
		"db_url":  cfg.DBURL,
		"min_con": cfg.MinCon,
		"max_con": cfg.MaxCon,
	}, cfg.GeoTable)
	if err != nil {
		log.Fatal("failed to open mapping store: %v", err)
	}
	defer mappingStore.Close()

	var urlMap loader.URLMap
	if urlMapPath != "" {
		urlMap, err = loader.LoadURLMap(urlMapPath)
		if err != nil {
			log.Fatal("failed to load url map %q: %v", urlMapPath, err)
		}
	}

	l := &loader.Loader{Shapes: shapeStore, Mappings: mappingStore, Service: service, URLMap: urlMap}
	res, err := l.LoadGlob(context.Background(), glob)
	if err != nil {
		log.Fatal("load failed: %v", err)
	}

	fmt.Printf("processed %d files: %d shapes inserted, %d reused, %d peer mappings\n",
		res.FilesProcessed, res.ShapesInserted, res.ShapesReused, res.PeersMapped)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
