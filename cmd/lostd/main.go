// Command lostd runs a LoST server federation node (spec 6 "Wire protocol").
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-spatial/cobra"

	"github.com/atlasdatatech/lost/config"
	"github.com/atlasdatatech/lost/dict"
	"github.com/atlasdatatech/lost/engine"
	"github.com/atlasdatatech/lost/internal/log"
	"github.com/atlasdatatech/lost/resolver"
	"github.com/atlasdatatech/lost/store/mapping"
	"github.com/atlasdatatech/lost/store/shape"
	"github.com/atlasdatatech/lost/transport"
)

// configDict adapts the decoded TOML Config struct to the dict.Dicter
// interface the store façades expect (spec 9: config access is always
// through this accessor, never ad-hoc struct field reads inside a façade).
func configDict(cfg *config.Config) dict.Dict {
	return dict.Dict{
		"db_url":      cfg.DBURL,
		"min_con":     cfg.MinCon,
		"max_con":     cfg.MaxCon,
		"shape_table": "shape",
	}
}

func durationSeconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lostd",
	Short: "LoST (Location-to-Service Translation) server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the LoST HTTP server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lostd 1.0.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lost.toml", "path to the TOML config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load config %q: %v", configPath, err)
	}

	shapeStore, err := shape.NewPostgisStore(configDict(cfg))
	if err != nil {
		log.Fatal("failed to open shape store: %v", err)
	}
	defer shapeStore.Close()

	geoStore, err := mapping.NewPostgisStore(configDict(cfg), cfg.GeoTable)
	if err != nil {
		log.Fatal("failed to open mapping store: %v", err)
	}
	defer geoStore.Close()

	mappings := map[string]mapping.Store{
		"geodetic-2d": geoStore,
	}

	peer := resolver.New(nil, 10, "")

	timeout := durationSeconds(cfg.RequestTimeoutSeconds)
	ectx, err := engine.NewContext(context.Background(), cfg.ServerID, cfg.Redirect, cfg.Authoritative, timeout, shapeStore, mappings, peer)
	if err != nil {
		log.Fatal("failed to initialize resolution context: %v", err)
	}

	srv := transport.New(ectx)
	addr := fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)
	if err := srv.ListenAndServe(addr); err != nil {
		log.Error("server exited: %v", err)
		os.Exit(1)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
