// Package serve implements the serve command, the long-running HTTP service.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/server"
)

const shutdownTimeout = 15 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the review service",
		Long:  "Start the HTTP service that serves the review API: uploads, annotations, baking and the document proxy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Address, "address", viper.GetString("webserver.address"), "Address and port to listen on, e.g. \":8080\"")
	cmd.Flags().StringVar(&settings.Storage.Backend, "storage", viper.GetString("storage.backend"), "Object store backend (\"minio\" or \"memory\")")
	cmd.Flags().StringVar(&settings.Database.Type, "db", viper.GetString("database.type"), "Database type (\"sqlite\" or \"mysql\")")
	cmd.Flags().IntVar(&settings.Bake.Workers, "bake-workers", viper.GetInt("bake.workers"), "Maximum number of concurrent bake jobs")
	cmd.Flags().StringVar(&settings.Bake.FontPath, "font", viper.GetString("bake.fontpath"), "TrueType font for free text annotations, empty for built-in")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

func runServer(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, settings)
	if err != nil {
		return err
	}

	srv.Start()

	<-ctx.Done()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
