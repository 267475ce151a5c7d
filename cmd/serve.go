/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/pas2cs/internal/store"
	"github.com/valpere/pas2cs/internal/translator"
)

const shutdownTimeout = 5 * time.Second

var serveNoCache bool

type convertRequest struct {
	Source string `json:"source" binding:"required"`
	Name   string `json:"name"`
	// Validate defaults to true when omitted.
	Validate *bool `json:"validate"`
	Force    bool  `json:"force"`
}

type convertResponse struct {
	Code            string `json:"code"`
	RawCode         string `json:"raw_code,omitempty"`
	Validated       bool   `json:"validated"`
	Cached          bool   `json:"cached"`
	ValidationError string `json:"validation_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversions over HTTP",
	Long: `Run an HTTP service exposing the conversion pipeline.

Endpoints:
  POST /v1/convert   {"source": "...", "validate": true}
  GET  /healthz

A client disconnect cancels the conversion it requested.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(appConfig, true, appLogger)
		if err != nil {
			return err
		}

		db, err := openHistory(appConfig, serveNoCache)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		if appConfig.Log.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := &http.Server{
			Addr:              appConfig.Serve.Listen,
			Handler:           newRouter(p, db, appLogger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			appLogger.Info("HTTP server started", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			appLogger.Info("shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}
			return nil
		})
		return g.Wait()
	},
}

func newRouter(p *pipeline, db *store.Store, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": p.model, "version": version})
	})
	r.POST("/v1/convert", convertHandler(p, db))
	return r
}

func convertHandler(p *pipeline, db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req convertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
			return
		}
		if strings.TrimSpace(req.Source) == "" {
			c.JSON(http.StatusBadRequest, errorResponse{Error: translator.ErrEmptySource.Error()})
			return
		}

		validate := req.Validate == nil || *req.Validate
		name := req.Name
		if name == "" {
			name = "request:" + c.GetString("request_id")
		}

		conv, err := convertSource(c.Request.Context(), p, db, name, req.Source, convertOptions{
			validate: validate,
			force:    req.Force,
		})
		switch {
		case err != nil:
			c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		case conv.Cancelled:
			// 499: client closed request.
			c.Status(499)
			return
		case !conv.Converted:
			c.JSON(http.StatusBadGateway, errorResponse{Error: errConversionFailed.Error()})
			return
		}

		resp := convertResponse{
			Code:      conv.Code,
			RawCode:   conv.RawCode,
			Validated: conv.Validated,
			Cached:    conv.Cached,
		}
		if conv.ValidationErr != nil {
			resp.ValidationError = conv.ValidationErr.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// requestID sets X-Request-Id on the request context and the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger logs each request at a level chosen by its status.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start).Round(time.Millisecond),
			"request_id", c.GetString("request_id"),
		}
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Debug("request completed", attrs...)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Listen address (default from config)")
	serveCmd.Flags().String("db", "", "Conversion history database (default from config)")
	serveCmd.Flags().Int("rpm", 0, "Maximum requests per minute, 0 for no limit (default from config)")
	serveCmd.Flags().BoolVar(&serveNoCache, "no-cache", false, "Do not read or write conversion history")
}
