package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pbaille/fieldmap/internal/api"
	"github.com/pbaille/fieldmap/internal/bbox"
	"github.com/pbaille/fieldmap/internal/client"
	"github.com/pbaille/fieldmap/internal/config"
	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/logger"
	"github.com/pbaille/fieldmap/internal/projector"
	"github.com/pbaille/fieldmap/internal/store"
)

var (
	v   = viper.New()
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fieldmap",
		Short:         "Map form fields onto PDF pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			var err error
			if cfg, err = config.Load(v, configFile); err != nil {
				return err
			}
			log, err = logger.Stderr(cfg.LogLevel, cfg.LogFormat)
			return err
		},
	}

	config.DefineFlags(rootCmd.PersistentFlags(), v)

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(processesCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(annotationsCmd())
	rootCmd.AddCommand(fieldsCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(annotateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	b, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return store.New(b), nil
}

func getClient() *client.Client {
	return client.New(cfg.Server, nil)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the annotation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Str("backend", cfg.Backend).Str("data_dir", cfg.DataDir).Msg("store opened")
			server := api.New(s, api.Options{
				Addr:         cfg.Addr,
				CORSOrigin:   cfg.CORSOrigin,
				MaxBodyBytes: cfg.MaxBodyBytes,
				UploadsDir:   cfg.UploadsDir,
				Logger:       log,
			})
			return server.Run(ctx)
		},
	}
}

func processesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "processes",
		Short: "List uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			procs, err := s.ListProcesses(cmd.Context())
			if err != nil {
				return err
			}

			if len(procs) == 0 {
				fmt.Println("No documents yet. Use 'fieldmap upload' to add one.")
				return nil
			}

			for _, p := range procs {
				fmt.Printf("%s  %-3d  %s\n", p.ID, p.PageCount, truncate(p.OriginalName, 60))
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [process-id]",
		Short: "Show document details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.GetProcess(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("process %s: %w", args[0], err)
			}
			anns, err := s.ListByProcess(cmd.Context(), p.ID)
			if err != nil {
				return err
			}

			fmt.Printf("ID:       %s\n", p.ID)
			fmt.Printf("Name:     %s\n", p.OriginalName)
			fmt.Printf("File:     %s\n", filepath.Join(cfg.UploadsDir, p.Filename))
			fmt.Printf("Created:  %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Pages:    %d\n", p.PageCount)
			for i, size := range p.Pages {
				fmt.Printf("  %d: %.0fx%.0f\n", i+1, size.Width, size.Height)
			}
			fmt.Printf("Fields:   %d\n", len(anns))
			return nil
		},
	}
}

func annotationsCmd() *cobra.Command {
	var pixels bool

	cmd := &cobra.Command{
		Use:   "annotations [process-id]",
		Short: "List the stored annotations of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			anns, err := s.ListByProcess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(anns) == 0 {
				fmt.Println("No annotations for this document.")
				return nil
			}

			var proc *domain.Process
			if pixels {
				if proc, err = s.GetProcess(cmd.Context(), args[0]); err != nil {
					return err
				}
			}

			for _, a := range anns {
				fmt.Printf("%s  p%-3d %-24s %s\n", shortID(a.ID), a.Page, truncate(a.FieldName, 24), describeBox(proc, a))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pixels, "pixels", false, "show boxes in pixels of their drawing frame")
	return cmd
}

func describeBox(proc *domain.Process, a domain.Annotation) string {
	if proc != nil {
		if r, ok := projector.Reconstruct(proc, a); ok {
			return fmt.Sprintf("px[%.1f %.1f %.1f %.1f]", r[0], r[1], r[2], r[3])
		}
		return "px[?]"
	}
	region, ok := a.Region()
	if !ok {
		return "-"
	}
	r := region.Rect
	return fmt.Sprintf("%s[%g %g %g %g]", region.Kind, r[0], r[1], r[2], r[3])
}

func fieldsCmd() *cobra.Command {
	var (
		formID string
		format string
	)

	cmd := &cobra.Command{
		Use:   "fields [process-id]",
		Short: "Print the field definitions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			var filter *string
			if cmd.Flags().Changed("form-id") {
				filter = &formID
			}

			defs, err := projector.New(s).FieldDefinitions(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return projector.Encode(os.Stdout, defs, format)
		},
	}

	cmd.Flags().StringVar(&formID, "form-id", "", "only fields of this form")
	cmd.Flags().StringVarP(&format, "output", "o", projector.FormatJSON, "output format (json, yaml)")
	return cmd
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [process-id]",
		Short: "Remove every annotation of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.ClearByProcess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d annotations\n", removed)
			return nil
		},
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a PDF to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := getClient().Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded: %s\n", p.ID)
			fmt.Printf("Pages:    %d\n", p.PageCount)
			return nil
		},
	}
}

func annotateCmd() *cobra.Command {
	var (
		page     int
		from, to string
		frameArg string
		scale    float64
		name     string
		header   string
		formID   string
		required bool
	)

	cmd := &cobra.Command{
		Use:   "annotate [process-id]",
		Short: "Draw a field box on a page and save it to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parsePair(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parsePair(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			frame, err := parseFrame(frameArg)
			if err != nil {
				return fmt.Errorf("--frame: %w", err)
			}

			c := getClient()
			proc, err := c.Process(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var form *string
			if cmd.Flags().Changed("form-id") {
				form = &formID
			}
			sess := client.NewSession(c, *proc, form)

			if _, ok := sess.Draw(page, start, end, frame, scale); !ok {
				return fmt.Errorf("box smaller than %dpx, discarded", bbox.MinDragSize)
			}
			patch := client.Patch{Required: &required}
			if name != "" {
				patch.FieldName = &name
			}
			if header != "" {
				patch.FieldHeader = &header
			}
			if err := sess.Update(0, patch); err != nil {
				return err
			}

			res, err := sess.Save(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("rejected: %s", res.Errors[0].Error)
			}
			a := sess.Annotations()[0]
			fmt.Printf("Saved %s (%s)\n", a.ID, a.FieldName)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().StringVar(&from, "from", "", "drag start as x,y")
	cmd.Flags().StringVar(&to, "to", "", "drag end as x,y")
	cmd.Flags().StringVar(&frameArg, "frame", "", "rendered page size as WIDTHxHEIGHT")
	cmd.Flags().Float64Var(&scale, "scale", 1, "render scale of the frame")
	cmd.Flags().StringVar(&name, "name", "", "field name")
	cmd.Flags().StringVar(&header, "header", "", "field header")
	cmd.Flags().StringVar(&formID, "form-id", "", "form the field belongs to")
	cmd.Flags().BoolVar(&required, "required", false, "mark the field as required")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("frame")
	return cmd
}

func parsePair(s string) (bbox.Point, error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return bbox.Point{}, fmt.Errorf("expected x,y, got %q", s)
	}
	px, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return bbox.Point{}, err
	}
	py, err := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return bbox.Point{}, err
	}
	return bbox.Point{X: px, Y: py}, nil
}

func parseFrame(s string) (bbox.Frame, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return bbox.Frame{}, fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	fw, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return bbox.Frame{}, err
	}
	fh, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return bbox.Frame{}, err
	}
	if fw <= 0 || fh <= 0 {
		return bbox.Frame{}, fmt.Errorf("frame must be positive, got %q", s)
	}
	return bbox.Frame{Width: fw, Height: fh}, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
