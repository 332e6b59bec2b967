package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/routine-api/internal/bootstrap"
	"github.com/noah-isme/routine-api/internal/dto"
	"github.com/noah-isme/routine-api/internal/models"
	"github.com/noah-isme/routine-api/pkg/config"
	"github.com/noah-isme/routine-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type routineApp interface {
	Generate(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.GenerateRoutineResponse, error)
	List(ctx context.Context, filter models.RoutineFilter) ([]models.RoutineView, bool, error)
}

type appLoader func(ctx context.Context) (routineApp, func(), error)

func loadApp(ctx context.Context) (routineApp, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		_ = logr.Sync()
		return nil, nil, err
	}
	return app.Routine, func() {
		app.Close()
		_ = logr.Sync()
	}, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(loadApp)
}

func newRootCmdWith(load appLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "routinectl",
		Short:         "Generate and inspect the weekly class routine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateCmd(load))
	root.AddCommand(newRoutineCmd(load))
	return root
}

func newGenerateCmd(load appLoader) *cobra.Command {
	var (
		strategy string
		seed     int64
		dryRun   bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate the routine from the current courses and time slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output %q, use json or yaml", output)
			}
			svc, closeApp, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			req := dto.GenerateRoutineRequest{Strategy: strategy, DryRun: dryRun}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			res, err := svc.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "placement strategy: greedy or backtracking (defaults to config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "shuffle seed for a reproducible run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the routine without storing it")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func newRoutineCmd(load appLoader) *cobra.Command {
	var filter models.RoutineFilter

	cmd := &cobra.Command{
		Use:   "routine",
		Short: "Print the stored routine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeApp, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			views, _, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeTable(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVar(&filter.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&filter.SemesterID, "semester", "", "semester id")
	cmd.Flags().StringVar(&filter.TeacherID, "teacher", "", "teacher id")
	cmd.Flags().StringVar(&filter.Day, "day", "", "day name")
	return cmd
}

func writeResult(w io.Writer, format string, res *dto.GenerateRoutineResponse) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeTable(w io.Writer, views []models.RoutineView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSLOT\tTIME\tCOURSE\tTYPE\tTEACHER\tROOM\tCOHORT")
	for _, v := range views {
		teacher := "-"
		if v.TeacherName != nil {
			teacher = *v.TeacherName
		}
		room := v.RoomNumber
		if strings.TrimSpace(room) == "" {
			room = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s-%s\t%s\t%s\t%s\t%s\t%s %s\n",
			v.Day, v.SlotLabel, v.StartTime, v.EndTime, v.CourseCode, v.CourseType, teacher, room, v.DepartmentName, v.SemesterName)
	}
	if len(views) == 0 {
		fmt.Fprintln(tw, "(no routine entries)")
	}
	return tw.Flush()
}
