package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-api/internal/app"
	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
)

type timetableOps interface {
	Generate(ctx context.Context, schoolID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Runs(ctx context.Context, schoolID string, query dto.TimetableRunQuery) ([]models.TimetableRun, error)
	Unplaced(ctx context.Context, schoolID string) ([]dto.UnplacedRequirement, *models.TimetableRun, error)
}

type moveOps interface {
	Move(ctx context.Context, schoolID string, req dto.MoveLessonRequest) (*dto.MoveLessonResponse, error)
}

type exportOps interface {
	Export(ctx context.Context, schoolID, ownerType, ownerID, format string) (*service.TimetableDocument, error)
}

// services is the subset of the application the CLI drives.
type services interface {
	TimetableOps() timetableOps
	MoveOps() moveOps
	ExportOps() exportOps
}

type appServices struct{ *app.App }

func (a appServices) TimetableOps() timetableOps { return a.Timetables }
func (a appServices) MoveOps() moveOps           { return a.Moves }
func (a appServices) ExportOps() exportOps       { return a.Exports }

func newRootCmd(build func() (*app.App, error)) *cobra.Command {
	return newRootCmdWith(func() (services, error) {
		application, err := build()
		if err != nil {
			return nil, err
		}
		return appServices{application}, nil
	})
}

func newRootCmdWith(load func() (services, error)) *cobra.Command {
	var schoolID string

	root := &cobra.Command{
		Use:          "timetablectl",
		Short:        "Operate school timetables",
		Long:         "Regenerate, inspect, edit and export school timetables against the configured database.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&schoolID, "school", "s", "", "school id (required)")
	_ = root.MarkPersistentFlagRequired("school")

	root.AddCommand(
		generateCmd(load, &schoolID),
		runsCmd(load, &schoolID),
		unplacedCmd(load, &schoolID),
		moveCmd(load, &schoolID),
		exportCmd(load, &schoolID),
	)
	return root
}

func generateCmd(load func() (services, error), schoolID *string) *cobra.Command {
	var (
		seed     int64
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "regenerate the whole timetable of a school",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load()
			if err != nil {
				return err
			}
			req := dto.GenerateTimetableRequest{Attempts: attempts}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			result, err := svc.TimetableOps().Generate(cmd.Context(), *schoolID, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s version %d %s\n", result.RunID, result.Version, result.Status)
			fmt.Fprintf(out, "seed %d, attempt %d of %d, score %d\n", result.Seed, result.WinningAttempt, result.Attempts, result.Score)
			fmt.Fprintf(out, "placed %d periods, unplaced %d, %d rows written in %dms\n", result.PlacedPeriods, result.UnplacedPeriods, result.Entries, result.DurationMs)
			writeUnplaced(out, result.Unplaced)
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed; omitted means time based")
	cmd.Flags().IntVarP(&attempts, "attempts", "n", 0, "number of seeded attempts; the best result is kept")
	return cmd
}

func runsCmd(load func() (services, error), schoolID *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "list generation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load()
			if err != nil {
				return err
			}
			runs, err := svc.TimetableOps().Runs(cmd.Context(), *schoolID, dto.TimetableRunQuery{Limit: limit})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATUS\tSEED\tATTEMPTS\tPLACED\tUNPLACED\tSCORE\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", run.Version, run.Status, run.Seed, run.Attempts,
					run.PlacedCount, run.UnplacedCount, run.Score, run.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func unplacedCmd(load func() (services, error), schoolID *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "unplaced",
		Short: "show lessons the latest run could not place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load()
			if err != nil {
				return err
			}
			unplaced, run, err := svc.TimetableOps().Unplaced(cmd.Context(), *schoolID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(unplaced)
			}
			if run == nil {
				fmt.Fprintln(out, "no timetable has been generated yet")
				return nil
			}
			fmt.Fprintf(out, "run version %d %s\n", run.Version, run.Status)
			writeUnplaced(out, unplaced)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func moveCmd(load func() (services, error), schoolID *string) *cobra.Command {
	var req dto.MoveLessonRequest
	cmd := &cobra.Command{
		Use:   "move",
		Short: "move a placed lesson to another class, day and timeslot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load()
			if err != nil {
				return err
			}
			result, err := svc.MoveOps().Move(cmd.Context(), *schoolID, req)
			out := cmd.OutOrStdout()
			if result != nil && !result.Success {
				fmt.Fprintf(out, "rejected: %s\n", result.Reason)
				for _, c := range result.Conflicts {
					fmt.Fprintf(out, "  %s %s busy on %s at %s\n", strings.ToLower(c.Dimension), c.ResourceID, c.DayOfWeek, c.TimeSlotID)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "moved %s\n", strings.Join(result.MovedIDs, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.LessonID, "lesson", "", "schedule row id")
	cmd.Flags().StringVar(&req.TargetClassID, "class", "", "target class id")
	cmd.Flags().StringVar(&req.TargetDay, "day", "", "target weekday")
	cmd.Flags().StringVar(&req.TargetTimeslotID, "slot", "", "target timeslot id")
	return cmd
}

func exportCmd(load func() (services, error), schoolID *string) *cobra.Command {
	var classID, teacherID, format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "write the grid of a class or teacher as CSV or PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerType, ownerID := dto.GridOwnerClass, classID
			switch {
			case classID != "" && teacherID != "":
				return errors.New("use either --class or --teacher")
			case teacherID != "":
				ownerType, ownerID = dto.GridOwnerTeacher, teacherID
			case classID == "":
				return errors.New("--class or --teacher is required")
			}
			svc, err := load()
			if err != nil {
				return err
			}
			doc, err := svc.ExportOps().Export(cmd.Context(), *schoolID, ownerType, ownerID, format)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(doc.Content)
				return err
			}
			if output == "" {
				output = doc.Filename
			}
			if err := os.WriteFile(output, doc.Content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(doc.Content))
			return nil
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "class id")
	cmd.Flags().StringVar(&teacherID, "teacher", "", "teacher id")
	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "csv, pdf or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout; defaults to the suggested file name")
	return cmd
}

func writeUnplaced(out io.Writer, unplaced []dto.UnplacedRequirement) {
	if len(unplaced) == 0 {
		fmt.Fprintln(out, "every lesson was placed")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSUBJECT\tUNPLACED\tTOTAL")
	for _, u := range unplaced {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", u.Class, u.Subject, u.Unplaced, u.Total)
	}
	_ = tw.Flush()
}
