package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/nestor-assistant/nestor/internal/engine"
)

// NewGoalsCommand returns the goals subcommand.
func NewGoalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "goals",
		Usage: "Run and inspect goals",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Install a plan file and execute its goal",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to a JSONC plan file",
						Required: true,
					},
				},
				Action: runGoalsRun,
			},
			{
				Name:      "resume",
				Usage:     "Resume an interrupted goal",
				ArgsUsage: "<goal_id>",
				Action:    runGoalsResume,
			},
			{
				Name:      "show",
				Usage:     "Show goal details and its tasks",
				ArgsUsage: "<goal_id>",
				Action:    runGoalsShow,
			},
			{
				Name:   "list",
				Usage:  "List goals",
				Action: runGoalsList,
			},
		},
		DefaultCommand: "list",
	}
}

func runGoalsRun(ctx context.Context, cmd *cli.Command) error {
	plan, err := engine.LoadPlan(cmd.String("file"))
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	plan.ApplyDefaultRetries(rt.cfg.Engine.DefaultMaxRetries)
	g, err := plan.Install(ctx, rt.store)
	if err != nil {
		return fmt.Errorf("install plan: %w", err)
	}
	fmt.Printf("Installed goal %s (%d tasks)\n", g.ID, len(g.TaskIDs))

	if err := rt.exec.ExecuteGoal(ctx, g.ID); err != nil {
		return err
	}
	return printGoal(ctx, rt.store, g.ID)
}

func runGoalsResume(ctx context.Context, cmd *cli.Command) error {
	goalID := cmd.Args().First()
	if goalID == "" {
		return fmt.Errorf("usage: nestor goals resume <goal_id>")
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := engine.RecoverOrphanedTasks(ctx, rt.store); err != nil {
		return fmt.Errorf("recover orphaned tasks: %w", err)
	}
	if err := rt.exec.ResumeGoal(ctx, goalID); err != nil {
		return err
	}
	return printGoal(ctx, rt.store, goalID)
}

func runGoalsShow(ctx context.Context, cmd *cli.Command) error {
	goalID := cmd.Args().First()
	if goalID == "" {
		return fmt.Errorf("usage: nestor goals show <goal_id>")
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	return printGoal(ctx, rt.store, goalID)
}

func runGoalsList(ctx context.Context, cmd *cli.Command) error {
	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	lister, ok := rt.store.(interface {
		ListGoals(ctx context.Context) ([]*engine.Goal, error)
	})
	if !ok {
		return fmt.Errorf("storage backend %q does not support listing goals", rt.cfg.Storage.Backend)
	}

	goals, err := lister.ListGoals(ctx)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}
	if len(goals) == 0 {
		fmt.Println("No goals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTASKS\tTITLE")
	for _, g := range goals {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", g.ID, g.Status, len(g.TaskIDs), g.Title)
	}
	return w.Flush()
}

func printGoal(ctx context.Context, store engine.Store, goalID string) error {
	g, err := store.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("get goal: %w", err)
	}

	fmt.Printf("ID:      %s\n", g.ID)
	fmt.Printf("Title:   %s\n", g.Title)
	fmt.Printf("Status:  %s\n", g.Status)
	if g.MissionID != "" {
		fmt.Printf("Mission: %s\n", g.MissionID)
	}
	fmt.Printf("Created: %s\n", g.CreatedAt.Format("2006-01-02 15:04:05"))

	tasks, err := store.ListByGoal(ctx, g.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tID\tSTATE\tRETRIES\tTITLE")
	for _, t := range tasks {
		retries := fmt.Sprintf("%d/%d", t.Retries, t.MaxRetries)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.StepIndex, t.ID, t.State, retries, t.Title)
	}
	return w.Flush()
}
