package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/nestor-assistant/nestor/internal/engine"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and retry tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "goal",
						Usage: "Filter by goal ID",
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "Filter by state (pending, running, failed, completed, cancelled)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tasks",
						Value: 50,
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "run",
				Usage:     "Execute a single task now",
				ArgsUsage: "<task_id>",
				Action:    runTasksRun,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksCancel,
			},
			{
				Name:   "retry",
				Usage:  "Show tasks whose backoff has elapsed, or sweep them with --now",
				Action: runTasksRetry,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "now",
						Usage: "Execute one retry batch instead of listing",
					},
				},
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	filter := engine.TaskFilter{
		GoalID: cmd.String("goal"),
		State:  engine.TaskState(cmd.String("state")),
		Limit:  int(cmd.Int("limit")),
	}
	tasks, err := rt.store.ListTasks(ctx, filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	return printTaskTable(tasks)
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: nestor tasks show <task_id>")
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	t, err := rt.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:           %s\n", t.ID)
	fmt.Printf("Goal:         %s\n", t.GoalID)
	fmt.Printf("Title:        %s\n", t.Title)
	fmt.Printf("Type:         %s\n", t.Type)
	fmt.Printf("State:        %s\n", t.State)
	fmt.Printf("Step:         %d\n", t.StepIndex)
	fmt.Printf("Retries:      %d/%d\n", t.Retries, t.MaxRetries)
	fmt.Printf("Verification: %s\n", t.Verification)
	if t.BackoffUntil != nil {
		fmt.Printf("Retry at:     %s\n", t.BackoffUntil.Format("2006-01-02 15:04:05"))
	}
	if t.LastError != "" {
		fmt.Printf("Last error:   %s\n", t.LastError)
	}
	fmt.Printf("Created:      %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:      %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runTasksRun(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: nestor tasks run <task_id>")
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	t, err := rt.exec.ExecuteTask(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", t.ID, t.State)
	if t.LastError != "" {
		fmt.Printf("Last error: %s\n", t.LastError)
	}
	return nil
}

func runTasksCancel(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: nestor tasks cancel <task_id>")
	}

	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	t, err := rt.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t.Terminal() {
		return fmt.Errorf("task %s is already %s", t.ID, t.State)
	}

	t.State = engine.TaskCancelled
	t.BackoffUntil = nil
	if err := rt.store.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	fmt.Printf("%s cancelled\n", t.ID)
	return nil
}

func runTasksRetry(ctx context.Context, cmd *cli.Command) error {
	rt, err := buildRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if cmd.Bool("now") {
		return rt.exec.RetryFailedTasks(ctx)
	}

	tasks, err := rt.exec.FailedTasksReadyForRetry(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks ready for retry.")
		return nil
	}
	return printTaskTable(tasks)
}

func printTaskTable(tasks []*engine.Task) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGOAL\tSTATE\tRETRIES\tTITLE")
	for _, t := range tasks {
		retries := fmt.Sprintf("%d/%d", t.Retries, t.MaxRetries)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.GoalID, t.State, retries, t.Title)
	}
	return w.Flush()
}
