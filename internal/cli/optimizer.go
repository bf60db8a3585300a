package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/api"
)

var (
	paramsOutput     string
	targetsOutput    string
	stateOutput      string
	forcefieldOutput string
	objectiveOutput  string
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the input parameters of the project",
	Long:  "Print the general options, priors and per-target options parsed from the project's input file.",
	Args:  cobra.NoArgs,
	RunE:  runParams,
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch the optimizer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimizerCommand(cmd, "Launched", (*api.Connection).LaunchOptimizer)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the optimizer",
	Long:  "Reset the optimizer of the project, discarding its iterations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimizerCommand(cmd, "Reset", (*api.Connection).ResetOptimizer)
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the fitting targets of the project",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the optimizer iterations",
	Long:  "Print the total objective of every iteration and the per-target breakdown of the latest one.",
	Args:  cobra.NoArgs,
	RunE:  runState,
}

var forcefieldCmd = &cobra.Command{
	Use:   "forcefield",
	Short: "Show the optimized force field parameters",
	Args:  cobra.NoArgs,
	RunE:  runForceField,
}

var objectiveCmd = &cobra.Command{
	Use:   "objective <target> <iteration>",
	Short: "Compare QM and MM energies of a target",
	Args:  cobra.ExactArgs(2),
	RunE:  runObjective,
}

func runParams(cmd *cobra.Command, args []string) error {
	if err := checkFormat(paramsOutput, formatYAML, formatJSON); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := requireProject(conn); err != nil {
		return err
	}

	params, err := api.Await(cmd.Context(), conn.GetInputParams)
	if err != nil {
		return fmt.Errorf("get input params: %w", err)
	}
	return writeStructured(cmd.OutOrStdout(), paramsOutput, params)
}

func runOptimizerCommand(cmd *cobra.Command, verb string, send func(*api.Connection) bool) error {
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	name, err := requireProject(conn)
	if err != nil {
		return err
	}
	if !send(conn) {
		return api.ErrNoActiveProject
	}
	if err := flush(cmd.Context(), conn); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🧪 %s optimizer for %s\n", verb, name)
	return nil
}

func runTargets(cmd *cobra.Command, args []string) error {
	if err := checkFormat(targetsOutput, formatTable, formatYAML, formatJSON); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := requireProject(conn); err != nil {
		return err
	}

	targets, err := api.Await(cmd.Context(), conn.GetAllTargetsInfo)
	if err != nil {
		return fmt.Errorf("get targets: %w", err)
	}
	if targetsOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), targetsOutput, targets)
	}
	printTargets(cmd.OutOrStdout(), targets)
	return nil
}

func printTargets(out io.Writer, targets map[string]api.TargetInfo) {
	if len(targets) == 0 {
		fmt.Fprintln(out, "No targets.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "TARGET\tTYPE")
	for _, name := range slices.Sorted(maps.Keys(targets)) {
		fmt.Fprintf(w, "%s\t%s\n", name, orDash(targets[name].Type))
	}
	w.Flush()
}

func runState(cmd *cobra.Command, args []string) error {
	if err := checkFormat(stateOutput, formatTable, formatYAML, formatJSON); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := requireProject(conn); err != nil {
		return err
	}

	state, err := api.Await(cmd.Context(), conn.GetOptimizerState)
	if err != nil {
		return fmt.Errorf("get optimizer state: %w", err)
	}
	if stateOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), stateOutput, state)
	}
	printState(cmd.OutOrStdout(), state)
	return nil
}

func printState(out io.Writer, state api.OptimizerState) {
	latest, last, ok := state.Latest()
	if !ok {
		fmt.Fprintln(out, "No iterations yet.")
		return
	}

	w := newTable(out)
	fmt.Fprintln(w, "ITER\tOBJECTIVE")
	for _, n := range state.Iterations() {
		fmt.Fprintf(w, "%d\t%.6g\n", n, state[strconv.Itoa(n)].ObjTotal)
	}
	w.Flush()

	fmt.Fprintf(out, "\nIteration %d by target:\n", latest)
	w = newTable(out)
	fmt.Fprintln(w, "TARGET\tX\tWEIGHT\tCONTRIBUTION")
	for _, name := range slices.Sorted(maps.Keys(last.ObjDict)) {
		term := last.ObjDict[name]
		fmt.Fprintf(w, "%s\t%.6g\t%.6g\t%.6g\n", name, term.X, term.W, term.X*term.W)
	}
	w.Flush()
}

func runForceField(cmd *cobra.Command, args []string) error {
	if err := checkFormat(forcefieldOutput, formatTable, formatYAML, formatJSON); err != nil {
		return err
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := requireProject(conn); err != nil {
		return err
	}

	ff, err := api.Await(cmd.Context(), conn.GetFinalForceFieldInfo)
	if err != nil {
		return fmt.Errorf("get force field: %w", err)
	}
	if forcefieldOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), forcefieldOutput, ff)
	}
	printForceField(cmd.OutOrStdout(), ff)
	return nil
}

func printForceField(out io.Writer, ff *api.ForceFieldInfo) {
	if ff == nil || len(ff.ParamNames) == 0 {
		fmt.Fprintln(out, "No force field parameters.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "PARAMETER\tINITIAL\tFINAL\tPRIOR")
	for i, name := range ff.ParamNames {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name,
			valueAt(ff.InitialValues, i), valueAt(ff.Values, i), valueAt(ff.Priors, i))
	}
	w.Flush()
}

func valueAt(vals []float64, i int) string {
	if i >= len(vals) {
		return "-"
	}
	return strconv.FormatFloat(vals[i], 'g', 6, 64)
}

func runObjective(cmd *cobra.Command, args []string) error {
	if err := checkFormat(objectiveOutput, formatTable, formatYAML, formatJSON); err != nil {
		return err
	}
	target := args[0]
	iteration, err := strconv.Atoi(args[1])
	if err != nil || iteration < 0 {
		return fmt.Errorf("invalid iteration %q", args[1])
	}
	conn, err := connect(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := requireProject(conn); err != nil {
		return err
	}

	data, err := api.Await(cmd.Context(), func(ctx context.Context, cb func(*api.ObjectiveData, error)) bool {
		return conn.GetTargetObjectiveData(ctx, target, iteration, cb)
	})
	if err != nil {
		return fmt.Errorf("get objective data: %w", err)
	}
	if objectiveOutput != formatTable {
		return writeStructured(cmd.OutOrStdout(), objectiveOutput, data)
	}
	printObjective(cmd.OutOrStdout(), data)
	return nil
}

func printObjective(out io.Writer, data *api.ObjectiveData) {
	if data == nil || len(data.QMEnergies) == 0 {
		fmt.Fprintln(out, "No objective data.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "#\tQM\tMM\tDIFF\tWEIGHT")
	for i := range data.QMEnergies {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i,
			valueAt(data.QMEnergies, i), valueAt(data.MMEnergies, i),
			valueAt(data.Diff, i), valueAt(data.Weights, i))
	}
	w.Flush()
}

func init() {
	paramsCmd.Flags().StringVarP(&paramsOutput, "output", "o", formatYAML, "output format (yaml, json)")
	targetsCmd.Flags().StringVarP(&targetsOutput, "output", "o", formatTable, "output format (table, yaml, json)")
	stateCmd.Flags().StringVarP(&stateOutput, "output", "o", formatTable, "output format (table, yaml, json)")
	forcefieldCmd.Flags().StringVarP(&forcefieldOutput, "output", "o", formatTable, "output format (table, yaml, json)")
	objectiveCmd.Flags().StringVarP(&objectiveOutput, "output", "o", formatTable, "output format (table, yaml, json)")

	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(forcefieldCmd)
	rootCmd.AddCommand(objectiveCmd)
}
