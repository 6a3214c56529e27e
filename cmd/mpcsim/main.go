package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/mpcsim/internal/analysis"
	"github.com/san-kum/mpcsim/internal/automation"
	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/csp"
	"github.com/san-kum/mpcsim/internal/db"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/export"
	"github.com/san-kum/mpcsim/internal/logging"
	"github.com/san-kum/mpcsim/internal/metrics"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/opt"
	"github.com/san-kum/mpcsim/internal/optim"
	"github.com/san-kum/mpcsim/internal/server"
	"github.com/san-kum/mpcsim/internal/sim"
	"github.com/san-kum/mpcsim/internal/storage"
	"github.com/san-kum/mpcsim/internal/tui"
	"github.com/san-kum/mpcsim/internal/viz"
)

const catalogFile = "catalog.db"

var (
	dataDir    string
	configFile string
	preset     string
	debug      bool

	steps        int
	period       int
	horizon      int
	initialState float64
	controller   string
	weightQ      float64
	weightR      float64
	weightS      float64
	lower        float64
	upper        float64
	manualInput  float64
	timeLimit    time.Duration

	artifacts bool
	watch     bool
	frameRate int

	listLimit int
	outFile   string
	writeLP   string
	box       int
	addr      string
	qValues   []float64
	rValues   []float64
	workers   int

	sweepMin     float64
	sweepMax     float64
	sweepSteps   int
	trials       int
	perturbation float64
	seed         int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mpcsim",
		Short: "receding-horizon control of a scalar plant",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(debug)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mpcsim", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a closed-loop simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&artifacts, "artifacts", false, "write the first horizon model as .lp/.sol")
	runCmd.Flags().BoolVar(&watch, "watch", false, "render steps while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate for --watch")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of runs (0 for all)")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "render a stored run to PNG or SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPlot,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (.png or .svg, default <run_dir>/trajectory.png)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "remove a run from the catalog and disk",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive terminal view of a run",
		Args:  cobra.NoArgs,
		RunE:  liveSimulation,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over the q and r weights",
		Args:  cobra.NoArgs,
		RunE:  tuneWeights,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&qValues, "q-values", []float64{1, 10, 100}, "state weights to try")
	tuneCmd.Flags().Float64SliceVar(&rValues, "r-values", []float64{0.1, 0.42, 1}, "input weights to try")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 for one per CPU)")

	queensCmd := &cobra.Command{
		Use:   "queens [n]",
		Short: "place n non-attacking queens",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveQueens,
	}
	queensCmd.Flags().StringVar(&writeLP, "write-lp", "", "write model.lp and model.sol with this path prefix")

	sudokuCmd := &cobra.Command{
		Use:   "sudoku [file]",
		Short: "solve a sudoku read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveSudoku,
	}
	sudokuCmd.Flags().IntVar(&box, "box", 3, "subgrid size (grid is box*box)")
	sudokuCmd.Flags().StringVar(&writeLP, "write-lp", "", "write model.lp and model.sol with this path prefix")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve stored runs and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	controllersCmd := &cobra.Command{
		Use:   "controllers",
		Short: "list available controllers",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range experiment.NewRegistry().ListControllers() {
				fmt.Printf("  %s\n", name)
			}
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "response, spectrum and return map of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run and store every step of a YAML scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [param]",
		Short: "sweep one parameter (" + strings.Join(sweepParams(), ", ") + ")",
		Args:  cobra.ExactArgs(1),
		RunE:  sweepParam,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2.0, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "n", 5, "number of values")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "random initial states around x0",
		Args:  cobra.NoArgs,
		RunE:  monteCarlo,
	}
	addRunFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturbation", 1.0, "uniform perturbation of x0")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 for time based)")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 for one per CPU)")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd, deleteCmd,
		analyzeCmd, liveCmd, tuneCmd, scenarioCmd, sweepCmd, monteCarloCmd,
		queensCmd, sudokuCmd, serveCmd, presetsCmd, controllersCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file")
	cmd.Flags().StringVar(&preset, "preset", "", "named preset (see presets)")
	cmd.Flags().IntVar(&steps, "steps", d.Steps, "simulation steps")
	cmd.Flags().IntVar(&period, "period", d.Period, "steps between re-plans")
	cmd.Flags().IntVar(&horizon, "horizon", d.Horizon, "prediction horizon")
	cmd.Flags().Float64Var(&initialState, "x0", d.InitialState, "initial state")
	cmd.Flags().StringVar(&controller, "controller", d.Controller, "controller")
	cmd.Flags().Float64Var(&weightQ, "q", d.Weights.Q, "state weight")
	cmd.Flags().Float64Var(&weightR, "r", d.Weights.R, "input weight")
	cmd.Flags().Float64Var(&weightS, "s", d.Weights.S, "terminal weight")
	cmd.Flags().Float64Var(&lower, "lower", d.Bounds.Lower, "input lower bound")
	cmd.Flags().Float64Var(&upper, "upper", d.Bounds.Upper, "input upper bound")
	cmd.Flags().Float64Var(&manualInput, "input", d.ManualInput, "constant input for the manual controller")
	cmd.Flags().DurationVar(&timeLimit, "time-limit", 0, "solver time limit per re-plan")
}

// loadConfig layers preset, config file, environment and changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case configFile != "":
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	default:
		cfg, err = config.FromEnv()
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("period") {
		cfg.Period = period
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("x0") {
		cfg.InitialState = initialState
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("q") {
		cfg.Weights.Q = weightQ
	}
	if flags.Changed("r") {
		cfg.Weights.R = weightR
	}
	if flags.Changed("s") {
		cfg.Weights.S = weightS
	}
	if flags.Changed("lower") {
		cfg.Bounds.Lower = lower
	}
	if flags.Changed("upper") {
		cfg.Bounds.Upper = upper
	}
	if flags.Changed("input") {
		cfg.ManualInput = manualInput
	}
	if flags.Changed("time-limit") {
		cfg.Solver.TimeLimit = timeLimit
	}
	return cfg, cfg.Validate()
}

func openCatalog() (*db.Catalog, func(), error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(filepath.Join(dataDir, catalogFile))
	if err != nil {
		return nil, nil, err
	}
	return db.NewCatalog(conn), func() { conn.Close() }, nil
}

func catalogEntry(meta storage.RunMetadata, runDir string, result *sim.Result) db.Entry {
	e := db.Entry{
		RunID:        meta.ID,
		CreatedAt:    meta.Timestamp,
		Controller:   meta.Controller,
		Plant:        meta.PlantPreset,
		Steps:        meta.Steps,
		Period:       meta.Period,
		Horizon:      meta.Horizon,
		InitialState: meta.InitialState,
		FinalState:   result.States[len(result.States)-1],
		Fallbacks:    len(result.Fallbacks),
		RunDir:       runDir,
	}
	if c, ok := result.Metrics["quadratic_cost"]; ok {
		e.Cost = &c
	}
	return e
}

// firstModel keeps the .lp/.sol text of the first re-plan.
type firstModel struct {
	lp, sol bytes.Buffer
	done    bool
	err     error
}

func (fm *firstModel) hook(f *mpc.Formulation, _ mpc.Solution) {
	if fm.done {
		return
	}
	fm.done = true
	ex, ok := f.Model.(opt.Exporter)
	if !ok {
		fm.err = fmt.Errorf("model %T cannot be exported", f.Model)
		return
	}
	if fm.err = ex.WriteLP(&fm.lp); fm.err != nil {
		return
	}
	if f.Model.Status().IsOptimal() {
		fm.err = ex.WriteSolution(&fm.sol)
	}
}

func (fm *firstModel) save(st *storage.Store, runID string) error {
	if fm.err != nil || !fm.done {
		return fm.err
	}
	if err := st.WriteArtifact(runID, "model.lp", func(w io.Writer) error {
		_, err := fm.lp.WriteTo(w)
		return err
	}); err != nil {
		return err
	}
	if fm.sol.Len() == 0 {
		return nil
	}
	return st.WriteArtifact(runID, "model.sol", func(w io.Writer) error {
		_, err := fm.sol.WriteTo(w)
		return err
	})
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewSolverCollector(reg)
	if err != nil {
		return err
	}
	mpcOpts := []mpc.Option{mpc.WithRecorder(collector)}
	var fm firstModel
	if artifacts {
		mpcOpts = append(mpcOpts, mpc.WithSolveHook(fm.hook))
	}

	exp := experiment.New(cfg, experiment.WithMPCOptions(mpcOpts...))
	if err := exp.Setup(); err != nil {
		return err
	}

	var renderer *tui.LiveRenderer
	if watch {
		renderer = tui.NewLiveRenderer(os.Stdout, cfg.Controller, math.Max(1, math.Abs(cfg.InitialState)), frameRate)
		exp.GetSimulator().AddObserver(renderer)
		renderer.Start()
	}

	ctx := cmd.Context()
	fmt.Printf("running %s for %d steps...\n", cfg.Controller, cfg.Steps)
	start := time.Now()
	result, err := exp.Run(ctx)
	if renderer != nil {
		renderer.Stop()
		fmt.Println()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	if ctrl, ok := exp.Policy().(*mpc.Controller); ok && logging.DebugEnabled() {
		log.Debug().
			Int("period", ctrl.Period()).
			Int("solves", ctrl.Solves()).
			Int("fallbacks", ctrl.Fallbacks()).
			Msg("controller summary")
	}

	cat, closeCatalog, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeCatalog()
	runID, err := saveRun(ctx, st, cat, cfg, result)
	if err != nil {
		return err
	}

	if artifacts {
		if err := fm.save(st, runID); err != nil {
			return fmt.Errorf("artifacts: %w", err)
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken())
	fmt.Printf("re-plans: %d (solves recorded: %.0f)\n", len(result.Inputs), solveCount(reg))
	for _, fb := range result.Fallbacks {
		fmt.Printf("  fallback at step %d: %s\n", fb.Step, fb.Status)
	}

	fmt.Println("\ninputs:")
	for i, u := range result.Inputs {
		fmt.Printf("  u[%d] = %.6f\n", i*cfg.Period, u)
	}

	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(result.Metrics) {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}

	fmt.Println()
	fmt.Println(asciigraph.Plot(result.States,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("x vs step"),
	))
	return nil
}

func solveCount(g prometheus.Gatherer) float64 {
	families, err := g.Gather()
	if err != nil {
		log.Debug().Err(err).Msg("gather solver metrics")
		return 0
	}
	var n float64
	for _, mf := range families {
		if mf.GetName() != "mpcsim_solves_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			n += m.GetCounter().GetValue()
		}
	}
	return n
}

// saveRun stores a finished run on disk and in the catalog.
func saveRun(ctx context.Context, st *storage.Store, cat *db.Catalog, cfg *config.Config, result *sim.Result) (string, error) {
	meta := storage.NewRunMetadata(cfg, result)
	runID, err := st.Save(meta, result)
	if err != nil {
		return "", err
	}
	meta.ID = runID
	return runID, cat.Record(ctx, catalogEntry(meta, st.RunDir(runID), result))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listRuns(cmd *cobra.Command, args []string) error {
	cat, closeCatalog, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeCatalog()

	runs, err := cat.List(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCTRL\tPLANT\tTIME\tSTEPS\tPERIOD\tHORIZON\tX_END\tFALLBACKS\tCOST")
	for _, run := range runs {
		cost := "-"
		if run.Cost != nil {
			cost = strconv.FormatFloat(*run.Cost, 'f', 4, 64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.4f\t%d\t%s\n",
			run.RunID,
			run.Controller,
			run.Plant,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Period,
			run.Horizon,
			run.FinalState,
			run.Fallbacks,
			cost,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(traj.States) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("controller: %s\n", meta.Controller)
	fmt.Printf("samples: %d\n\n", len(traj.States))

	fmt.Println(asciigraph.Plot(traj.States,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("x (state)"),
	))
	if len(traj.Applied) > 0 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(traj.Applied,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("u (applied input)"),
		))
	}
	return nil
}

func exportPlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	p, err := export.TrajectoryPlot(fmt.Sprintf("%s (%s)", meta.ID, meta.Controller), traj.States, traj.Applied)
	if err != nil {
		return err
	}
	path := outFile
	if path == "" {
		path = filepath.Join(st.RunDir(runID), "trajectory.png")
	}
	if err := export.Save(p, path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	traj, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	return storage.WriteTrajectoryCSV(os.Stdout, *traj)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(os.Stdout, args[0])
}

func deleteRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	cat, closeCatalog, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeCatalog()

	st := storage.New(dataDir)
	if _, err := st.Load(runID); err != nil {
		return err
	}
	if err := cat.Delete(cmd.Context(), runID); err != nil {
		return err
	}
	if err := os.RemoveAll(st.RunDir(runID)); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", runID)
	return nil
}

func liveSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	restart := func(obs sim.Observer) (*sim.Session, error) {
		exp := experiment.New(cfg, experiment.WithMPCOptions(mpc.WithLogger(zerolog.Nop())))
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		exp.GetSimulator().AddObserver(obs)
		return exp.GetSimulator().NewSession(cfg.InitialState, exp.SimConfig())
	}

	frame := time.Second / 30
	if frameRate > 0 {
		frame = time.Second / time.Duration(frameRate)
	}
	m, err := viz.NewModel(cmd.Context(), cfg.Controller, restart, frame)
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(viz.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

func tuneWeights(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gs := optim.NewGridSearch([]string{"q", "r"}, [][]float64{qValues, rValues})
	gs.SetLimit(workers)
	gs.SetScore(func() sim.Metric { return metrics.NewQuadraticCost(cfg.Weights.Q, cfg.Weights.R) })

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := cfg.Clone()
		c.Weights.Q = params["q"]
		c.Weights.R = params["r"]
		exp := experiment.New(c)
		return exp, exp.Setup()
	}

	fmt.Printf("evaluating %d weight pairs...\n\n", len(gs.Points()))
	cands, err := gs.Evaluate(cmd.Context(), build, "quadratic_cost")
	if err != nil {
		return err
	}

	best := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Q\tR\tCOST\tFALLBACKS")
	for i, c := range cands {
		fmt.Fprintf(w, "%g\t%g\t%.6f\t%d\n", c.Params["q"], c.Params["r"], c.Score, len(c.Result.Fallbacks))
		if c.Score < cands[best].Score {
			best = i
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	b := cands[best]
	fmt.Printf("\nbest: q=%g r=%g cost=%.6f (scored with q=%g r=%g)\n",
		b.Params["q"], b.Params["r"], b.Score, cfg.Weights.Q, cfg.Weights.R)
	return nil
}

func writeModelFiles(m opt.Model, prefix string) error {
	if prefix == "" {
		return nil
	}
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	lp, err := os.Create(prefix + ".lp")
	if err != nil {
		return err
	}
	defer lp.Close()
	var sol bytes.Buffer
	if err := csp.WriteArtifacts(m, lp, &sol); err != nil {
		return err
	}
	if sol.Len() > 0 {
		if err := os.WriteFile(prefix+".sol", sol.Bytes(), 0644); err != nil {
			return err
		}
	}
	return lp.Close()
}

func solveQueens(cmd *cobra.Command, args []string) error {
	n := csp.DefaultQueens
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid board size %q: %w", args[0], err)
		}
		n = v
	}

	q, err := csp.NQueens(cmd.Context(), experiment.NativeEnv(config.SolverConfig{}), n)
	if err != nil {
		return err
	}
	if err := writeModelFiles(q.Model, writeLP); err != nil {
		return err
	}

	board, err := q.Render()
	if errors.Is(err, csp.ErrUnsolved) {
		fmt.Printf("no placement for n=%d (%s)\n", n, q.Model.Status())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Print(board)
	return nil
}

func solveSudoku(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	p, err := csp.ParseSudoku(r, box)
	if err != nil {
		return err
	}
	s, err := csp.Sudoku(cmd.Context(), experiment.NativeEnv(config.SolverConfig{}), p)
	if err != nil {
		return err
	}
	if err := writeModelFiles(s.Model, writeLP); err != nil {
		return err
	}

	out, err := s.Render()
	if errors.Is(err, csp.ErrUnsolved) {
		fmt.Printf("puzzle has no solution (%s)\n", s.Model.Status())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	cat, closeCatalog, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeCatalog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := server.NewHandler(cat, storage.New(dataDir), reg)
	log.Info().Str("addr", addr).Str("data", dataDir).Msg("serving runs")
	return server.ListenAndServe(cmd.Context(), addr, h)
}


func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	traj, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	if len(traj.States) == 0 {
		return fmt.Errorf("no data")
	}

	fmt.Printf("response analysis: %s\n", meta.ID)
	fmt.Printf("controller: %s, plant: %s\n\n", meta.Controller, meta.Plant)

	r := analysis.Analyze(traj.States, traj.Applied)
	settle := "never"
	if r.SettlingStep >= 0 {
		settle = strconv.Itoa(r.SettlingStep)
	}
	fmt.Printf("settling step (%.0f%%): %s\n", analysis.DefaultBand*100, settle)
	fmt.Printf("overshoot:          %.6f\n", r.Overshoot)
	fmt.Printf("final |x|:          %.6f\n", r.FinalError)
	fmt.Printf("decay rate:         %.6f per step\n", r.DecayRate)
	fmt.Printf("peak |u|:           %.6f (%d steps)\n", r.PeakInput, r.Saturated)
	if p := analysis.DominantPeriod(traj.Applied); p > 0 {
		fmt.Printf("input period:       %.1f steps\n", p)
	}

	fmt.Println("\nreturn map x[t] -> x[t+1]:")
	fmt.Print(analysis.NewPortrait(traj.States).ASCII(60, 20))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	results, runErr := automation.RunScenario(cmd.Context(), sc)

	st := storage.New(dataDir)
	cat, closeCatalog, err := openCatalog()
	if err != nil {
		return err
	}
	defer closeCatalog()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tCTRL\tX_END\tFALLBACKS")
	for _, r := range results {
		runID, err := saveRun(cmd.Context(), st, cat, r.Config, r.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%d\n", r.Name, runID, r.Config.Controller,
			r.Result.States[len(r.Result.States)-1], len(r.Result.Fallbacks))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func sweepParams() []string {
	names := make([]string, 0, len(automation.Params))
	for k := range automation.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sweepParam(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      cfg,
		ParamName: args[0],
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tX_END\tSETTLE\tDECAY\tCOST\tFALLBACKS\n", strings.ToUpper(args[0]))
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%.6f\t%d\t%.4f\t%.4f\t%d\n",
			r.ParamValue, r.FinalState, r.Response.SettlingStep, r.Response.DecayRate,
			r.Metrics["quadratic_cost"], r.Fallbacks)
	}
	return w.Flush()
}

func monteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: perturbation,
		NumTrials:    trials,
		Seed:         seed,
		Workers:      workers,
	})
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	settled, fallbacks := 0, 0
	for _, r := range results {
		if r.Settled {
			settled++
		}
		fallbacks += r.Fallbacks
	}
	fmt.Printf("trials:    %d\n", len(results))
	fmt.Printf("stable:    %d\n", stable)
	fmt.Printf("unstable:  %d\n", unstable)
	fmt.Printf("settled:   %d\n", settled)
	fmt.Printf("fallbacks: %d\n", fallbacks)
	return nil
}
