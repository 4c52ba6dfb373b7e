package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burnwatch/burnwatch/internal/dispatch"
	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/noise"
	"github.com/burnwatch/burnwatch/internal/scheduler"
	"github.com/burnwatch/burnwatch/internal/slo"
	"github.com/burnwatch/burnwatch/internal/storage"
	"github.com/burnwatch/burnwatch/internal/storage/sqlite"
)

func main() {
	evaluateCmd := flag.NewFlagSet("evaluate", flag.ExitOnError)
	evalDB := evaluateCmd.String("db", "burnwatch.db", "path to the sqlite database")
	evalService := evaluateCmd.String("service", "", "service name")
	evalMetric := evaluateCmd.String("metric", "", "metric kind (availability|latency|error-rate|throughput)")

	dashboardCmd := flag.NewFlagSet("dashboard", flag.ExitOnError)
	dashDB := dashboardCmd.String("db", "burnwatch.db", "path to the sqlite database")
	dashService := dashboardCmd.String("service", "", "filter by service")

	resolveCmd := flag.NewFlagSet("resolve", flag.ExitOnError)
	resolveDB := resolveCmd.String("db", "burnwatch.db", "path to the sqlite database")
	resolveID := resolveCmd.Int64("id", 0, "alert id to resolve")
	resolveNote := resolveCmd.String("note", "", "optional resolution note")

	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateDir := validateCmd.String("dir", "", "directory containing seed YAML files")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "evaluate":
		evaluateCmd.Parse(os.Args[2:])
		if *evalService == "" || *evalMetric == "" {
			fmt.Fprintln(os.Stderr, "Error: --service and --metric flags are required")
			evaluateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runEvaluate(*evalDB, *evalService, *evalMetric))
	case "dashboard":
		dashboardCmd.Parse(os.Args[2:])
		os.Exit(runDashboard(*dashDB, *dashService))
	case "resolve":
		resolveCmd.Parse(os.Args[2:])
		if *resolveID == 0 {
			fmt.Fprintln(os.Stderr, "Error: --id flag is required")
			resolveCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runResolve(*resolveDB, *resolveID, *resolveNote))
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateDir == "" {
			fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
			validateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runValidate(*validateDir))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: burnwatch <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  evaluate --service <name> --metric <kind>   Evaluate one pair now and print any alerts")
	fmt.Println("  dashboard [--service <name>]                Show active alerts and budget state")
	fmt.Println("  resolve --id <id> [--note <text>]           Resolve an active alert")
	fmt.Println("  validate --dir <path>                       Validate seed YAML files in a directory")
	fmt.Println()
}

// quietLogger returns a logger that only surfaces warnings, so CLI
// output is not interleaved with pipeline chatter.
func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	logger.SetOutput(os.Stderr)
	return logger
}

func openStore(dbPath string) (*sqlite.Store, int) {
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: database %s not found\n", dbPath)
		return nil, 1
	}
	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		return nil, 1
	}
	return store, 0
}

func runEvaluate(dbPath, service, metric string) int {
	store, code := openStore(dbPath)
	if store == nil {
		return code
	}
	defer store.Close()

	logger := quietLogger()
	ctx := context.Background()

	registry := slo.NewRegistry(store, logger)
	if err := registry.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	evaluator := eval.NewEvaluator(registry, store, nil)
	noiseEngine := noise.NewEngine(store, store, 0, 0, 0, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.NewLogNotifier(logger), logger)
	sched := scheduler.NewScheduler(registry, evaluator, noiseEngine, store, dispatcher, logger, scheduler.Options{})

	alerts, err := sched.EvaluatePair(ctx, service, slo.MetricKind(metric))
	if err != nil {
		if errors.Is(err, slo.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no SLO defined for %s/%s\n", service, metric)
		} else {
			fmt.Fprintf(os.Stderr, "Error: evaluation failed: %v\n", err)
		}
		return 1
	}

	if len(alerts) == 0 {
		fmt.Printf("%s/%s: no alerts\n", service, metric)
		return 0
	}

	for _, a := range alerts {
		status := "FIRED"
		if a.Suppressed {
			status = fmt.Sprintf("SUPPRESSED (%s)", a.SuppressionReason)
		}
		fmt.Printf("[%d] %s %s %s burn=%.1fx budget=%.1f%%\n",
			a.ID, status, a.Severity, a.Key.String(), a.BurnRateMultiple, a.BudgetRemainingPercent)
	}
	return 0
}

func runDashboard(dbPath, service string) int {
	store, code := openStore(dbPath)
	if store == nil {
		return code
	}
	defer store.Close()

	ctx := context.Background()

	defs, err := store.ListDefinitions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	states, err := store.ListPairStates(ctx, service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	alerts, err := store.ListActiveAlerts(ctx, service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	stateFor := make(map[string]storage.PairState, len(states))
	for _, st := range states {
		stateFor[st.Service+"/"+string(st.Metric)] = st
	}

	fmt.Println("SLO pairs:")
	shown := 0
	for _, def := range defs {
		if service != "" && def.Service != service {
			continue
		}
		shown++
		key := def.Service + "/" + string(def.Metric)
		window := slo.FormatDuration(time.Duration(def.WindowMinutes) * time.Minute)
		st, ok := stateFor[key]
		if !ok {
			fmt.Printf("  %-40s target=%.2f%%/%s  (never evaluated)\n", key, def.TargetPercent, window)
			continue
		}
		staleness := time.Since(st.EvaluatedAt).Round(time.Second)
		if st.NoData {
			fmt.Printf("  %-40s target=%.2f%%/%s  NO DATA  evaluated %s ago\n", key, def.TargetPercent, window, staleness)
			continue
		}
		fmt.Printf("  %-40s target=%.2f%%/%s  budget remaining=%.1f%%  evaluated %s ago\n",
			key, def.TargetPercent, window, st.BudgetRemainingPercent, staleness)
		for _, name := range sortedKeys(st.BurnRates) {
			fmt.Printf("    %-12s burn=%.2fx\n", name, st.BurnRates[name])
		}
	}
	if shown == 0 {
		fmt.Println("  (none)")
	}

	fmt.Println()
	fmt.Println("Active alerts:")
	if len(alerts) == 0 {
		fmt.Println("  (none)")
		return 0
	}
	for _, a := range alerts {
		age := time.Since(a.CreatedAt).Round(time.Second)
		fmt.Printf("  [%d] %-9s %-40s burn=%.1fx budget=%.1f%%  fired %s ago\n",
			a.ID, a.Severity, a.Key.String(), a.BurnRateMultiple, a.BudgetRemainingPercent, age)
	}
	return 0
}

func runResolve(dbPath string, id int64, note string) int {
	store, code := openStore(dbPath)
	if store == nil {
		return code
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.ResolveAlert(ctx, id, note, time.Now()); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no active alert with id %d\n", id)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	fmt.Printf("Alert %d resolved\n", id)
	return 0
}

func runValidate(dirPath string) int {
	schemaPath := findSchemaFile()
	if schemaPath == "" {
		fmt.Fprintln(os.Stderr, "Error: could not find schemas/seed_v1.json")
		return 1
	}

	validator, err := slo.NewValidator(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	errs := validator.ValidateDirectory(dirPath)
	if len(errs) == 0 {
		fmt.Println("✓ All seed files are valid")
		return 0
	}

	// Group errors by file
	errorsByFile := make(map[string][]slo.ValidationError)
	for _, e := range errs {
		errorsByFile[e.File] = append(errorsByFile[e.File], e)
	}

	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(errs))
	for _, file := range files {
		for _, e := range errorsByFile[file] {
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(e.File), e.Path, e.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(e.File), e.Message)
			}
		}
	}

	return 1
}

// findSchemaFile looks for the schema file in common locations
func findSchemaFile() string {
	candidates := []string{
		"schemas/seed_v1.json",
		"../schemas/seed_v1.json",
		"../../schemas/seed_v1.json",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
