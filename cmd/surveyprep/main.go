package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/surveyprep/internal/answerkey"
	"github.com/pavelanni/surveyprep/internal/demographics"
	"github.com/pavelanni/surveyprep/internal/export"
	"github.com/pavelanni/surveyprep/internal/model"
	"github.com/pavelanni/surveyprep/internal/mouselab"
	"github.com/pavelanni/surveyprep/internal/questionnaire"
	"github.com/pavelanni/surveyprep/internal/store"
	"github.com/pavelanni/surveyprep/internal/table"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "surveyprep",
		Short:        "Download, de-identify and score online experiment data",
		SilenceUsage: true,
	}
	root.AddCommand(downloadCmd(), scoreCmd(), quizCmd(), completeCmd(), demographicsCmd())
	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch participants of the listed HITs and write de-identified CSV files",
		RunE:  runDownload,
	}
	f := cmd.Flags()
	f.String("hits", "", "File with one HIT id per line; its base name names the experiment (required)")
	f.StringSlice("db-key", nil, "Database URI key in the environment or .database_uris (repeatable)")
	f.String("uri-dir", ".", "Directory containing .database_uris")
	f.String("db-driver", "", "Postgres driver override (pgx, pq)")
	f.String("save-path", export.DefaultSavePath, "Directory for the experiment's output files")
	f.String("labeler", export.DefaultLabelerPath, "Worker id to pid mapping file")
	f.Float64("bonus-rate", 0, "Bonus per point of task score (0 pays the score itself)")
	f.Float64("bonus-base", 0, "Bonus paid on top of the per-point bonus")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("hits")
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Explode questionnaire rows and score them against an answer key",
		RunE:  runScore,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Questionnaire CSV (required)")
	f.StringP("key", "k", "", "Answer key, YAML or JSON (required)")
	f.String("settings", "", "Scoring settings YAML")
	f.String("family", "", "Questionnaire family (generic, task); overrides settings")
	f.String("reverse-coded", "", "Force reverse coding (true, false); empty uses row values")
	f.String("open-ended", "", "Force open-ended scoring (true, false); empty uses row values")
	f.StringSlice("expand", nil, "Map column to spread into one column per key before scoring (repeatable)")
	f.StringP("output", "o", "-", "Output CSV (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "List participants who passed each comprehension quiz",
		RunE:  runQuiz,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Scored questionnaire CSV (required)")
	f.String("settings", "", "Scoring settings YAML with per-quiz limits")
	f.Float64("passing-score", 0, "Passing score for every quiz (0 uses settings or the default)")
	f.Float64("max-attempts", 0, "Allowed attempts for every quiz (0 uses settings or the default)")
	f.StringSlice("id-columns", nil, "Columns identifying a participant (default pid, run)")
	f.StringP("output", "o", "-", "Output CSV (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Keep mouselab participants with complete data and repair trial ids",
		RunE:  runComplete,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "mouselab-mdp CSV (required)")
	f.String("trials-per-block", "", "YAML or JSON with trial counts per block or per run (required)")
	f.String("rewards", "", "Ground-truth rewards JSON (required)")
	f.String("click-types", "", "YAML or JSON mapping click type names to node lists")
	f.StringP("output", "o", "-", "Output CSV (- for stdout)")
	addLogFlags(cmd)

	for _, name := range []string{"input", "trials-per-block", "rewards"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func demographicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demographics",
		Short: "Summarize age and gender answers",
		RunE:  runDemographics,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Demographics trial CSV (required)")
	f.String("form", "html", "Demographics trial kind (html, text)")
	f.StringSlice("pids", nil, "Only include these pids (text form)")
	f.String("gender-map", "", "YAML or JSON mapping extra gender answers to categories (text form)")
	f.String("age-map", "", "YAML or JSON mapping age answers to numbers (text form)")
	f.StringP("output", "o", "-", "Output CSV (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler).With("run_id", uuid.NewString(), "command", cmd.Name()))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SURVEYPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("surveyprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/surveyprep")
	v.AddConfigPath("/etc/surveyprep")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runDownload(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var driver store.Driver
	if name := v.GetString("db-driver"); name != "" {
		d, err := store.ParseDriver(name)
		if err != nil {
			return err
		}
		driver = d
	}

	opts := export.Options{
		HITFile:     v.GetString("hits"),
		DBKeys:      v.GetStringSlice("db-key"),
		URIDir:      v.GetString("uri-dir"),
		Driver:      driver,
		SavePath:    v.GetString("save-path"),
		LabelerPath: v.GetString("labeler"),
	}
	if rate, base := v.GetFloat64("bonus-rate"), v.GetFloat64("bonus-base"); rate != 0 || base != 0 {
		opts.Bonus = export.LinearBonus(rate, base)
	}

	res, err := export.Download(cmd.Context(), afero.NewOsFs(), opts)
	if err != nil {
		return fmt.Errorf("download %s: %w", res.Experiment, err)
	}
	slog.Info("download complete",
		"experiment", res.Experiment,
		"dir", res.Dir,
		"participants", res.Participants,
		"files", len(res.Files),
	)
	return nil
}

func runScore(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	fs := afero.NewOsFs()

	var settings answerkey.Settings
	if path := v.GetString("settings"); path != "" {
		s, err := answerkey.LoadSettings(fs, path)
		if err != nil {
			return err
		}
		settings = s
	}
	family := settings.Family
	if f := v.GetString("family"); f != "" {
		family = f
	}

	key, err := answerkey.Load(fs, v.GetString("key"))
	if err != nil {
		return err
	}
	input, err := table.ReadCSV(fs, v.GetString("input"))
	if err != nil {
		return err
	}
	for _, col := range v.GetStringSlice("expand") {
		if err := input.ExpandMap(col, model.Null()); err != nil {
			return err
		}
	}
	if patterns := settings.NamePatterns(); len(patterns) > 0 {
		if err := questionnaire.AssignQuizNames(input, patterns); err != nil {
			return fmt.Errorf("assign quiz names: %w", err)
		}
	}

	var scored *model.Table
	switch family {
	case "", "generic":
		opts := settings.GenericOptions()
		if opts.ReverseCoded, err = flagOverride(v, "reverse-coded", opts.ReverseCoded); err != nil {
			return err
		}
		if opts.OpenEnded, err = flagOverride(v, "open-ended", opts.OpenEnded); err != nil {
			return err
		}
		scored, err = questionnaire.ScoreGeneric(input, key, opts)
	case "task":
		scored, err = questionnaire.ScoreTask(input, key, settings.TaskOptions())
	default:
		return fmt.Errorf("unknown questionnaire family %q", family)
	}
	if err != nil {
		return fmt.Errorf("score %s: %w", v.GetString("input"), err)
	}
	slog.Info("scored questionnaire", "family", family, "input_rows", input.Len(), "items", scored.Len())
	return writeOutput(cmd, fs, v.GetString("output"), scored)
}

func flagOverride(v *viper.Viper, name string, current questionnaire.Flag) (questionnaire.Flag, error) {
	s := v.GetString(name)
	if s == "" {
		return current, nil
	}
	f, err := questionnaire.ParseFlag(s)
	if err != nil {
		return current, fmt.Errorf("--%s: %w", name, err)
	}
	return f, nil
}

func runQuiz(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	fs := afero.NewOsFs()

	var opts questionnaire.GateOptions
	if path := v.GetString("settings"); path != "" {
		s, err := answerkey.LoadSettings(fs, path)
		if err != nil {
			return err
		}
		opts = s.GateOptions()
	}
	if p := v.GetFloat64("passing-score"); p > 0 {
		opts.PassingScore = questionnaire.Uniform(p)
	}
	if m := v.GetFloat64("max-attempts"); m > 0 {
		opts.MaxAttempts = questionnaire.Uniform(m)
	}
	if cols := v.GetStringSlice("id-columns"); len(cols) > 0 {
		opts.IdentifyingColumns = cols
	}

	input, err := table.ReadCSV(fs, v.GetString("input"))
	if err != nil {
		return err
	}
	passers, err := questionnaire.QuizPassers(input, opts)
	if err != nil {
		return fmt.Errorf("quiz passers: %w", err)
	}
	for quiz, ps := range passers {
		slog.Info("quiz passers", "quiz", quiz, "passed", len(ps))
	}
	return writeOutput(cmd, fs, v.GetString("output"), questionnaire.PassersTable(passers, opts))
}

func runComplete(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	fs := afero.NewOsFs()

	countsVal, err := answerkey.LoadValue(fs, v.GetString("trials-per-block"))
	if err != nil {
		return err
	}
	counts, err := mouselab.ParseTrialCounts(countsVal)
	if err != nil {
		return err
	}
	rewards, err := mouselab.LoadRewards(fs, v.GetString("rewards"))
	if err != nil {
		return err
	}
	raw, err := table.ReadCSV(fs, v.GetString("input"))
	if err != nil {
		return err
	}

	out, err := mouselab.Preprocess(raw, counts, rewards)
	if err != nil {
		return fmt.Errorf("preprocess %s: %w", v.GetString("input"), err)
	}
	if path := v.GetString("click-types"); path != "" {
		types, err := loadClickTypes(fs, path)
		if err != nil {
			return err
		}
		mouselab.AddClickCounts(out, types)
	}
	slog.Info("kept complete participants",
		"participants", len(out.Unique(mouselab.ColPID)),
		"of", len(raw.Unique(mouselab.ColPID)),
		"rows", out.Len(),
	)
	return writeOutput(cmd, fs, v.GetString("output"), out)
}

func loadClickTypes(fs afero.Fs, path string) ([]mouselab.ClickType, error) {
	val, err := answerkey.LoadValue(fs, path)
	if err != nil {
		return nil, err
	}
	m := val.Map()
	if m == nil {
		return nil, fmt.Errorf("click types %s: expected a mapping", path)
	}
	var types []mouselab.ClickType
	for _, name := range m.Keys() {
		nodes, _ := m.Get(name)
		ct := mouselab.ClickType{Name: name}
		for _, n := range nodes.Seq() {
			ct.Nodes = append(ct.Nodes, n.Text())
		}
		types = append(types, ct)
	}
	return types, nil
}

func runDemographics(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	fs := afero.NewOsFs()

	raw, err := table.ReadCSV(fs, v.GetString("input"))
	if err != nil {
		return err
	}

	var (
		demo    *model.Table
		summary string
	)
	switch form := v.GetString("form"); form {
	case "html":
		demo, summary, err = demographics.HTMLForm(raw)
	case "text":
		opts := demographics.SurveyTextOptions{ValidPIDs: v.GetStringSlice("pids")}
		if opts.GenderOverrides, err = loadStringMap(fs, v.GetString("gender-map")); err != nil {
			return err
		}
		if opts.AgeMapping, err = loadStringMap(fs, v.GetString("age-map")); err != nil {
			return err
		}
		demo, summary, err = demographics.SurveyText(raw, opts)
	default:
		return fmt.Errorf("unknown demographics form %q", form)
	}
	if err != nil {
		return fmt.Errorf("demographics: %w", err)
	}

	slog.Info("demographics", "participants", demo.Len())
	fmt.Fprintln(cmd.ErrOrStderr(), summary)
	return writeOutput(cmd, fs, v.GetString("output"), demo)
}

func loadStringMap(fs afero.Fs, path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	val, err := answerkey.LoadValue(fs, path)
	if err != nil {
		return nil, err
	}
	m := val.Map()
	if m == nil {
		return nil, fmt.Errorf("%s: expected a mapping", path)
	}
	out := make(map[string]string, m.Len())
	for _, k := range m.Keys() {
		e, _ := m.Get(k)
		out[k] = e.Text()
	}
	return out, nil
}

func writeOutput(cmd *cobra.Command, fs afero.Fs, path string, t *model.Table) error {
	if path == "" || path == "-" {
		return table.Write(cmd.OutOrStdout(), t)
	}
	if _, err := table.WriteCSV(fs, path, t); err != nil {
		return err
	}
	slog.Info("wrote file", "path", path, "rows", t.Len())
	return nil
}
