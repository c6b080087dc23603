package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/surveyprep/internal/labeler"
	"github.com/pavelanni/surveyprep/internal/model"
	"github.com/pavelanni/surveyprep/internal/store"
	"github.com/pavelanni/surveyprep/internal/table"
)

const (
	DefaultSavePath    = "data/human"
	DefaultLabelerPath = "mturk_id_mapping.json"
)

var ErrNoParticipants = errors.New("no participants with recorded data")

// Options configures Download and Save.
type Options struct {
	HITFile string
	// DBKeys name entries of the database URI file or environment.
	DBKeys      []string
	URIDir      string
	Driver      store.Driver
	SavePath    string
	LabelerPath string
	Bonus       BonusFunc
}

func (o Options) withDefaults() Options {
	if o.SavePath == "" {
		o.SavePath = DefaultSavePath
	}
	if o.LabelerPath == "" {
		o.LabelerPath = DefaultLabelerPath
	}
	if o.URIDir == "" {
		o.URIDir = "."
	}
	return o
}

// WrittenFile describes one CSV written by Save.
type WrittenFile struct {
	Path  string
	Rows  int
	Bytes int64
}

// Result summarizes a download.
type Result struct {
	Experiment   string
	Dir          string
	Participants int
	Files        []WrittenFile
}

// Fetch reads the HIT id file and returns the participants of those HITs
// from every configured database. Databases are queried concurrently and
// the result keeps the order of opts.DBKeys.
func Fetch(ctx context.Context, fs afero.Fs, opts Options) ([]model.Participant, string, error) {
	opts = opts.withDefaults()
	hits, experiment, err := store.ReadHITIDs(fs, opts.HITFile)
	if err != nil {
		return nil, "", err
	}
	if len(opts.DBKeys) == 0 {
		return nil, experiment, errors.New("no database keys given")
	}
	uris, err := store.LoadDatabaseURIs(fs, opts.URIDir)
	if err != nil {
		return nil, experiment, err
	}

	resolved := make([]string, len(opts.DBKeys))
	for i, key := range opts.DBKeys {
		if resolved[i], err = uris.Get(key); err != nil {
			return nil, experiment, err
		}
	}

	perDB := make([][]model.Participant, len(opts.DBKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range opts.DBKeys {
		i, key := i, key
		g.Go(func() error {
			ps, err := fetchOne(gctx, resolved[i], opts.Driver, hits)
			if err != nil {
				return fmt.Errorf("database %s: %w", key, err)
			}
			slog.Info("fetched participants", "db_key", key, "hits", len(hits), "participants", len(ps))
			perDB[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, experiment, err
	}

	var all []model.Participant
	for _, ps := range perDB {
		all = append(all, ps...)
	}
	return all, experiment, nil
}

func fetchOne(ctx context.Context, uri string, driver store.Driver, hits []string) ([]model.Participant, error) {
	s, err := store.Open(ctx, uri, driver)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	slog.Debug("opened database", "driver", s.Driver())
	return s.FetchParticipants(ctx, hits)
}

// Download fetches the participants of an experiment and saves all of its
// files.
func Download(ctx context.Context, fs afero.Fs, opts Options) (Result, error) {
	ps, experiment, err := Fetch(ctx, fs, opts)
	if err != nil {
		return Result{Experiment: experiment}, err
	}
	return Save(fs, ps, experiment, opts)
}

// Save writes general info, question data, event data, bonuses and one
// trial file per trial type into <save path>/<experiment>. The labeler is
// loaded first and saved once every participant has been labeled.
func Save(fs afero.Fs, ps []model.Participant, experiment string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	res := Result{Experiment: experiment, Dir: filepath.Join(opts.SavePath, experiment), Participants: len(ps)}
	if len(ps) == 0 {
		return res, ErrNoParticipants
	}

	l, err := labeler.Load(fs, opts.LabelerPath)
	if err != nil {
		return res, err
	}
	known := l.Len()

	general := GeneralInfo(ps, l)
	questions, err := QuestionData(ps, l)
	if err != nil {
		return res, fmt.Errorf("question data: %w", err)
	}
	events, err := EventData(ps, l)
	if err != nil {
		return res, fmt.Errorf("event data: %w", err)
	}
	for _, out := range []struct {
		name string
		t    *model.Table
	}{
		{"general_info", general},
		{"question_data", questions},
		{"event_data", events},
	} {
		if err := res.write(fs, out.name, out.t); err != nil {
			return res, err
		}
	}

	trials, err := TrialData(ps, l)
	if err != nil {
		return res, fmt.Errorf("trial data: %w", err)
	}
	if err := l.Save(fs, opts.LabelerPath); err != nil {
		return res, fmt.Errorf("save labels: %w", err)
	}
	slog.Info("saved participant labels", "path", opts.LabelerPath, "new", l.Len()-known, "total", l.Len())

	if err := res.write(fs, "bonuses", Bonuses(trials, questions, general, l, opts.Bonus)); err != nil {
		return res, err
	}

	byType := SplitByTrialType(trials)
	types := make([]string, 0, len(byType))
	for tt := range byType {
		types = append(types, tt)
	}
	sort.Strings(types)
	for _, tt := range types {
		if err := res.write(fs, tt, byType[tt]); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Result) write(fs afero.Fs, name string, t *model.Table) error {
	path := filepath.Join(r.Dir, name+".csv")
	n, err := table.WriteCSV(fs, path, t)
	if err != nil {
		return err
	}
	slog.Info("wrote file", "path", path, "rows", t.Len(), "size", humanize.Bytes(uint64(n)))
	r.Files = append(r.Files, WrittenFile{Path: path, Rows: t.Len(), Bytes: n})
	return nil
}
