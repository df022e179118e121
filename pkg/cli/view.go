package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/mchmarny/outlier/pkg/config"
	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/report"
	"github.com/mchmarny/outlier/pkg/scorer"
	"github.com/mchmarny/outlier/pkg/store"
)

const (
	uploadMaxBytes  = 512 << 20
	uploadMemory    = 32 << 20
	uploadFileField = "file"
)

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string {
		return fmt.Sprintf("%.2f%%", v*100)
	},
	"num": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 3, 64)
	},
}

func homeViewHandler(cfg *config.Config, db *sql.DB, tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		v := map[string]any{
			"version":    version,
			"commit":     commit,
			"build_date": date,
			"err":        r.URL.Query().Get("err"),
			"config":     cfg,
		}

		runs, err := store.ListRuns(ctx, db)
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		v["runs"] = runs

		id := r.URL.Query().Get("run")
		if id == "" && len(runs) > 0 {
			id = runs[0].ID
		}

		if id != "" {
			if err := addRun(ctx, cfg, db, v, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					redirectWithError(w, r, "run not found")
					return
				}
				slog.Error("failed to load run", "id", id, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		if err := tmpl.ExecuteTemplate(w, "home", v); err != nil {
			slog.Error("template render failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

func addRun(ctx context.Context, cfg *config.Config, db *sql.DB, v map[string]any, id string) error {
	run, err := store.GetRun(ctx, db, id)
	if err != nil {
		return err
	}

	preview, err := store.GetDataset(ctx, db, id, cfg.PreviewRows)
	if err != nil {
		return err
	}

	outliers, err := store.GetOutliers(ctx, db, id, cfg.OutlierRows)
	if err != nil {
		return err
	}

	v["run"] = run
	v["preview"] = preview
	v["outliers"] = outliers
	return nil
}

// scoreHandler scores the uploaded file, or the sample when asked, and redirects to the new run.
func scoreHandler(cfg *config.Config, db *sql.DB, mu *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, uploadMaxBytes)
		if err := r.ParseMultipartForm(uploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			slog.Error("failed to parse upload", "error", err)
			redirectWithError(w, r, "upload failed, file too large or malformed")
			return
		}

		runCfg := *cfg
		if err := formOverrides(r, &runCfg); err != nil {
			redirectWithError(w, r, err.Error())
			return
		}

		var input io.Reader
		name := ""
		if r.FormValue("sample") != "" {
			runCfg.Source = string(dataset.SourceDefaultSample)
		} else {
			f, h, err := r.FormFile(uploadFileField)
			switch {
			case err == nil:
				defer f.Close()
				input = f
				name = h.Filename
			case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			default:
				slog.Error("failed to read upload", "error", err)
				redirectWithError(w, r, "failed to read uploaded file")
				return
			}
		}

		mu.Lock()
		run, err := scoreAndSave(r.Context(), &runCfg, db, input, name)
		mu.Unlock()
		if err != nil {
			if userError(err) {
				redirectWithError(w, r, err.Error())
				return
			}
			slog.Error("failed to score dataset", "error", err)
			redirectWithError(w, r, "failed to score dataset")
			return
		}

		http.Redirect(w, r, "/?run="+url.QueryEscape(run.ID), http.StatusSeeOther)
	}
}

func scoreAndSave(ctx context.Context, cfg *config.Config, db *sql.DB, input io.Reader, name string) (*store.Run, error) {
	ds, src, err := dataset.Load(cfg.InputSource(), input, name)
	if err != nil {
		return nil, err
	}

	opts := cfg.ScorerOptions()
	res, err := scorer.Score(ctx, ds, opts)
	if err != nil {
		return nil, err
	}
	warnIdentifierLike(res)

	eval, err := evaluate(ds, res, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}

	run := store.NewRun(src, report.Summarize(res, opts), eval)
	if err := store.SaveRun(ctx, db, run, res); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	slog.Info("dataset scored",
		"id", run.ID,
		"source", src,
		"rows", run.Summary.Total,
		"outliers", run.Summary.Outliers,
		"duration", run.Summary.Duration)
	return run, nil
}

// formOverrides applies the eps and min_samples form values.
func formOverrides(r *http.Request, cfg *config.Config) error {
	if v := r.FormValue("eps"); v != "" {
		eps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid eps: %s", v)
		}
		cfg.Eps = eps
	}
	if v := r.FormValue("min_samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid min_samples: %s", v)
		}
		cfg.MinSamples = n
	}
	return cfg.Validate()
}

func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?err="+url.QueryEscape(msg), http.StatusSeeOther)
}
