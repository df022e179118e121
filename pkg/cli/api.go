package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mchmarny/outlier/pkg/config"
	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/report"
	"github.com/mchmarny/outlier/pkg/store"
)

const (
	resultsFileName = "outlier_results.csv"
	queryLimitMax   = 100000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps a lookup error to the response status.
func writeStoreError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func runsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.ListRuns(r.Context(), db)
		if err != nil {
			writeStoreError(w, err, "failed to list runs")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func runAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := store.GetRun(r.Context(), db, r.PathValue("id"))
		if err != nil {
			writeStoreError(w, err, "failed to get run")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func deleteRunAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := store.DeleteRun(r.Context(), db, id); err != nil {
			writeStoreError(w, err, "failed to delete run")
			return
		}
		slog.Debug("run deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func outliersAPIHandler(cfg *config.Config, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", cfg.OutlierRows)
		ds, err := store.GetOutliers(r.Context(), db, r.PathValue("id"), limit)
		if err != nil {
			writeStoreError(w, err, "failed to get outliers")
			return
		}
		writeJSON(w, http.StatusOK, ds)
	}
}

// scatterAPIHandler draws the sample indexes first and loads only those records.
func scatterAPIHandler(cfg *config.Config, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("id")

		run, err := store.GetRun(ctx, db, id)
		if err != nil {
			writeStoreError(w, err, "failed to get run")
			return
		}

		var total int
		var features []string
		if run.Summary != nil {
			total = run.Summary.Total
			features = run.Summary.Features
		}

		n := queryParamInt(r, "n", cfg.SampleSize)
		recs, err := store.GetRecordsAt(ctx, db, id, report.SampleIndexes(total, n, report.SampleSeedDefault))
		if err != nil {
			writeStoreError(w, err, "failed to get records")
			return
		}

		q := r.URL.Query()
		x, y := q.Get("x"), q.Get("y")
		if x == "" {
			x = cfg.ScatterX
		}
		if y == "" {
			y = cfg.ScatterY
		}

		s, err := report.Project(recs.Data, recs.Indexes, recs.Outliers, features, x, y, total)
		if err != nil {
			if errors.Is(err, dataset.ErrInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to sample run", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to sample run")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func downloadHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, err := store.GetDataset(r.Context(), db, r.PathValue("id"), store.NoLimit)
		if err != nil {
			writeStoreError(w, err, "failed to get dataset")
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+resultsFileName)
		if err := dataset.WriteCSV(w, ds); err != nil {
			slog.Error("failed to write results", "error", err)
		}
	}
}

// queryParamInt returns the positive int value of the key or def when it is missing or invalid.
func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > queryLimitMax {
		return def
	}

	return i
}
