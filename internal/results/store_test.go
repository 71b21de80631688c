package results_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"greenwave/internal/models"
	"greenwave/internal/results"
)

func testSummary(job string, index int) models.RunSummary {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.RunSummary{
		RunID:           fmt.Sprintf("%s-run-%d", job, index),
		Job:             job,
		Controller:      models.ControllerFixed,
		RunIndex:        index,
		Seed:            uint64(100 + index),
		Ticks:           600,
		VehiclesPassed:  240,
		TotalThroughput: 410,
		DroppedVehicles: 3,
		TotalWait:       1800,
		MeanWait:        7.5,
		MaxQueue:        12,
		MeanQueue:       4.2,
		StartedAt:       started,
		EndedAt:         started.Add(2 * time.Second),
	}
}

func testRecords(runID string, ticks int) []models.MetricRecord {
	var out []models.MetricRecord
	for tick := 1; tick <= ticks; tick++ {
		for _, id := range []string{"a", "b"} {
			out = append(out, models.MetricRecord{
				RunID:                runID,
				Controller:           models.ControllerFixed,
				Tick:                 int64(tick),
				IntersectionID:       id,
				QueueLen:             tick % 5,
				CumulativeWait:       int64(tick * 2),
				CumulativeThroughput: int64(tick),
			})
		}
	}
	return out
}

func openStore(t *testing.T) *results.Store {
	t.Helper()
	store, err := results.Open(results.DBPath(t.TempDir()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	sum := testSummary("roundtrip", 0)
	sum.Partial = true
	sum.LearningFaults = 2
	sum.Error = &models.RunError{Type: models.ErrTypeInternal, Message: "boom"}
	records := testRecords(sum.RunID, 10)

	if err := store.SaveRun(ctx, sum, records); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.Summaries(ctx, "roundtrip")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	g := got[0]
	if g.RunID != sum.RunID || g.Controller != sum.Controller || g.Seed != sum.Seed {
		t.Errorf("identity mismatch: %+v", g)
	}
	if g.Ticks != sum.Ticks || g.TotalWait != sum.TotalWait || g.MeanWait != sum.MeanWait {
		t.Errorf("metrics mismatch: %+v", g)
	}
	if !g.Partial || g.LearningFaults != 2 {
		t.Errorf("flags lost in round trip: %+v", g)
	}
	if g.Error == nil || g.Error.Type != models.ErrTypeInternal || g.Error.Message != "boom" {
		t.Errorf("error lost in round trip: %+v", g.Error)
	}
	if !g.StartedAt.Equal(sum.StartedAt) || !g.EndedAt.Equal(sum.EndedAt) {
		t.Errorf("timestamps drifted: %v/%v", g.StartedAt, g.EndedAt)
	}

	gotRecords, err := store.Records(ctx, sum.RunID)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(gotRecords) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(gotRecords))
	}
	for i := range records {
		if gotRecords[i] != records[i] {
			t.Fatalf("record %d mismatch: %+v != %+v", i, gotRecords[i], records[i])
		}
	}
}

func TestStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			sum := testSummary("parallel", i)
			return store.SaveRun(ctx, sum, testRecords(sum.RunID, 25))
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent SaveRun failed: %v", err)
	}

	sums, err := store.Summaries(ctx, "parallel")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(sums) != 8 {
		t.Fatalf("expected 8 runs, got %d", len(sums))
	}
	for i, s := range sums {
		if s.RunIndex != i {
			t.Errorf("expected runs ordered by index, got %d at position %d", s.RunIndex, i)
		}
		recs, err := store.Records(ctx, s.RunID)
		if err != nil {
			t.Fatalf("Records failed: %v", err)
		}
		if len(recs) != 50 {
			t.Errorf("run %s: expected 50 records, got %d", s.RunID, len(recs))
		}
	}
}

func TestStoreJobFilter(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	for _, job := range []string{"alpha", "beta"} {
		for i := range 2 {
			sum := testSummary(job, i)
			if err := store.SaveRun(ctx, sum, nil); err != nil {
				t.Fatalf("SaveRun failed: %v", err)
			}
		}
	}

	beta, err := store.Summaries(ctx, "beta")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(beta) != 2 {
		t.Fatalf("expected 2 beta runs, got %d", len(beta))
	}
	for _, s := range beta {
		if s.Job != "beta" {
			t.Errorf("filter leaked job %q", s.Job)
		}
	}

	all, err := store.Summaries(ctx, "")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 runs across jobs, got %d", len(all))
	}
}

func TestStoreReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := results.DBPath(t.TempDir())

	store, err := results.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.SaveRun(ctx, testSummary("persist", 0), nil); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := results.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	sums, err := reopened.Summaries(ctx, "persist")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(sums) != 1 {
		t.Errorf("expected the saved run to survive reopen, got %d rows", len(sums))
	}
}

func TestPrepareJobDirRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	jobDir, err := results.PrepareJobDir(dir, "job-a")
	if err != nil {
		t.Fatalf("PrepareJobDir failed: %v", err)
	}
	if _, err := os.Stat(jobDir); err != nil {
		t.Fatalf("job dir not created: %v", err)
	}

	if _, err := results.PrepareJobDir(dir, "job-a"); err == nil {
		t.Fatal("expected error when job dir already exists")
	}
}

func TestWriteRunFiles(t *testing.T) {
	jobDir, err := results.PrepareJobDir(t.TempDir(), "files")
	if err != nil {
		t.Fatalf("PrepareJobDir failed: %v", err)
	}

	sum := testSummary("files", 2)
	records := testRecords(sum.RunID, 5)
	if err := results.WriteRun(jobDir, sum, records); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}

	runDir := results.RunDir(jobDir, 2)
	data, err := os.ReadFile(filepath.Join(runDir, "result.json"))
	if err != nil {
		t.Fatalf("reading result.json: %v", err)
	}
	var gotSum models.RunSummary
	if err := json.Unmarshal(data, &gotSum); err != nil {
		t.Fatalf("result.json is not valid JSON: %v", err)
	}
	if gotSum.RunID != sum.RunID || gotSum.Ticks != sum.Ticks {
		t.Errorf("result.json mismatch: %+v", gotSum)
	}

	data, err = os.ReadFile(filepath.Join(runDir, "metrics.json"))
	if err != nil {
		t.Fatalf("reading metrics.json: %v", err)
	}
	var gotRecords []models.MetricRecord
	if err := json.Unmarshal(data, &gotRecords); err != nil {
		t.Fatalf("metrics.json is not valid JSON: %v", err)
	}
	if len(gotRecords) != len(records) {
		t.Errorf("expected %d records in metrics.json, got %d", len(records), len(gotRecords))
	}

	result := &models.JobResult{JobName: "files", Controller: models.ControllerFixed, TotalRuns: 1}
	if err := results.WriteJobResult(jobDir, result); err != nil {
		t.Fatalf("WriteJobResult failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "result.json")); err != nil {
		t.Errorf("job result.json missing: %v", err)
	}
}
