package evidence

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/oncoscout/oncoscout/internal/storage"
)

func openEvidenceTest(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDependencyAdapterSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dependency", r.URL.Path)
		io.WriteString(w, `{"version":"24Q2","rows":[
			{"gene_id":"HGNC:6407","cancer_code":"PAAD","cell_line":"MIAPACA2","ceres":-1.8},
			{"gene_id":"HGNC:6407","cancer_code":"PAAD","cell_line":"PANC1","ceres":-1.5},
			{"gene_id":"HGNC:6407","cancer_code":"PAAD","cell_line":"ASPC1","ceres":-1.0}
		]}`)
	}))
	defer srv.Close()

	db := openEvidenceTest(t)
	a := NewDependencyAdapter(srv.URL, 100)

	n, err := a.Sync(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	run, err := db.LatestAdapterRun(SourceDependency)
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, "24Q2", run.Version)
	require.Equal(t, 3, run.RowCount)

	sum, err := SummarizeDependency(db, "HGNC:6407", "PAAD")
	require.NoError(t, err)
	require.NotNil(t, sum)
	require.InDelta(t, (-1.8-1.5-1.0)/3, sum.Mean, 1e-9)
	require.InDelta(t, -1.5, sum.Median, 1e-9)
	require.Equal(t, 3, sum.CellLines)
}

func TestAdapterSyncIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"v1","rows":[
			{"gene_id":"HGNC:6407","cancer_code":"PAAD","frequency":0.95,"sample_count":1200}
		]}`)
	}))
	defer srv.Close()

	db := openEvidenceTest(t)
	a := NewMutationAdapter(srv.URL, 100)

	for i := 0; i < 2; i++ {
		_, err := a.Sync(context.Background(), db)
		require.NoError(t, err)
	}

	row, err := db.MutationFrequencyFor("HGNC:6407", "PAAD")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.InDelta(t, 0.95, row.Frequency, 1e-9)
	require.NotNil(t, row.SampleCount)
	require.EqualValues(t, 1200, *row.SampleCount)
}

func TestStructureAdapterKeepsNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"v3","rows":[
			{"gene_id":"HGNC:6407","pdb_count":4,"predicted_plddt":91.2,"pocket_druggability":0.55},
			{"gene_id":"HGNC:12825","pdb_count":0}
		]}`)
	}))
	defer srv.Close()

	db := openEvidenceTest(t)
	_, err := NewStructureAdapter(srv.URL, 100).Sync(context.Background(), db)
	require.NoError(t, err)

	kras, err := db.StructureFor("HGNC:6407")
	require.NoError(t, err)
	require.NotNil(t, kras.PredictedPLDDT)
	require.InDelta(t, 91.2, *kras.PredictedPLDDT, 1e-9)

	// No predicted structure is distinct from a low pLDDT.
	wrn, err := db.StructureFor("HGNC:12825")
	require.NoError(t, err)
	require.Nil(t, wrn.PredictedPLDDT)
	require.Nil(t, wrn.PocketDruggability)
}

func TestAdapterRejectsUnversionedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"rows":[]}`)
	}))
	defer srv.Close()

	db := openEvidenceTest(t)
	_, err := NewCompoundAdapter(srv.URL, 100).Sync(context.Background(), db)
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestServiceSyncAllContinuesPastFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"version":"v1","rows":[{"gene_id":"HGNC:6407","inhibitor_count":12}]}`)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	db := openEvidenceTest(t)
	svc := NewService(db, log.New(io.Discard),
		NewPathwayAdapter(bad.URL, 100),
		NewCompoundAdapter(good.URL, 100),
	)

	results := svc.SyncAll(context.Background())
	require.Len(t, results, 2)
	require.NotEmpty(t, results[0].Error)
	require.Empty(t, results[1].Error)

	row, err := db.CompoundFor("HGNC:6407")
	require.NoError(t, err)
	require.Equal(t, 12, row.InhibitorCount)
}

func TestSummarizeDependencyEmpty(t *testing.T) {
	db := openEvidenceTest(t)
	sum, err := SummarizeDependency(db, "HGNC:0", "PAAD")
	require.NoError(t, err)
	require.Nil(t, sum)
}
