package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

const (
	testGroup = "rnli"
	testTable = "harm_data"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "rnli.db")
	s, err := Open(context.Background(), path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func testRecord(id int64, lat, lon float64, station string) domain.FeatureRecord {
	return domain.FeatureRecord{
		ObjectID: id,
		Activity: domain.HarmActivity,
		AIC:      "Person in danger",
		Geo:      domain.Geo{Lat: lat, Lon: lon},
		Attributes: map[string]any{
			"OBJECTID": float64(id),
			"Activity": domain.HarmActivity,
			"AIC":      "Person in danger",
			"Station":  station,
			"Crew":     float64(4),
		},
	}
}

func testTableOf(name string, records ...domain.FeatureRecord) domain.Table {
	return domain.Table{Name: name, Columns: domain.InferColumns(records), Records: records}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	s, path := openTestStore(t)
	assert.FileExists(t, path)

	tables, err := s.Tables(context.Background(), testGroup)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestOpenExisting_MissingFile(t *testing.T) {
	_, err := OpenExisting(context.Background(), filepath.Join(t.TempDir(), "nope.db"), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open store")
}

func TestReplaceTable_WritesRowsInOrder(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	tbl := testTableOf(testTable,
		testRecord(3, 50.8, -1.3, "Calshot"),
		testRecord(1, 50.9, -1.4, "Hamble"),
	)
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", tbl))

	rows, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)

	assert.Equal(t, []string{"OBJECTID", "AIC", "Activity", "Crew", "Station", "Latitude", "Longitude"}, rows.Columns)
	want := [][]any{
		{int64(3), "Person in danger", domain.HarmActivity, int64(4), "Calshot", 50.8, -1.3},
		{int64(1), "Person in danger", domain.HarmActivity, int64(4), "Hamble", 50.9, -1.4},
	}
	if diff := cmp.Diff(want, rows.Values); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceTable_ReplacesPreviousGeneration(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first := testTableOf(testTable, testRecord(1, 50, -1, "A"), testRecord(2, 51, -2, "B"))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", first))

	second := testTableOf(testTable, testRecord(9, 52, -3, "C"))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-2", second))

	rows, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, int64(9), rows.Values[0][0])
}

func TestReplaceTable_Idempotent(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	tbl := testTableOf(testTable, testRecord(1, 50, -1, "A"), testRecord(2, 51, -2, "B"))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", tbl))
	before, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-2", tbl))
	after, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("table changed on rewrite (-before +after):\n%s", diff)
	}
}

func TestReplaceTable_FailureKeepsPreviousTable(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	good := testTableOf(testTable, testRecord(1, 50, -1, "A"))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", good))

	bad := testTableOf(testTable, testRecord(2, 51, -2, "B"), testRecord(3, 52, -3, "C"))
	// Crew was inferred as an integer column; a text value makes the second insert fail.
	bad.Records[1].Attributes["Crew"] = "four"

	err := s.ReplaceTable(ctx, testGroup, "run-2", bad)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "row 1")

	rows, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, int64(1), rows.Values[0][0])

	tables, err := s.Tables(ctx, testGroup)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "run-1", tables[0].RunID)
}

func TestReplaceTable_EmptyTable(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", testTableOf(testTable)))

	coords, err := s.LoadCoordinates(ctx, testTable)
	require.NoError(t, err)
	assert.Equal(t, 0, coords.Len())
	assert.NotNil(t, coords.Pairs())
}

func TestReplaceTable_ReservedNames(t *testing.T) {
	s, _ := openTestStore(t)
	for _, name := range []string{"table_groups", "sqlite_sequence"} {
		err := s.ReplaceTable(context.Background(), testGroup, "run-1", testTableOf(name))
		require.ErrorIs(t, err, ErrReservedTable)
	}
}

func TestReplaceTable_QuotesIdentifiers(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	rec := testRecord(1, 50, -1, "A")
	rec.Attributes[`Odd "name"; DROP`] = "x"
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", testTableOf("weird table", rec)))

	rows, err := s.ReadRows(ctx, "weird table")
	require.NoError(t, err)
	assert.Contains(t, rows.Columns, `Odd "name"; DROP`)
}

func TestLoadCoordinates(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	tbl := testTableOf(testTable, testRecord(1, 50.91, -1.41, "A"), testRecord(2, 50.85, -1.29, "B"))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", tbl))

	coords, err := s.LoadCoordinates(ctx, testTable)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][2]float64{{50.91, -1.41}, {50.85, -1.29}}, coords.Pairs())
}

func TestLoadCoordinates_TableNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.LoadCoordinates(context.Background(), "missing")
	require.ErrorIs(t, err, ErrTableNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadCoordinates_TableNameIgnoresCase(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", testTableOf(testTable, testRecord(1, 50.91, -1.41, "A"))))

	coords, err := s.LoadCoordinates(ctx, "HARM_DATA")
	require.NoError(t, err)
	assert.Equal(t, 1, coords.Len())

	rows, err := s.ReadRows(ctx, "Harm_Data")
	require.NoError(t, err)
	assert.Len(t, rows.Values, 1)
}

func TestReplaceTable_StoresParsedObjectID(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	rec := testRecord(12, 50.91, -1.41, "A")
	rec.Attributes["OBJECTID"] = "12"
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1", testTableOf(testTable, rec)))

	rows, err := s.ReadRows(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, "OBJECTID", rows.Columns[0])
	assert.Equal(t, int64(12), rows.Values[0][0])
}

func TestTables_Registry(t *testing.T) {
	fixed := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1",
		testTableOf("all_data", testRecord(1, 50, -1, "A"), testRecord(2, 51, -2, "B"))))
	require.NoError(t, s.ReplaceTable(ctx, testGroup, "run-1",
		testTableOf("harm_data", testRecord(1, 50, -1, "A"))))
	require.NoError(t, s.ReplaceTable(ctx, "other", "run-x",
		testTableOf("elsewhere", testRecord(5, 40, 2, "E"))))

	got, err := s.Tables(ctx, testGroup)
	require.NoError(t, err)

	want := []TableInfo{
		{Group: testGroup, Name: "all_data", RunID: "run-1", RowCount: 2, LoadedAt: fixed},
		{Group: testGroup, Name: "harm_data", RunID: "run-1", RowCount: 1, LoadedAt: fixed},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreValue(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.ColumnKind
		in      any
		want    any
		wantErr bool
	}{
		{"null integer", domain.KindInteger, nil, nil, false},
		{"whole float to integer", domain.KindInteger, 4.0, int64(4), false},
		{"bool to integer", domain.KindInteger, true, int64(1), false},
		{"fraction to integer", domain.KindInteger, 4.5, nil, true},
		{"text to integer", domain.KindInteger, "4", nil, true},
		{"whole float to real", domain.KindReal, 2.0, 2.0, false},
		{"text to real", domain.KindReal, "x", nil, true},
		{"float to text", domain.KindText, 1.5, "1.5", false},
		{"bool to text", domain.KindText, false, "false", false},
		{"object to text", domain.KindText, map[string]any{"a": 1.0}, `{"a":1}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storeValue(tt.kind, tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTypeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
