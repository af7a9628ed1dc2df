package sql

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

func testGroups(t *testing.T) *tunable.Groups {
	t.Helper()
	tun, err := tunable.New(tunable.Tunable{
		Name: "replicas", Type: tunable.TypeInteger,
		Default: tunable.IntValue(1), Range: &tunable.Range{Lo: 1, Hi: 10},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("resources", 1, tun))
	require.NoError(t, err)
	return g
}

func TestCreateOrResumeExperimentInsertsNewRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_trial_id, next_trial_id, tunable_signature FROM experiment").
		WithArgs("exp-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO experiment").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO objectives").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := New(mock)
	exp, err := s.CreateOrResumeExperiment(context.Background(), storage.ExperimentParams{
		ID: "exp-1", Tunables: testGroups(t), Objectives: objective.Map{"latency_ms": objective.Min},
	})
	require.NoError(t, err)
	assert.Equal(t, "exp-1", exp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrResumeExperimentRejectsSignatureMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_trial_id, next_trial_id, tunable_signature FROM experiment").
		WithArgs("exp-1").
		WillReturnRows(pgxmock.NewRows([]string{"start_trial_id", "next_trial_id", "tunable_signature"}).
			AddRow(int64(0), int64(0), "some-other-signature"))
	mock.ExpectQuery("SELECT optimization_target, optimization_direction FROM objectives").
		WillReturnRows(pgxmock.NewRows([]string{"optimization_target", "optimization_direction"}).
			AddRow("latency_ms", string(objective.Min)))
	mock.ExpectRollback()

	s := New(mock)
	_, err = s.CreateOrResumeExperiment(context.Background(), storage.ExperimentParams{
		ID: "exp-1", Tunables: testGroups(t), Objectives: objective.Map{"latency_ms": objective.Min},
	})
	assert.ErrorIs(t, err, errkind.IncompatibleResume)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrInsertConfigReturnsExistingID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT config_id FROM config WHERE config_hash").
		WillReturnRows(pgxmock.NewRows([]string{"config_id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	s := New(mock)
	exp := &storage.Experiment{ID: "exp-1"}
	id, err := s.GetOrInsertConfig(context.Background(), exp, testGroups(t))
	require.NoError(t, err)
	assert.Equal(t, trial.ConfigID(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrInsertConfigInsertsWhenAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT config_id FROM config WHERE config_hash").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO config").
		WillReturnRows(pgxmock.NewRows([]string{"config_id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO config_param").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := New(mock)
	exp := &storage.Experiment{ID: "exp-1"}
	id, err := s.GetOrInsertConfig(context.Background(), exp, testGroups(t))
	require.NoError(t, err)
	assert.Equal(t, trial.ConfigID(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrialSkipsAlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM trial").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(string(status.Succeeded)))
	mock.ExpectCommit()

	s := New(mock)
	tr := trial.New("exp-1", 1, 1, time.Now(), nil)
	err = s.UpdateTrial(context.Background(), tr, status.Failed, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, status.Pending, tr.Status, "the in-memory handle is untouched when storage already shows terminal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrialRejectsMetricsOnNonSucceeded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM trial").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(string(status.Pending)))
	mock.ExpectRollback()

	s := New(mock)
	tr := trial.New("exp-1", 1, 1, time.Now(), nil)
	err = s.UpdateTrial(context.Background(), tr, status.Failed, time.Now(), map[string]float64{"latency_ms": 12})
	assert.ErrorIs(t, err, errkind.Invalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTelemetryInsertsEachPoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO trial_telemetry").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := New(mock)
	tr := trial.New("exp-1", 1, 1, time.Now(), nil)
	err = s.AppendTelemetry(context.Background(), tr, []trial.Telemetry{{Metric: "cpu", Value: 0.5, Timestamp: time.Now()}})
	require.NoError(t, err)
	assert.Len(t, tr.Telemetry, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
