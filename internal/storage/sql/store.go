// Package sql implements internal/storage.Storage against PostgreSQL via
// pgx, grounded on longregen-alicia's Store/WithTx/conn(ctx) pattern
// (api/store/db.go): a Store wraps a *pgxpool.Pool, exposes WithTx for
// compound writes (the scheduler's single-writer guarantee, spec.md §5),
// and an internal conn(ctx) that returns either the pool or an in-flight
// transaction depending on context.
package sql

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/retry"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

//go:embed schema.sql
var schemaFS embed.FS

// pool is the subset of *pgxpool.Pool's surface Store needs; satisfied by
// both the real pool and pgxmock.PgxPoolIface, so unit tests can substitute
// a mock without a real PostgreSQL instance.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store is a PostgreSQL-backed storage.Storage.
type Store struct {
	pool  pool
	retry retry.Policy
}

// Open connects to url, applies the embedded schema once, and returns a
// ready Store. Schema application uses CREATE TABLE IF NOT EXISTS, so Open
// is safe to call against an already-initialized database.
func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", errkind.StorageUnavailable, err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: ping: %v", errkind.StorageUnavailable, err)
	}
	s := &Store{pool: p, retry: retry.Default()}
	if err := s.migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open pool or pgxmock.PgxPoolIface (used by tests).
func New(p pool) *Store {
	return &Store{pool: p, retry: retry.Default()}
}

func (s *Store) migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	_, err = s.pool.Exec(ctx, string(schema))
	if err != nil {
		return fmt.Errorf("%w: apply schema: %v", errkind.StorageUnavailable, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

type txKey struct{}

// WithTx runs fn within a single transaction, serializing the compound
// writes the scheduler performs as the sole writer (spec.md §5 "Shared
// resources"). Nested calls join the outer transaction instead of starting
// a new one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", errkind.StorageUnavailable, err)
	}
	ctx = context.WithValue(ctx, txKey{}, tx)
	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", errkind.StorageUnavailable, err)
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) conn(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *Store) CreateOrResumeExperiment(ctx context.Context, p storage.ExperimentParams) (*storage.Experiment, error) {
	sig, err := signatureOf(p.Tunables)
	if err != nil {
		return nil, fmt.Errorf("%w: computing tunable signature: %v", errkind.Invalid, err)
	}

	var exp *storage.Experiment
	err = retry.Do(ctx, s.retry, func() error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			row := s.conn(ctx).QueryRow(ctx,
				`SELECT start_trial_id, next_trial_id, tunable_signature FROM experiment WHERE exp_id = $1`, p.ID)
			var startID, nextID int64
			var storedSig string
			err := row.Scan(&startID, &nextID, &storedSig)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return s.createExperiment(ctx, p, sig)
			case err != nil:
				return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
			}

			objs, err := s.loadObjectives(ctx, p.ID)
			if err != nil {
				return err
			}
			if !objs.Equal(p.Objectives) {
				return fmt.Errorf("%w: experiment %q objectives differ from stored state", errkind.IncompatibleResume, p.ID)
			}
			if storedSig != sig {
				return fmt.Errorf("%w: experiment %q tunable signature differs from stored state", errkind.IncompatibleResume, p.ID)
			}

			_ = nextID // tracked in the experiment row; the returned handle carries only identity/structure
			exp = &storage.Experiment{
				ID: p.ID, Objectives: objs, StartTrialID: trial.ID(startID), Tunables: p.Tunables,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if exp == nil {
		exp = &storage.Experiment{
			ID: p.ID, Objectives: p.Objectives, StartTrialID: p.StartTrialID, Tunables: p.Tunables,
		}
	}
	return exp, nil
}

func (s *Store) createExperiment(ctx context.Context, p storage.ExperimentParams, sig string) error {
	_, err := s.conn(ctx).Exec(ctx,
		`INSERT INTO experiment (exp_id, description, git_repo, git_commit, root_env_config, start_trial_id, next_trial_id, tunable_signature)
		 VALUES ($1,$2,$3,$4,$5,$6,$6,$7)`,
		p.ID, p.Description, p.GitRepo, p.GitCommit, p.RootEnvConfig, int64(p.StartTrialID), sig)
	if err != nil {
		return fmt.Errorf("%w: create experiment: %v", errkind.StorageUnavailable, err)
	}
	for target, dir := range p.Objectives {
		_, err := s.conn(ctx).Exec(ctx,
			`INSERT INTO objectives (exp_id, optimization_target, optimization_direction) VALUES ($1,$2,$3)`,
			p.ID, target, string(dir))
		if err != nil {
			return fmt.Errorf("%w: insert objective: %v", errkind.StorageUnavailable, err)
		}
	}
	return nil
}

func (s *Store) loadObjectives(ctx context.Context, expID string) (objective.Map, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT optimization_target, optimization_direction FROM objectives WHERE exp_id = $1`, expID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
	}
	defer rows.Close()
	out := objective.Map{}
	for rows.Next() {
		var target, dir string
		if err := rows.Scan(&target, &dir); err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}
		out[target] = objective.Direction(dir)
	}
	return out, rows.Err()
}

func (s *Store) GetOrInsertConfig(ctx context.Context, exp *storage.Experiment, tunables *tunable.Groups) (trial.ConfigID, error) {
	var id trial.ConfigID
	err := retry.Do(ctx, s.retry, func() error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			var err error
			id, err = s.getOrInsertConfig(ctx, tunables)
			return err
		})
	})
	return id, err
}

func (s *Store) getOrInsertConfig(ctx context.Context, tunables *tunable.Groups) (trial.ConfigID, error) {
	sum := sha256.Sum256([]byte(tunables.CanonicalString()))
	hash := hex.EncodeToString(sum[:])

	var id int64
	err := s.conn(ctx).QueryRow(ctx, `SELECT config_id FROM config WHERE config_hash = $1`, hash).Scan(&id)
	if err == nil {
		return trial.ConfigID(id), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
	}

	err = s.conn(ctx).QueryRow(ctx,
		`INSERT INTO config (config_hash) VALUES ($1) RETURNING config_id`, hash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert config: %v", errkind.StorageUnavailable, err)
	}
	for _, name := range tunables.TunableNames() {
		tun, _ := tunables.Lookup(name)
		_, err := s.conn(ctx).Exec(ctx,
			`INSERT INTO config_param (config_id, param_id, param_value) VALUES ($1,$2,$3)`,
			id, name, tun.Current.String())
		if err != nil {
			return 0, fmt.Errorf("%w: insert config_param: %v", errkind.StorageUnavailable, err)
		}
	}
	return trial.ConfigID(id), nil
}

func (s *Store) NewTrial(ctx context.Context, exp *storage.Experiment, tunables *tunable.Groups, tsStart *time.Time, meta trial.Metadata) (*trial.Trial, error) {
	var tr *trial.Trial
	err := retry.Do(ctx, s.retry, func() error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			configID, err := s.getOrInsertConfig(ctx, tunables)
			if err != nil {
				return err
			}

			var nextID int64
			err = s.conn(ctx).QueryRow(ctx,
				`UPDATE experiment SET next_trial_id = next_trial_id + 1 WHERE exp_id = $1 RETURNING next_trial_id - 1`,
				exp.ID).Scan(&nextID)
			if err != nil {
				return fmt.Errorf("%w: allocate trial id: %v", errkind.StorageUnavailable, err)
			}

			start := time.Now().UTC()
			if tsStart != nil {
				start = *tsStart
			}
			candidate := trial.New(exp.ID, trial.ID(nextID), configID, start, meta)

			_, err = s.conn(ctx).Exec(ctx,
				`INSERT INTO trial (exp_id, trial_id, config_id, ts_start, status) VALUES ($1,$2,$3,$4,$5)`,
				exp.ID, int64(candidate.TrialID), int64(configID), candidate.TSStart, string(candidate.Status))
			if err != nil {
				return fmt.Errorf("%w: insert trial: %v", errkind.StorageUnavailable, err)
			}
			for k, v := range candidate.Metadata {
				_, err := s.conn(ctx).Exec(ctx,
					`INSERT INTO trial_param (exp_id, trial_id, param_id, param_value) VALUES ($1,$2,$3,$4)`,
					exp.ID, int64(candidate.TrialID), k, v)
				if err != nil {
					return fmt.Errorf("%w: insert trial_param: %v", errkind.StorageUnavailable, err)
				}
			}
			tr = candidate
			return nil
		})
	})
	return tr, err
}

func (s *Store) PendingTrials(ctx context.Context, exp *storage.Experiment, nowUTC time.Time, includeRunning bool) ([]*trial.Trial, error) {
	statuses := []string{string(status.Pending)}
	if includeRunning {
		statuses = append(statuses, string(status.Ready), string(status.Running))
	}

	var out []*trial.Trial
	err := retry.Do(ctx, s.retry, func() error {
		rows, err := s.conn(ctx).Query(ctx,
			`SELECT trial_id, config_id, runner_id, ts_start, status FROM trial
			 WHERE exp_id = $1 AND ts_end IS NULL AND (ts_start <= $2) AND status = ANY($3)
			 ORDER BY trial_id`,
			exp.ID, nowUTC, statuses)
		if err != nil {
			return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			var id, configID int64
			var runnerID, st string
			var tsStart time.Time
			if err := rows.Scan(&id, &configID, &runnerID, &tsStart, &st); err != nil {
				return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
			}
			tr := trial.New(exp.ID, trial.ID(id), trial.ConfigID(configID), tsStart, nil)
			tr.Status = status.Status(st)
			tr.RunnerID = runnerID
			out = append(out, tr)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) Load(ctx context.Context, exp *storage.Experiment, afterTrialID trial.ID) (storage.LoadResult, error) {
	res := storage.LoadResult{}
	err := retry.Do(ctx, s.retry, func() error {
		rows, err := s.conn(ctx).Query(ctx,
			`SELECT trial_id, config_id, status FROM trial
			 WHERE exp_id = $1 AND trial_id > $2 AND status = ANY($3)
			 ORDER BY trial_id`,
			exp.ID, int64(afterTrialID), []string{
				string(status.Succeeded), string(status.Failed), string(status.Canceled), string(status.TimedOut),
			})
		if err != nil {
			return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}
		defer rows.Close()

		type row struct {
			id       trial.ID
			configID trial.ConfigID
			st       status.Status
		}
		var loaded []row
		for rows.Next() {
			var id, configID int64
			var st string
			if err := rows.Scan(&id, &configID, &st); err != nil {
				return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
			}
			loaded = append(loaded, row{trial.ID(id), trial.ConfigID(configID), status.Status(st)})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}

		res = storage.LoadResult{}
		for _, r := range loaded {
			cfg, err := s.configAsGroups(ctx, exp, r.configID)
			if err != nil {
				return err
			}
			res.IDs = append(res.IDs, r.id)
			res.Configs = append(res.Configs, cfg)
			res.Statuses = append(res.Statuses, r.st)
			if r.st.IsSucceeded() {
				sm, err := s.loadResult(ctx, exp.ID, r.id)
				if err != nil {
					return err
				}
				res.Scores = append(res.Scores, sm)
			} else {
				res.Scores = append(res.Scores, nil)
			}
		}
		return nil
	})
	return res, err
}

// ConfigTunables reconstructs the tunable assignment a config_id refers to,
// the public entry point to configAsGroups used by the scheduler to recover
// a pending trial's configuration for dispatch.
func (s *Store) ConfigTunables(ctx context.Context, exp *storage.Experiment, configID trial.ConfigID) (*tunable.Groups, error) {
	return s.configAsGroups(ctx, exp, configID)
}

func (s *Store) configAsGroups(ctx context.Context, exp *storage.Experiment, configID trial.ConfigID) (*tunable.Groups, error) {
	if exp.Tunables == nil {
		return nil, fmt.Errorf("%w: experiment has no tunable structure to reconstruct stored configs against", errkind.Invalid)
	}
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT param_id, param_value FROM config_param WHERE config_id = $1`, int64(configID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
	}
	defer rows.Close()

	clone := exp.Tunables.Clone()
	values := map[string]tunable.Value{}
	for rows.Next() {
		var paramID string
		var paramValue *string
		if err := rows.Scan(&paramID, &paramValue); err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}
		if paramValue == nil {
			continue
		}
		tun, ok := clone.Lookup(paramID)
		if !ok {
			continue
		}
		v, err := parseStoredValue(tun, *paramValue)
		if err != nil {
			return nil, err
		}
		values[paramID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
	}
	if err := clone.Assign(values); err != nil {
		return nil, err
	}
	return clone, nil
}

func (s *Store) loadResult(ctx context.Context, expID string, id trial.ID) (objective.ScoreMap, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT metric_id, metric_value FROM trial_result WHERE exp_id = $1 AND trial_id = $2`, expID, int64(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
	}
	defer rows.Close()
	sm := objective.ScoreMap{}
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
		}
		sm[metric] = value
	}
	return sm, rows.Err()
}

func (s *Store) UpdateTrial(ctx context.Context, tr *trial.Trial, st status.Status, ts time.Time, metrics map[string]float64) error {
	return retry.Do(ctx, s.retry, func() error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			var current string
			err := s.conn(ctx).QueryRow(ctx,
				`SELECT status FROM trial WHERE exp_id = $1 AND trial_id = $2`, tr.ExperimentID, int64(tr.TrialID)).Scan(&current)
			if err != nil {
				return fmt.Errorf("%w: %v", errkind.StorageUnavailable, err)
			}
			if status.Status(current).IsCompleted() {
				return nil // T-Terminal-Immutable
			}
			if metrics != nil && st != status.Succeeded {
				return fmt.Errorf("%w: metrics may only be set on a Succeeded trial, got %s", errkind.Invalid, st)
			}

			if st.IsCompleted() {
				end := trial.TruncateMicro(ts)
				_, err = s.conn(ctx).Exec(ctx,
					`UPDATE trial SET status = $1, ts_end = $2 WHERE exp_id = $3 AND trial_id = $4`,
					string(st), end, tr.ExperimentID, int64(tr.TrialID))
				tr.MarkTerminal(st, ts)
			} else {
				_, err = s.conn(ctx).Exec(ctx,
					`UPDATE trial SET status = $1 WHERE exp_id = $2 AND trial_id = $3`,
					string(st), tr.ExperimentID, int64(tr.TrialID))
				tr.Status = st
			}
			if err != nil {
				return fmt.Errorf("%w: update trial: %v", errkind.StorageUnavailable, err)
			}

			if metrics != nil {
				for k, v := range metrics {
					_, err := s.conn(ctx).Exec(ctx,
						`INSERT INTO trial_result (exp_id, trial_id, metric_id, metric_value) VALUES ($1,$2,$3,$4)
						 ON CONFLICT (exp_id, trial_id, metric_id) DO UPDATE SET metric_value = EXCLUDED.metric_value`,
						tr.ExperimentID, int64(tr.TrialID), k, v)
					if err != nil {
						return fmt.Errorf("%w: insert trial_result: %v", errkind.StorageUnavailable, err)
					}
				}
				tr.SetResult(metrics)
			}
			return nil
		})
	})
}

func (s *Store) AppendTelemetry(ctx context.Context, tr *trial.Trial, points []trial.Telemetry) error {
	return retry.Do(ctx, s.retry, func() error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			for _, p := range points {
				_, err := s.conn(ctx).Exec(ctx,
					`INSERT INTO trial_telemetry (exp_id, trial_id, ts, metric_id, metric_value) VALUES ($1,$2,$3,$4,$5)`,
					tr.ExperimentID, int64(tr.TrialID), p.Timestamp, p.Metric, p.Value)
				if err != nil {
					return fmt.Errorf("%w: insert telemetry: %v", errkind.StorageUnavailable, err)
				}
			}
			tr.AppendTelemetry(points...)
			return nil
		})
	})
}

func parseStoredValue(tun *tunable.Tunable, raw string) (tunable.Value, error) {
	switch tun.Type {
	case tunable.TypeCategorical:
		return tunable.CatValue(raw), nil
	case tunable.TypeInteger:
		var i int64
		if _, err := fmt.Sscanf(raw, "%d", &i); err != nil {
			return tunable.Value{}, fmt.Errorf("%w: parsing stored int value %q: %v", errkind.Invalid, raw, err)
		}
		return tunable.IntValue(i), nil
	default:
		var f float64
		if _, err := fmt.Sscanf(raw, "%g", &f); err != nil {
			return tunable.Value{}, fmt.Errorf("%w: parsing stored float value %q: %v", errkind.Invalid, raw, err)
		}
		return tunable.FloatValue(f), nil
	}
}

func signatureOf(g *tunable.Groups) (string, error) {
	return storage.SignatureOf(g)
}
