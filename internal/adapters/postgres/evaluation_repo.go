package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// EvaluationRepo implements ports.EvaluationRepository with pgx.
type EvaluationRepo struct {
	db *DB
}

// NewEvaluationRepo creates a new EvaluationRepo.
func NewEvaluationRepo(db *DB) *EvaluationRepo {
	return &EvaluationRepo{db: db}
}

var objectColumns = []string{
	"evaluation_id", "source", "ord", "object_id", "x", "y", "z",
	"properties", "group_id", "tp_charge", "fp_charge", "fn_charge", "tag",
}

// Save stores an evaluation and all its tagged objects in one transaction.
// Objects are bulk-loaded with COPY.
func (r *EvaluationRepo) Save(ctx context.Context, e *domain.Evaluation) error {
	metricsJSON, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	sectors := e.Sectors
	if sectors == nil {
		sectors = []domain.SectorMetrics{}
	}
	sectorsJSON, err := json.Marshal(sectors)
	if err != nil {
		return fmt.Errorf("marshal sectors: %w", err)
	}
	var groups []domain.Group
	if e.Result != nil {
		groups = e.Result.Groups
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO evaluations (id, strategy, tolerance_m, digest, metrics, sectors, groups,
		                         num_groups, num_gt, num_det, balanced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, string(e.Strategy), e.ToleranceM, e.Digest, metricsJSON, sectorsJSON, groupsJSON,
		e.NumGroups, e.NumGT, e.NumDET, e.Balanced, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	if e.Result != nil {
		rows, err := objectRows(e.ID, e.Result)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"evaluation_objects"}, objectColumns, pgx.CopyFromRows(rows)); err != nil {
				return fmt.Errorf("copy objects: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an evaluation with its full result.
func (r *EvaluationRepo) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	var (
		e                                 domain.Evaluation
		strategy                          string
		metricsJSON, sectorsJSON, grpJSON []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, strategy, tolerance_m, digest, metrics, sectors, groups,
		       num_groups, num_gt, num_det, balanced, created_at
		FROM evaluations WHERE id = $1
	`, id).Scan(
		&e.ID, &strategy, &e.ToleranceM, &e.Digest, &metricsJSON, &sectorsJSON, &grpJSON,
		&e.NumGroups, &e.NumGT, &e.NumDET, &e.Balanced, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.Strategy = domain.Strategy(strategy)
	if err := json.Unmarshal(metricsJSON, &e.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if err := json.Unmarshal(sectorsJSON, &e.Sectors); err != nil {
		return nil, fmt.Errorf("decode sectors: %w", err)
	}
	if len(e.Sectors) == 0 {
		e.Sectors = nil
	}

	res := &domain.MatchResult{}
	if err := json.Unmarshal(grpJSON, &res.Groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	if res.GT, err = r.Objects(ctx, id, domain.SourceGT); err != nil {
		return nil, err
	}
	if res.DET, err = r.Objects(ctx, id, domain.SourceDET); err != nil {
		return nil, err
	}
	e.Result = res
	return &e, nil
}

// FindByDigest returns the oldest evaluation stored for an input digest.
func (r *EvaluationRepo) FindByDigest(ctx context.Context, digest string) (*domain.Evaluation, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM evaluations WHERE digest = $1
		ORDER BY created_at, id
		LIMIT 1
	`, digest).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("digest %s: %w", digest, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// List returns evaluation summaries, newest first, and the total count.
func (r *EvaluationRepo) List(ctx context.Context, offset, limit int) ([]domain.Evaluation, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM evaluations`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, strategy, tolerance_m, digest, metrics, num_groups, num_gt, num_det, balanced, created_at
		FROM evaluations
		ORDER BY created_at DESC, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Evaluation
	for rows.Next() {
		var (
			e           domain.Evaluation
			strategy    string
			metricsJSON []byte
		)
		if err := rows.Scan(&e.ID, &strategy, &e.ToleranceM, &e.Digest, &metricsJSON,
			&e.NumGroups, &e.NumGT, &e.NumDET, &e.Balanced, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Strategy = domain.Strategy(strategy)
		if err := json.Unmarshal(metricsJSON, &e.Metrics); err != nil {
			return nil, 0, fmt.Errorf("decode metrics: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Objects returns one side of an evaluation in input order.
func (r *EvaluationRepo) Objects(ctx context.Context, id string, source domain.Source) ([]domain.TaggedObject, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT object_id, x, y, z, properties, group_id, tp_charge, fp_charge, fn_charge, tag
		FROM evaluation_objects
		WHERE evaluation_id = $1 AND source = $2
		ORDER BY ord
	`, id, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaggedObject
	for rows.Next() {
		var (
			o         domain.TaggedObject
			pt        domain.Point
			propsJSON []byte
			groupID   *int32
			tp        string
			fp, fn    *string
			tag       string
		)
		if err := rows.Scan(&o.ID, &pt.X, &pt.Y, &pt.Z, &propsJSON, &groupID, &tp, &fp, &fn, &tag); err != nil {
			return nil, err
		}
		o.Geometry = &pt
		o.Source = source
		o.Tag = domain.Tag(tag)
		if len(propsJSON) > 0 && string(propsJSON) != "{}" {
			if err := json.Unmarshal(propsJSON, &o.Properties); err != nil {
				return nil, fmt.Errorf("decode properties of %s: %w", o.ID, err)
			}
		}
		if groupID != nil {
			g := int(*groupID)
			o.GroupID = &g
		}
		if o.Charge, err = parseCharge(tp, fp, fn); err != nil {
			return nil, fmt.Errorf("object %s: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// objectRows flattens both sides of a result into COPY rows.
func objectRows(evalID string, res *domain.MatchResult) ([][]any, error) {
	id, err := uuid.Parse(evalID)
	if err != nil {
		return nil, fmt.Errorf("evaluation id: %w", err)
	}
	rows := make([][]any, 0, len(res.GT)+len(res.DET))
	add := func(source domain.Source, objs []domain.TaggedObject) error {
		for i, o := range objs {
			if o.Geometry == nil {
				return fmt.Errorf("%s object %s: %w", source, o.ID, domain.ErrMissingGeometry)
			}
			props := []byte("{}")
			if len(o.Properties) > 0 {
				b, err := json.Marshal(o.Properties)
				if err != nil {
					return fmt.Errorf("marshal properties of %s: %w", o.ID, err)
				}
				props = b
			}
			var groupID *int32
			if o.GroupID != nil {
				g := int32(*o.GroupID)
				groupID = &g
			}
			rows = append(rows, []any{
				id, string(source), int32(i), o.ID,
				o.Geometry.X, o.Geometry.Y, o.Geometry.Z,
				props, groupID,
				ratString(o.Charge.TP), optRat(o.Charge.FP), optRat(o.Charge.FN),
				string(o.Tag),
			})
		}
		return nil
	}
	if err := add(domain.SourceGT, res.GT); err != nil {
		return nil, err
	}
	if err := add(domain.SourceDET, res.DET); err != nil {
		return nil, err
	}
	return rows, nil
}

func ratString(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	return r.RatString()
}

func optRat(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := r.RatString()
	return &s
}

func parseRat(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid charge %q", s)
	}
	return r, nil
}

func parseCharge(tp string, fp, fn *string) (domain.Charge, error) {
	var c domain.Charge
	var err error
	if c.TP, err = parseRat(tp); err != nil {
		return c, err
	}
	if fp != nil {
		if c.FP, err = parseRat(*fp); err != nil {
			return c, err
		}
	}
	if fn != nil {
		if c.FN, err = parseRat(*fn); err != nil {
			return c, err
		}
	}
	return c, nil
}
