package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-audit/internal/errs"
)

// SQLStore persists audits in the schema created by db.Open. Queries use
// $n placeholders, which both the pgx and the modernc sqlite drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// ---- audits ----

const auditColumns = `id,type,title,status,auditor_user_id,auditee_user_id,auditor_group_id,auditee_group_id,
participant_user_id,source_audit_id,exam_start_time,time_limit_minutes,scheduled_start_time,
is_manually_locked,score_released,created_at,updated_at`

func scanAudit(r rowScanner) (Audit, error) {
	var a Audit
	var start, sched sql.NullInt64
	var created, updated int64
	err := r.Scan(&a.ID, &a.Type, &a.Title, &a.Status, &a.AuditorUserID, &a.AuditeeUserID,
		&a.AuditorGroupID, &a.AuditeeGroupID, &a.ParticipantUserID, &a.SourceAuditID,
		&start, &a.TimeLimitMinutes, &sched, &a.IsManuallyLocked, &a.ScoreReleased, &created, &updated)
	if err != nil {
		return Audit{}, err
	}
	a.ExamStartTime = fromNullMillis(start)
	a.ScheduledStartTime = fromNullMillis(sched)
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return a, nil
}

func (s *SQLStore) InsertAudits(ctx context.Context, bundles []Bundle) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range bundles {
			a := b.Audit
			_, err := tx.ExecContext(ctx, `INSERT INTO audits (`+auditColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
				a.ID, string(a.Type), a.Title, string(a.Status), a.AuditorUserID, a.AuditeeUserID,
				a.AuditorGroupID, a.AuditeeGroupID, a.ParticipantUserID, a.SourceAuditID,
				nullMillis(a.ExamStartTime), a.TimeLimitMinutes, nullMillis(a.ScheduledStartTime),
				a.IsManuallyLocked, a.ScoreReleased, millis(a.CreatedAt), millis(a.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert audit %s: %w", a.ID, err)
			}
			if err := insertItems(ctx, tx, a.ID, b.Items); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) GetAudit(ctx context.Context, id string) (Audit, error) {
	return getAudit(ctx, s.db, id)
}

func getAudit(ctx context.Context, q queryer, id string) (Audit, error) {
	row := q.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE id=$1`, id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Audit{}, errs.NotFound("audit", id)
	}
	if err != nil {
		return Audit{}, fmt.Errorf("get audit %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLStore) UpdateAudit(ctx context.Context, id string, p AuditPatch) (Audit, error) {
	sets, args := []string{}, []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.TimeLimitMinutes != nil {
		add("time_limit_minutes", *p.TimeLimitMinutes)
	}
	if p.IsManuallyLocked != nil {
		add("is_manually_locked", *p.IsManuallyLocked)
	}
	if p.ScoreReleased != nil {
		add("score_released", *p.ScoreReleased)
	}
	add("updated_at", millis(time.Now()))
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE audits SET %s WHERE id=$%d`, strings.Join(sets, ","), len(args)), args...)
	if err != nil {
		return Audit{}, fmt.Errorf("update audit %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Audit{}, errs.NotFound("audit", id)
	}
	return s.GetAudit(ctx, id)
}

func (s *SQLStore) DeleteAudit(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM evaluation_items WHERE audit_id=$1`, id); err != nil {
			return fmt.Errorf("delete items of %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM audits WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete audit %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.NotFound("audit", id)
		}
		return nil
	})
}

// StartExam is a single conditional UPDATE so two concurrent starts cannot
// both succeed.
func (s *SQLStore) StartExam(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET exam_start_time=$1, updated_at=$1 WHERE id=$2 AND exam_start_time IS NULL`,
		millis(at), id)
	if err != nil {
		return false, fmt.Errorf("start exam %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start exam %s: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetAudit(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ---- items ----

const itemColumns = `id,audit_id,category,subcategory,criteria,sort_order,bobot,subcategory_bobot,category_bobot,
auditee_answer,auditee_score,auditee_description,evidence_link,evaluator_answer,evaluator_score,note,recommendation,
teacher_score,status,auditee_response,evaluator_rebuttal,action_plan,assigned_evaluator_user_id,
assigned_auditee_user_id,assigned_to,version,updated_at`

func scanItem(r rowScanner) (EvaluationItem, error) {
	var it EvaluationItem
	var updated int64
	err := r.Scan(&it.ID, &it.AuditID, &it.Category, &it.Subcategory, &it.Criteria, &it.SortOrder,
		&it.Weight, &it.SubcategoryWeight, &it.CategoryWeight,
		&it.AuditeeAnswer, &it.AuditeeScore, &it.AuditeeDescription, &it.EvidenceLink,
		&it.EvaluatorAnswer, &it.EvaluatorScore, &it.Note, &it.Recommendation,
		&it.TeacherScore, &it.Status, &it.AuditeeResponse, &it.EvaluatorRebuttal, &it.ActionPlan,
		&it.AssignedEvaluatorUserID, &it.AssignedAuditeeUserID, &it.AssignedTo, &it.Version, &updated)
	if err != nil {
		return EvaluationItem{}, err
	}
	it.UpdatedAt = time.UnixMilli(updated).UTC()
	return it, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, auditID string, items []EvaluationItem) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO evaluation_items (`+itemColumns+`,seq)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()
	for i, it := range items {
		_, err := stmt.ExecContext(ctx,
			it.ID, auditID, it.Category, it.Subcategory, it.Criteria, it.SortOrder,
			it.Weight, it.SubcategoryWeight, it.CategoryWeight,
			it.AuditeeAnswer, it.AuditeeScore, it.AuditeeDescription, it.EvidenceLink,
			it.EvaluatorAnswer, it.EvaluatorScore, it.Note, it.Recommendation,
			it.TeacherScore, string(it.Status), it.AuditeeResponse, it.EvaluatorRebuttal, it.ActionPlan,
			it.AssignedEvaluatorUserID, it.AssignedAuditeeUserID, it.AssignedTo, it.Version, millis(it.UpdatedAt), i)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (s *SQLStore) GetItem(ctx context.Context, id string) (EvaluationItem, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q queryer, id string) (EvaluationItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM evaluation_items WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return EvaluationItem{}, errs.NotFound("item", id)
	}
	if err != nil {
		return EvaluationItem{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

func (s *SQLStore) ListItems(ctx context.Context, auditID string) ([]EvaluationItem, error) {
	if _, err := s.GetAudit(ctx, auditID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM evaluation_items WHERE audit_id=$1 ORDER BY seq`, auditID)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", auditID, err)
	}
	defer rows.Close()
	out := []EvaluationItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateItem(ctx context.Context, id string, p ItemPatch) (EvaluationItem, error) {
	var out EvaluationItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = updateItem(ctx, tx, id, p)
		return err
	})
	return out, err
}

func (s *SQLStore) UpdateItems(ctx context.Context, updates []ItemUpdate) ([]EvaluationItem, error) {
	out := make([]EvaluationItem, 0, len(updates))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			it, err := updateItem(ctx, tx, u.ItemID, u.Patch)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// updateItem issues one UPDATE whose WHERE clause carries the patch
// conditions. When no row matches, the current row is read back to tell a
// missing item from a failed condition.
func updateItem(ctx context.Context, q queryer, id string, p ItemPatch) (EvaluationItem, error) {
	sets, args := []string{}, []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	str := func(col string, v *string) {
		if v != nil {
			add(col, *v)
		}
	}
	num := func(col string, v *float64) {
		if v != nil {
			add(col, *v)
		}
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	str("auditee_answer", p.AuditeeAnswer)
	num("auditee_score", p.AuditeeScore)
	str("auditee_description", p.AuditeeDescription)
	str("evidence_link", p.EvidenceLink)
	str("evaluator_answer", p.EvaluatorAnswer)
	num("evaluator_score", p.EvaluatorScore)
	str("note", p.Note)
	str("recommendation", p.Recommendation)
	num("teacher_score", p.TeacherScore)
	str("auditee_response", p.AuditeeResponse)
	str("evaluator_rebuttal", p.EvaluatorRebuttal)
	str("action_plan", p.ActionPlan)
	str("assigned_evaluator_user_id", p.AssignedEvaluatorUserID)
	str("assigned_auditee_user_id", p.AssignedAuditeeUserID)
	add("updated_at", millis(time.Now()))
	sets = append(sets, "version=version+1")

	args = append(args, id)
	where := []string{fmt.Sprintf("id=$%d", len(args))}
	if p.Version != 0 {
		args = append(args, p.Version)
		where = append(where, fmt.Sprintf("version=$%d", len(args)))
	}
	if p.FromStatus != "" {
		args = append(args, string(p.FromStatus))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if p.RequireEmptyActionPlan {
		where = append(where, "action_plan=''")
	}

	res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE evaluation_items SET %s WHERE %s`,
		strings.Join(sets, ","), strings.Join(where, " AND ")), args...)
	if err != nil {
		return EvaluationItem{}, fmt.Errorf("update item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return EvaluationItem{}, fmt.Errorf("update item %s: %w", id, err)
	}
	current, err := getItem(ctx, q, id)
	if err != nil {
		return EvaluationItem{}, err
	}
	if n == 0 {
		if err := p.check(current); err != nil {
			return EvaluationItem{}, err
		}
		return EvaluationItem{}, errs.Concurrency("item %s changed concurrently", id)
	}
	return current, nil
}

// ---- groups ----

func (s *SQLStore) GroupMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id,user_id,leader FROM group_members WHERE user_id=$1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("group memberships of %s: %w", userID, err)
	}
	defer rows.Close()
	out := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Leader); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMembership registers a group member, updating the leader flag when the
// membership already exists.
func (s *SQLStore) AddMembership(ctx context.Context, m Membership) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO group_members (group_id,user_id,leader) VALUES ($1,$2,$3)
		ON CONFLICT (group_id,user_id) DO UPDATE SET leader=EXCLUDED.leader`, m.GroupID, m.UserID, m.Leader)
	if err != nil {
		return fmt.Errorf("add membership %s/%s: %w", m.GroupID, m.UserID, err)
	}
	return nil
}
