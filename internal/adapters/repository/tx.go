package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
)

// sqlTx implements campaign.Tx over one database transaction.
type sqlTx struct {
	tx *sql.Tx
}

var _ campaign.Tx = (*sqlTx)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Campaign

func (t *sqlTx) Campaign(ctx context.Context) (model.Campaign, error) {
	var (
		c       model.Campaign
		created int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT seed, required_count, scan_count, created_at FROM campaign WHERE id = 1`,
	).Scan(&c.Seed, &c.RequiredCount, &c.ScanCount, &created)
	if err != nil {
		return model.Campaign{}, notFound(err, "campaign", 1)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func (t *sqlTx) CreateCampaign(ctx context.Context, c model.Campaign) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO campaign (id, seed, required_count, scan_count, created_at) VALUES (1, ?, ?, 0, ?)`,
		c.Seed, c.RequiredCount, millis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (t *sqlTx) IncrementScanCount(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE campaign SET scan_count = scan_count + 1 WHERE id = 1 RETURNING scan_count`,
	).Scan(&n)
	if err != nil {
		return 0, notFound(err, "campaign", 1)
	}
	return n, nil
}

// Judges

const judgeColumns = `id, name, token, created_at`

func scanJudge(row scanner) (model.Judge, error) {
	var (
		j       model.Judge
		created int64
	)
	if err := row.Scan(&j.ID, &j.Name, &j.Token, &created); err != nil {
		return model.Judge{}, err
	}
	j.CreatedAt = fromMillis(created)
	return j, nil
}

func (t *sqlTx) InsertJudge(ctx context.Context, name, token string, at time.Time) (model.Judge, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO judges (name, token, created_at) VALUES (?, ?, ?)`, name, token, millis(at))
	if err != nil {
		return model.Judge{}, fmt.Errorf("insert judge %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Judge{}, fmt.Errorf("judge id: %w", err)
	}
	return model.Judge{ID: id, Name: name, Token: token, CreatedAt: fromMillis(millis(at))}, nil
}

func (t *sqlTx) Judge(ctx context.Context, id int64) (model.Judge, error) {
	j, err := scanJudge(t.tx.QueryRowContext(ctx, `SELECT `+judgeColumns+` FROM judges WHERE id = ?`, id))
	if err != nil {
		return model.Judge{}, notFound(err, "judge", id)
	}
	return j, nil
}

func (t *sqlTx) JudgeByToken(ctx context.Context, token string) (model.Judge, error) {
	j, err := scanJudge(t.tx.QueryRowContext(ctx, `SELECT `+judgeColumns+` FROM judges WHERE token = ?`, token))
	if err != nil {
		return model.Judge{}, notFound(err, "judge token", "<redacted>")
	}
	return j, nil
}

func (t *sqlTx) Judges(ctx context.Context) ([]model.Judge, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+judgeColumns+` FROM judges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}
	defer rows.Close()
	var out []model.Judge
	for rows.Next() {
		j, err := scanJudge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan judge: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Groups

func (t *sqlTx) UpsertGroup(ctx context.Context, g model.Group) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO work_groups (id, prompt_text, reference_locator) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	prompt_text = excluded.prompt_text,
	reference_locator = excluded.reference_locator
`, g.ID, g.PromptText, g.ReferenceLocator)
	if err != nil {
		return fmt.Errorf("upsert group %s: %w", g.ID, err)
	}
	return nil
}

func (t *sqlTx) Group(ctx context.Context, id string) (model.Group, error) {
	var g model.Group
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, prompt_text, reference_locator FROM work_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.PromptText, &g.ReferenceLocator)
	if err != nil {
		return model.Group{}, notFound(err, "group", id)
	}
	return g, nil
}

func (t *sqlTx) Groups(ctx context.Context) ([]model.Group, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, prompt_text, reference_locator FROM work_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	var out []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.PromptText, &g.ReferenceLocator); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Tasks

const taskColumns = `id, group_id, candidate_id, candidate_locator, required_count,
	current_count, completed, completed_at, retired_at`

func scanTask(row scanner) (model.Task, error) {
	var (
		tk                 model.Task
		completed          int
		completedAt, retAt sql.NullInt64
	)
	if err := row.Scan(&tk.ID, &tk.GroupID, &tk.CandidateID, &tk.CandidateLocator, &tk.RequiredCount,
		&tk.CurrentCount, &completed, &completedAt, &retAt); err != nil {
		return model.Task{}, err
	}
	tk.Completed = completed == 1
	tk.CompletedAt = fromNullMillis(completedAt)
	tk.RetiredAt = fromNullMillis(retAt)
	return tk, nil
}

func (t *sqlTx) InsertTask(ctx context.Context, tk model.Task) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO tasks (group_id, candidate_id, candidate_locator, required_count, current_count, completed)
VALUES (?, ?, ?, ?, 0, 0)
`, tk.GroupID, tk.CandidateID, tk.CandidateLocator, tk.RequiredCount)
	if err != nil {
		return 0, fmt.Errorf("insert task %s/%s: %w", tk.GroupID, tk.CandidateID, err)
	}
	return res.LastInsertId()
}

func (t *sqlTx) Task(ctx context.Context, id int64) (model.Task, error) {
	tk, err := scanTask(t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return model.Task{}, notFound(err, "task", id)
	}
	return tk, nil
}

func (t *sqlTx) Tasks(ctx context.Context) ([]model.Task, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, tk)
	}
	return out, rows.Err()
}

func (t *sqlTx) execOne(ctx context.Context, what string, id int64, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %d: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, campaign.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) SetTaskLocator(ctx context.Context, taskID int64, locator string) error {
	return t.execOne(ctx, "update locator of task", taskID,
		`UPDATE tasks SET candidate_locator = ? WHERE id = ?`, locator, taskID)
}

func (t *sqlTx) SetTaskRetired(ctx context.Context, taskID int64, at *time.Time) error {
	return t.execOne(ctx, "retire task", taskID,
		`UPDATE tasks SET retired_at = ? WHERE id = ?`, nullMillis(at), taskID)
}

func (t *sqlTx) DeleteTask(ctx context.Context, taskID int64) error {
	return t.execOne(ctx, "delete task", taskID, `DELETE FROM tasks WHERE id = ?`, taskID)
}

func (t *sqlTx) CountRaters(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT judge_id) FROM ratings WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count raters of task %d: %w", taskID, err)
	}
	return n, nil
}

func (t *sqlTx) SetTaskCount(ctx context.Context, taskID int64, count int) error {
	return t.execOne(ctx, "set count of task", taskID,
		`UPDATE tasks SET current_count = ? WHERE id = ?`, count, taskID)
}

func (t *sqlTx) MarkTaskCompleted(ctx context.Context, taskID int64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ? AND completed = 0`, millis(at), taskID)
	if err != nil {
		return false, fmt.Errorf("complete task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task %d: %w", taskID, err)
	}
	return n == 1, nil
}

// Assignments

const assignmentColumns = `a.id, a.judge_id, a.task_id, a.display_order, a.finished, a.finished_at`

// servable matches pending assignments next_task may return: the judge
// already rated the task, or the task is live and open. A rated task stays
// servable after it was retired so an undone judgment can be finished.
const servable = `a.finished = 0 AND (EXISTS (
	SELECT 1 FROM ratings r WHERE r.judge_id = a.judge_id AND r.task_id = a.task_id)
	OR (t.retired_at IS NULL AND t.completed = 0))`

func scanAssignment(row scanner) (model.Assignment, error) {
	var (
		a          model.Assignment
		finished   int
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.JudgeID, &a.TaskID, &a.DisplayOrder, &finished, &finishedAt); err != nil {
		return model.Assignment{}, err
	}
	a.Finished = finished == 1
	a.FinishedAt = fromNullMillis(finishedAt)
	return a, nil
}

func (t *sqlTx) InsertAssignment(ctx context.Context, judgeID, taskID int64, order int) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO assignments (judge_id, task_id, display_order, finished) VALUES (?, ?, ?, 0)`,
		judgeID, taskID, order)
	if err != nil {
		return 0, fmt.Errorf("assign task %d to judge %d: %w", taskID, judgeID, err)
	}
	return res.LastInsertId()
}

func (t *sqlTx) Assignment(ctx context.Context, id int64) (model.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.id = ?`, id))
	if err != nil {
		return model.Assignment{}, notFound(err, "assignment", id)
	}
	return a, nil
}

func (t *sqlTx) AssignmentFor(ctx context.Context, judgeID, taskID int64) (model.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.judge_id = ? AND a.task_id = ?`,
		judgeID, taskID))
	if err != nil {
		return model.Assignment{}, notFound(err, "assignment for task", taskID)
	}
	return a, nil
}

func (t *sqlTx) Assignments(ctx context.Context, judgeID int64) ([]model.Assignment, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.judge_id = ? ORDER BY a.display_order, a.id`,
		judgeID)
	if err != nil {
		return nil, fmt.Errorf("list assignments of judge %d: %w", judgeID, err)
	}
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) MaxDisplayOrder(ctx context.Context, judgeID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(display_order), -1) FROM assignments WHERE judge_id = ?`, judgeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max display order of judge %d: %w", judgeID, err)
	}
	return n, nil
}

func (t *sqlTx) SetDisplayOrder(ctx context.Context, assignmentID int64, order int) error {
	return t.execOne(ctx, "reorder assignment", assignmentID,
		`UPDATE assignments SET display_order = ? WHERE id = ?`, order, assignmentID)
}

func (t *sqlTx) SetFinished(ctx context.Context, assignmentID int64, finished bool, at *time.Time) error {
	return t.execOne(ctx, "set finished on assignment", assignmentID,
		`UPDATE assignments SET finished = ?, finished_at = ? WHERE id = ?`,
		boolInt(finished), nullMillis(at), assignmentID)
}

func (t *sqlTx) NextPending(ctx context.Context, judgeID int64) (model.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a JOIN tasks t ON t.id = a.task_id
WHERE a.judge_id = ? AND `+servable+`
ORDER BY a.display_order, a.id
LIMIT 1
`, judgeID))
	if err != nil {
		return model.Assignment{}, notFound(err, "next assignment of judge", judgeID)
	}
	return a, nil
}

func (t *sqlTx) PreviousFinished(ctx context.Context, judgeID int64, belowOrder int) (model.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a
WHERE a.judge_id = ? AND a.finished = 1 AND a.display_order < ?
ORDER BY a.display_order DESC, a.id DESC
LIMIT 1
`, judgeID, belowOrder))
	if err != nil {
		return model.Assignment{}, notFound(err, "previous assignment of judge", judgeID)
	}
	return a, nil
}

func (t *sqlTx) LatestFinished(ctx context.Context, judgeID int64) (model.Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRowContext(ctx, `
SELECT `+assignmentColumns+`
FROM assignments a
WHERE a.judge_id = ? AND a.finished = 1
ORDER BY a.display_order DESC, a.id DESC
LIMIT 1
`, judgeID))
	if err != nil {
		return model.Assignment{}, notFound(err, "latest finished assignment of judge", judgeID)
	}
	return a, nil
}

func (t *sqlTx) deleteCount(ctx context.Context, taskID int64, query string) (int, error) {
	res, err := t.tx.ExecContext(ctx, query, taskID)
	if err != nil {
		return 0, fmt.Errorf("delete assignments of task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments of task %d: %w", taskID, err)
	}
	return int(n), nil
}

func (t *sqlTx) PrunePending(ctx context.Context, taskID int64) (int, error) {
	return t.deleteCount(ctx, taskID, `
DELETE FROM assignments
WHERE task_id = ? AND finished = 0
  AND NOT EXISTS (
	SELECT 1 FROM ratings r
	WHERE r.judge_id = assignments.judge_id AND r.task_id = assignments.task_id)
`)
}

func (t *sqlTx) DeletePending(ctx context.Context, taskID int64) (int, error) {
	return t.deleteCount(ctx, taskID, `DELETE FROM assignments WHERE task_id = ? AND finished = 0`)
}

func (t *sqlTx) JudgesWithoutAssignment(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT j.id FROM judges j
WHERE NOT EXISTS (SELECT 1 FROM assignments a WHERE a.judge_id = j.id AND a.task_id = ?)
ORDER BY j.id
`, taskID)
	if err != nil {
		return nil, fmt.Errorf("judges without task %d: %w", taskID, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan judge id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Ratings

func (t *sqlTx) Rating(ctx context.Context, judgeID, taskID int64) (model.Rating, error) {
	var (
		r                model.Rating
		raw              string
		created, updated int64
		submitted        sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT id, judge_id, task_id, scores, created_at, updated_at, submitted_at
FROM ratings WHERE judge_id = ? AND task_id = ?
`, judgeID, taskID).Scan(&r.ID, &r.JudgeID, &r.TaskID, &raw, &created, &updated, &submitted)
	if err != nil {
		return model.Rating{}, notFound(err, "rating for task", taskID)
	}
	if err := json.Unmarshal([]byte(raw), &r.Scores); err != nil {
		return model.Rating{}, fmt.Errorf("decode scores of rating %d: %w", r.ID, err)
	}
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	r.SubmittedAt = fromNullMillis(submitted)
	return r, nil
}

func (t *sqlTx) UpsertRating(ctx context.Context, judgeID, taskID int64, scores []int, at time.Time) (model.Rating, error) {
	raw, err := json.Marshal(scores)
	if err != nil {
		return model.Rating{}, fmt.Errorf("encode scores: %w", err)
	}
	now := millis(at)
	var (
		id      int64
		created int64
	)
	err = t.tx.QueryRowContext(ctx, `
INSERT INTO ratings (judge_id, task_id, scores, created_at, updated_at, submitted_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (judge_id, task_id) DO UPDATE SET
	scores = excluded.scores,
	updated_at = excluded.updated_at,
	submitted_at = excluded.submitted_at
RETURNING id, created_at
`, judgeID, taskID, string(raw), now, now, now).Scan(&id, &created)
	if err != nil {
		return model.Rating{}, fmt.Errorf("upsert rating for task %d: %w", taskID, err)
	}
	submitted := fromMillis(now)
	return model.Rating{
		ID:          id,
		JudgeID:     judgeID,
		TaskID:      taskID,
		Scores:      append([]int(nil), scores...),
		CreatedAt:   fromMillis(created),
		UpdatedAt:   submitted,
		SubmittedAt: &submitted,
	}, nil
}

func (t *sqlTx) ClearSubmitted(ctx context.Context, judgeID, taskID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE ratings SET submitted_at = NULL, updated_at = ? WHERE judge_id = ? AND task_id = ?`,
		millis(at), judgeID, taskID)
	if err != nil {
		return fmt.Errorf("reopen rating for task %d: %w", taskID, err)
	}
	return nil
}

// Reporting

func (t *sqlTx) Progress(ctx context.Context, judgeID int64) (model.Progress, error) {
	var p model.Progress
	err := t.tx.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(CASE WHEN a.finished = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN `+servable+` THEN 1 ELSE 0 END), 0)
FROM assignments a JOIN tasks t ON t.id = a.task_id
WHERE a.judge_id = ?
`, judgeID).Scan(&p.Done, &p.Pending)
	if err != nil {
		return model.Progress{}, fmt.Errorf("progress of judge %d: %w", judgeID, err)
	}
	return p, nil
}

func (t *sqlTx) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	queries := []struct {
		q    string
		dest []any
	}{
		{`SELECT COUNT(*) FROM judges`, []any{&st.Judges}},
		{`
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN retired_at IS NULL AND completed = 0 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(completed), 0),
	COALESCE(SUM(CASE WHEN retired_at IS NOT NULL THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN retired_at IS NULL THEN required_count ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN retired_at IS NULL THEN MIN(current_count, required_count) ELSE 0 END), 0)
FROM tasks`, []any{&st.Tasks, &st.OpenTasks, &st.CompletedTasks, &st.RetiredTasks, &st.RequiredRatings, &st.CurrentRatings}},
		{`SELECT COUNT(*) FROM ratings`, []any{&st.Ratings}},
		{`SELECT COUNT(*) FROM assignments WHERE finished = 0`, []any{&st.PendingAssignment}},
	}
	for _, q := range queries {
		if err := t.tx.QueryRowContext(ctx, q.q).Scan(q.dest...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return model.Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}
