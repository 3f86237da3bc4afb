package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/certprep/internal/model"
)

// Complex question lists.
const (
	ComplexManyOptions = "many-options"
	ComplexManyAnswers = "many-answers"
	ComplexBoth        = "complex"
)

// ErrUnknownComplexType is returned for an unsupported complex list type.
var ErrUnknownComplexType = errors.New("unknown complex question type")

const questionColumns = `q.id, q.question, q.option1, q.option2, q.option3, q.option4, q.option5, q.option6,
	q.correct_answers, q.difficulty, q.topic, q.explanation, q.keywords, q.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// questionRow holds the raw column values of a question.
type questionRow struct {
	id, text                  string
	o1, o2, o3, o4            string
	o5, o6                    sql.NullString
	correct                   string
	difficulty, topic         string
	explanation, keywordsJSON sql.NullString
	createdAt                 int64
}

func (r *questionRow) dest() []any {
	return []any{&r.id, &r.text, &r.o1, &r.o2, &r.o3, &r.o4, &r.o5, &r.o6,
		&r.correct, &r.difficulty, &r.topic, &r.explanation, &r.keywordsJSON, &r.createdAt}
}

func (r *questionRow) question() model.Question {
	q := model.Question{
		ID:          r.id,
		Text:        r.text,
		Options:     []string{r.o1, r.o2, r.o3, r.o4},
		Difficulty:  model.Difficulty(r.difficulty),
		Topic:       r.topic,
		Explanation: r.explanation.String,
		Keywords:    []string{},
		CreatedAt:   time.UnixMilli(r.createdAt),
	}
	if r.o5.Valid && r.o5.String != "" {
		q.Options = append(q.Options, r.o5.String)
	}
	if r.o6.Valid && r.o6.String != "" {
		q.Options = append(q.Options, r.o6.String)
	}
	if err := json.Unmarshal([]byte(r.correct), &q.CorrectAnswers); err != nil {
		slog.Warn("malformed correct answers", "question", r.id, "error", err)
		q.CorrectAnswers = []int{}
	}
	if r.keywordsJSON.Valid && r.keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(r.keywordsJSON.String), &q.Keywords); err != nil {
			slog.Warn("malformed keywords", "question", r.id, "error", err)
			q.Keywords = []string{}
		}
	}
	return q
}

func scanQuestion(sc rowScanner) (model.Question, error) {
	var r questionRow
	if err := sc.Scan(r.dest()...); err != nil {
		return model.Question{}, err
	}
	return r.question(), nil
}

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func optionAt(opts []string, i int) sql.NullString {
	if i < len(opts) && opts[i] != "" {
		return sql.NullString{String: opts[i], Valid: true}
	}
	return sql.NullString{}
}

// InsertQuestion validates and stores a question, returning its new ID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (string, error) {
	return s.insertQuestion(ctx, s.db, q)
}

func (s *Store) insertQuestion(ctx context.Context, ex execer, q model.Question) (string, error) {
	if err := q.Validate(); err != nil {
		return "", fmt.Errorf("invalid question: %w", err)
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	correct, err := json.Marshal(q.CorrectAnswers)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = ex.ExecContext(ctx,
		`INSERT INTO questions (id, question, option1, option2, option3, option4, option5, option6,
			correct_answers, difficulty, topic, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3],
		optionAt(q.Options, 4), optionAt(q.Options, 5),
		string(correct), q.Difficulty, q.Topic, s.nowMilli(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListQuestionsFiltered returns questions matching the given filters, newest
// first. Empty strings mean no filtering on that field.
func (s *Store) ListQuestionsFiltered(ctx context.Context, difficulty, topic string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions q WHERE 1=1`
	var args []any
	if difficulty != "" {
		args = append(args, difficulty)
		query += fmt.Sprintf(` AND q.difficulty = $%d`, len(args))
	}
	if topic != "" {
		args = append(args, topic)
		query += fmt.Sprintf(` AND q.topic = $%d`, len(args))
	}
	query += ` ORDER BY q.seq DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// GetQuestion returns a question by ID, or sql.ErrNoRows.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	return scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id))
}

// GetQuestionsByIDs returns the questions with the given IDs in no
// particular order. Unknown IDs are skipped and duplicates collapse.
func (s *Store) GetQuestionsByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	uniq := slices.Clone(ids)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	if len(uniq) == 0 {
		return []model.Question{}, nil
	}
	args := make([]any, len(uniq))
	for i, id := range uniq {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.id IN (`+placeholders(1, len(uniq))+`)`, args...)
	if err != nil {
		return nil, err
	}
	qs, err := scanQuestions(rows)
	if qs == nil && err == nil {
		qs = []model.Question{}
	}
	return qs, err
}

// ListQuestionIDs returns every question ID.
func (s *Store) ListQuestionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM questions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteQuestion removes a question and its attempts. It returns
// sql.ErrNoRows when the question does not exist.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_attempts WHERE question_id = $1`, id); err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// QuestionCount returns the total number of questions.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// ListComplexQuestions returns up to limit questions of the given kind:
// many-options (5 or 6 options), many-answers (3 or more correct answers) or
// complex (5 or 6 options and more than one correct answer).
func (s *Store) ListComplexQuestions(ctx context.Context, kind string, limit int) ([]model.Question, error) {
	if limit <= 0 {
		limit = 10
	}
	var query string
	var keep func(model.Question) bool
	switch kind {
	case ComplexManyOptions:
		query = `SELECT ` + questionColumns + ` FROM questions q
			WHERE q.option5 IS NOT NULL OR q.option6 IS NOT NULL ORDER BY q.seq`
		keep = func(model.Question) bool { return true }
	case ComplexManyAnswers:
		query = `SELECT ` + questionColumns + ` FROM questions q ORDER BY q.seq`
		keep = func(q model.Question) bool { return len(q.CorrectAnswers) >= 3 }
	case ComplexBoth:
		query = `SELECT ` + questionColumns + ` FROM questions q
			WHERE q.option5 IS NOT NULL OR q.option6 IS NOT NULL ORDER BY q.seq`
		keep = func(q model.Question) bool { return len(q.CorrectAnswers) > 1 }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownComplexType, kind)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	all, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	out := []model.Question{}
	for _, q := range all {
		if len(out) == limit {
			break
		}
		if keep(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// UpdateExplanation caches a generated explanation on the question.
func (s *Store) UpdateExplanation(ctx context.Context, id string, exp model.Explanation) error {
	kw, err := json.Marshal(exp.Keywords)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET explanation = $1, keywords = $2 WHERE id = $3`,
		exp.Text, string(kw), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// QuestionsWithoutExplanation returns questions that have no cached explanation.
func (s *Store) QuestionsWithoutExplanation(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions q
		 WHERE q.explanation IS NULL OR q.explanation = '' ORDER BY q.seq`)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// ListDistinctTopics returns the sorted set of non-empty question topics.
func (s *Store) ListDistinctTopics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT topic FROM questions WHERE topic <> '' ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	topics := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
