package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

func jobScanner(id int64, status string, score, images, logs []byte) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*int64) = id
		*dest[1].(*string) = "subject"
		*dest[2].(*string) = status
		*dest[7].(*[]byte) = score
		*dest[8].(*[]byte) = images
		*dest[9].(*[]byte) = logs
		return nil
	}
}

func TestJobRepositoryInsertEncodesJSON(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		}}
	}}
	repo := NewJobRepository(exec)
	id, err := repo.Insert(context.Background(), &domain.Job{
		Subject: "s",
		Status:  domain.JobStatusScheduled,
		Score:   &domain.ScoreBreakdown{Total: 80},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	args := exec.calls[0].args
	if args[1] != "scheduled" {
		t.Fatalf("status arg = %v", args[1])
	}
	if !strings.Contains(string(args[6].([]byte)), `"total":80`) {
		t.Fatalf("score arg = %s", args[6])
	}
	if args[7].([]byte) != nil {
		t.Fatalf("images arg = %s, want nil", args[7])
	}
	if string(args[8].([]byte)) != "[]" {
		t.Fatalf("logs arg = %s, want []", args[8])
	}
}

func TestJobRepositoryUpdateFlags(t *testing.T) {
	exec := &stubExecutor{execTags: []string{"UPDATE 0"}}
	repo := NewJobRepository(exec)
	status := domain.JobStatusGenerated
	ok, err := repo.Update(context.Background(), 9, domain.JobUpdate{Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Fatal("expected false when no row matched")
	}
	c := exec.calls[0]
	if c.query != sqlinline.QUpdateJob {
		t.Fatal("unexpected query")
	}
	if c.args[1] != true || *(c.args[2].(*string)) != "generated" {
		t.Fatalf("status args = %v %v", c.args[1], c.args[2])
	}
	for _, i := range []int{3, 5, 7, 9, 11, 13} {
		if c.args[i] != false {
			t.Fatalf("flag %d = %v, want false", i, c.args[i])
		}
	}
}

func TestJobRepositoryUpdateEmptyIsNoop(t *testing.T) {
	exec := &stubExecutor{}
	ok, err := NewJobRepository(exec).Update(context.Background(), 1, domain.JobUpdate{})
	if err != nil || !ok {
		t.Fatalf("Update = %v, %v", ok, err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("calls = %d, want 0", len(exec.calls))
	}
}

func TestJobRepositoryGet(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: jobScanner(7, "error",
			[]byte(`{"total":55,"notes":["n"]}`),
			[]byte(`{"featured_set":false,"errors":[{"stage":"featured","code":"invalid_url"}]}`),
			[]byte(`[{"time":"2024-05-01T10:00:00Z","source":"llm_provider","message":"boom"}]`))}
	}}
	job, err := NewJobRepository(exec).Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != domain.JobStatusError || job.Score == nil || job.Score.Total != 55 {
		t.Fatalf("job = %#v", job)
	}
	if job.Images == nil || len(job.Images.Errors) != 1 || job.Images.Errors[0].Stage != domain.ImageStageFeatured {
		t.Fatalf("images = %#v", job.Images)
	}
	if len(job.Logs) != 1 || job.Logs[0].Source != domain.LogSourceProvider {
		t.Fatalf("logs = %#v", job.Logs)
	}
}

func TestJobRepositoryGetNotFound(t *testing.T) {
	_, err := NewJobRepository(&stubExecutor{}).Get(context.Background(), 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryListDue(t *testing.T) {
	rows := &sliceRows{rows: []func(dest ...any) error{
		jobScanner(1, "scheduled", nil, nil, nil),
		jobScanner(2, "scheduled", nil, nil, []byte(`[]`)),
	}}
	exec := &stubExecutor{rows: rows}
	now := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	jobs, err := NewJobRepository(exec).ListDue(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(jobs) != 2 || jobs[1].ID != 2 {
		t.Fatalf("jobs = %#v", jobs)
	}
	if jobs[0].Score != nil || jobs[0].Logs == nil {
		t.Fatalf("job[0] = %#v", jobs[0])
	}
	if !rows.closed {
		t.Fatal("rows not closed")
	}
	if exec.calls[0].args[0] != now || exec.calls[0].args[1] != 10 {
		t.Fatalf("args = %v", exec.calls[0].args)
	}
}

func TestPostRepositorySetTermsDedupes(t *testing.T) {
	exec := &stubExecutor{}
	err := NewPostRepository(exec).SetTerms(context.Background(), 3, domain.TaxonomyTag, []string{" go ", "go", "", "wordpress"})
	if err != nil {
		t.Fatalf("SetTerms: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(exec.calls))
	}
	terms := exec.calls[1].args[2].([]string)
	if strings.Join(terms, ",") != "go,wordpress" {
		t.Fatalf("terms = %v", terms)
	}
}

func TestPostRepositorySetTermsEmptyOnlyClears(t *testing.T) {
	exec := &stubExecutor{}
	if err := NewPostRepository(exec).SetTerms(context.Background(), 3, domain.TaxonomyCategory, nil); err != nil {
		t.Fatalf("SetTerms: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0].query != sqlinline.QDeletePostTerms {
		t.Fatalf("calls = %#v", exec.calls)
	}
}

func TestPostRepositoryUpdateMissing(t *testing.T) {
	exec := &stubExecutor{execTags: []string{"UPDATE 0"}}
	title := "t"
	err := NewPostRepository(exec).Update(context.Background(), 5, domain.PostUpdate{Title: &title})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostRepositoryCreateDefaultsToDraft(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = 11
			return nil
		}}
	}}
	id, err := NewPostRepository(exec).Create(context.Background(), domain.PostDraft{Title: "T", Content: "<p>x</p>"})
	if err != nil || id != 11 {
		t.Fatalf("Create = %d, %v", id, err)
	}
	if exec.calls[0].args[3] != "draft" {
		t.Fatalf("status arg = %v", exec.calls[0].args[3])
	}
}

func TestPostRepositoryMetaUnset(t *testing.T) {
	v, err := NewPostRepository(&stubExecutor{}).Meta(context.Background(), 1, "_thumbnail_id")
	if err != nil || v != "" {
		t.Fatalf("Meta = %q, %v", v, err)
	}
}

type memFiles struct {
	written map[string][]byte
	deleted []string
}

func (m *memFiles) Write(ctx context.Context, key string, data []byte) (string, error) {
	if m.written == nil {
		m.written = map[string][]byte{}
	}
	m.written[key] = data
	return key, nil
}

func (m *memFiles) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memFiles) URL(key string) string { return "https://site.test/" + key }

func TestMediaRepositoryStoreBytes(t *testing.T) {
	files := &memFiles{}
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = 5
			return nil
		}}
	}}
	repo := NewMediaRepository(exec, files)
	repo.now = func() time.Time { return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) }

	id, err := repo.StoreBytes(context.Background(), domain.MediaFile{Name: "a.png", MIME: "image/png", Data: []byte("png")}, 12)
	if err != nil || id != 5 {
		t.Fatalf("StoreBytes = %d, %v", id, err)
	}
	key := exec.calls[0].args[1].(string)
	if !strings.HasPrefix(key, "media/2024/03/") || !strings.HasSuffix(key, "-a.png") {
		t.Fatalf("key = %q", key)
	}
	if _, ok := files.written[key]; !ok {
		t.Fatalf("file %q not written", key)
	}
	if exec.calls[0].args[0] != int64(12) || exec.calls[0].args[4] != int64(3) {
		t.Fatalf("args = %v", exec.calls[0].args)
	}
}

func TestMediaRepositoryStoreBytesCleansUpOnInsertFailure(t *testing.T) {
	files := &memFiles{}
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error { return errors.New("db down") }}
	}}
	_, err := NewMediaRepository(exec, files).StoreBytes(context.Background(), domain.MediaFile{Name: "a.png", Data: []byte("x")}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(files.deleted) != 1 {
		t.Fatalf("deleted = %v, want one key", files.deleted)
	}
}

func TestMediaRepositoryURL(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*string) = "media/2024/03/x-a.png"
			return nil
		}}
	}}
	u, err := NewMediaRepository(exec, &memFiles{}).URL(context.Background(), 5, "full")
	if err != nil || u != "https://site.test/media/2024/03/x-a.png" {
		t.Fatalf("URL = %q, %v", u, err)
	}
}

func TestJobLockerReleasesWhenHeldElsewhere(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*bool) = false
			return nil
		}}
	}}
	released := 0
	locker := &JobLockerPG{
		acquire: func(ctx context.Context) (infra.SQLExecutor, func(), error) {
			return exec, func() { released++ }, nil
		},
		logger: infra.LoggerOrDiscard(nil),
	}
	unlock, ok, err := locker.TryLock(context.Background(), 3)
	if err != nil || ok || unlock != nil {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
}

func TestJobLockerUnlock(t *testing.T) {
	exec := &stubExecutor{row: func(query string, args []any) pgx.Row {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		}}
	}}
	released := 0
	locker := &JobLockerPG{
		acquire: func(ctx context.Context) (infra.SQLExecutor, func(), error) {
			return exec, func() { released++ }, nil
		},
		logger: infra.LoggerOrDiscard(nil),
	}
	unlock, ok, err := locker.TryLock(context.Background(), 3)
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	if released != 0 {
		t.Fatal("connection released while lock held")
	}
	unlock()
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	if exec.calls[1].query != sqlinline.QReleaseJobLock {
		t.Fatal("expected unlock query")
	}
}

func TestMigrateRunsSchema(t *testing.T) {
	exec := &stubExecutor{}
	if err := Migrate(context.Background(), exec); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0].query != sqlinline.QCreateSchema {
		t.Fatalf("calls = %d, want the schema statement", len(exec.calls))
	}

	exec = &stubExecutor{execErr: errors.New("boom")}
	if err := Migrate(context.Background(), exec); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestJobRepositoryPurge(t *testing.T) {
	exec := &stubExecutor{execTags: []string{"DELETE 3"}}
	n, err := NewJobRepository(exec).Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged = %d, want 3", n)
	}
}
