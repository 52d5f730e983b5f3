package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/ledger"
)

func TestDiff(t *testing.T) {
	known := toSet([]string{"1", "2", "3"})
	live := toSet([]string{"2", "3", "4"})

	got := Diff(live, known)
	if diff := cmp.Diff([]string{"4"}, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}

	// Once 4 is known, a second diff against an unchanged source is empty.
	known["4"] = true
	if got := Diff(live, known); len(got) != 0 {
		t.Errorf("second Diff() = %v, want empty", got)
	}
}

func TestDiff_Empty(t *testing.T) {
	if got := Diff(nil, toSet([]string{"1"})); got == nil || len(got) != 0 {
		t.Errorf("Diff(nil, known) = %#v, want empty non-nil slice", got)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	h := newHarness(t)
	h.deps.Source = nil
	if _, err := New(h.deps, h.opts); err == nil {
		t.Error("New() with nil Source error = nil")
	}

	h = newHarness(t)
	h.deps.Publisher = nil
	if _, err := New(h.deps, h.opts); err == nil {
		t.Error("New() with nil Publisher error = nil")
	}
	h.opts.DryRun = true
	if _, err := New(h.deps, h.opts); err != nil {
		t.Errorf("New() dry run without Publisher error = %v", err)
	}
}

func TestRun_PublishesOnlyAllowed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.src.authors["A1"] = []string{"P1", "P2", "P3"}
	h.src.addPub("P1", "A1", "200")        // deny
	h.src.addPub("P2", "A1", "200", "100") // allow wins
	h.src.addPub("P3", "Z9", "100")        // no observed author

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff([]string{"P1", "P2", "P3"}, report.New); diff != "" {
		t.Errorf("New mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"P2"}, report.Allowed); diff != "" {
		t.Errorf("Allowed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"P1"}, report.Denied); diff != "" {
		t.Errorf("Denied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"P3"}, report.Undecided); diff != "" {
		t.Errorf("Undecided mismatch (-want +got):\n%s", diff)
	}

	if len(report.Published) != 1 {
		t.Fatalf("Published = %+v, want one entry", report.Published)
	}
	published := report.Published[0]
	if published.ExternalID != "P2" || published.InternalID != 1 {
		t.Errorf("Published[0] = %+v", published)
	}
	post := h.pub.posts[published.PostID]
	if diff := cmp.Diff([]string{"x", "y"}, post.Tags); diff != "" {
		t.Errorf("post tags mismatch (-want +got):\n%s", diff)
	}

	entry, err := h.ledger.References().GetByExternalID(ctx, "P2")
	if err != nil {
		t.Fatalf("ledger lookup error = %v", err)
	}
	if entry.PostID != published.PostID || entry.InternalID != 1 {
		t.Errorf("ledger entry = %+v", entry)
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.opts.RefreshBatch = 0
	h.src.authors["A1"] = []string{"P1"}
	h.src.addPub("P1", "A1", "100")

	e := h.engine(t)
	if _, err := e.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(report.New) != 0 {
		t.Errorf("second Run() New = %v, want empty", report.New)
	}
	if h.pub.postCount() != 1 {
		t.Errorf("posts = %d, want 1", h.pub.postCount())
	}
	if h.src.pubCalls["P1"] != 1 {
		t.Errorf("P1 fetched %d times, want 1", h.src.pubCalls["P1"])
	}
}

func TestRun_KnownButNotLiveIsKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	refs := h.ledger.References()
	for i, id := range []string{"1", "2", "3"} {
		_ = refs.Upsert(ctx, ledger.ReferenceEntry{InternalID: int64(i + 1), PostID: int64(i + 1), ExternalID: id, CommentsLastRefreshed: testNow})
	}
	h.src.authors["A1"] = []string{"2", "3", "4"}
	h.src.addPub("4", "A1", "100")

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"4"}, report.New); diff != "" {
		t.Errorf("New mismatch (-want +got):\n%s", diff)
	}
	if _, err := refs.GetByExternalID(ctx, "1"); err != nil {
		t.Errorf("entry 1 was removed: %v", err)
	}
	if h.src.pubCalls["1"] != 0 {
		t.Errorf("publication 1 was revisited")
	}
}

func TestRun_PublishFailureContinues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.src.authors["A1"] = []string{"P1", "P2"}
	h.src.addPub("P1", "A1", "100")
	h.src.addPub("P2", "A1", "100")
	h.pub.postErrs["P1"] = transientErr()

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Published) != 1 || report.Published[0].ExternalID != "P2" {
		t.Errorf("Published = %+v, want only P2", report.Published)
	}
	if len(report.Failures) != 1 || report.Failures[0].ID != "P1" || report.Failures[0].Phase != PhasePublishNew {
		t.Errorf("Failures = %+v", report.Failures)
	}

	unused, _ := h.idStore.Unused(ctx)
	if diff := cmp.Diff([]int64{1}, unused); diff != "" {
		t.Errorf("released ids mismatch (-want +got):\n%s", diff)
	}
	if _, err := h.ledger.References().GetByExternalID(ctx, "P1"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("failed publication recorded in ledger: %v", err)
	}
}

func TestRun_FetchFailuresAreSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.src.authors["A1"] = []string{"P1", "P2"}
	h.src.addPub("P2", "A1", "100")
	// P1 is listed but its record cannot be fetched.

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Published) != 1 || report.Published[0].ExternalID != "P2" {
		t.Errorf("Published = %+v", report.Published)
	}
	if len(report.Failures) != 1 || report.Failures[0].Phase != PhaseClassify {
		t.Errorf("Failures = %+v", report.Failures)
	}
}

func TestRun_AuthorListingFailureIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.src.authorErrs["A1"] = errors.New("quota exceeded")

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Live != 0 {
		t.Errorf("Live = %d, want 0", report.Live)
	}
	if len(report.Failures) != 1 || report.Failures[0].ID != "A1" || report.Failures[0].Phase != PhaseFetchLive {
		t.Errorf("Failures = %+v", report.Failures)
	}
}

func TestRun_UnauthorizedAborts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.src.authors["A1"] = []string{"P1", "P2"}
	h.src.addPub("P1", "A1", "100")
	h.src.addPub("P2", "A1", "100")
	h.pub.postErrs["P1"] = &cms.Error{Kind: cms.ErrUnauthorized, StatusCode: 401}

	_, err := h.engine(t).Run(ctx)
	if !cms.IsUnauthorized(err) {
		t.Fatalf("Run() error = %v, want unauthorized", err)
	}
	if h.pub.postCount() != 0 {
		t.Errorf("posts = %d, want 0 after abort", h.pub.postCount())
	}
}

func TestRun_LedgerWriteFailureAborts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	flaky := &flakyRefs{References: h.ledger.References(), failures: -1}
	h.deps.References = flaky
	h.src.authors["A1"] = []string{"P1", "P2"}
	h.src.addPub("P1", "A1", "100")
	h.src.addPub("P2", "A1", "100")

	_, err := h.engine(t).Run(ctx)
	if !errors.Is(err, ErrLedgerWrite) {
		t.Fatalf("Run() error = %v, want ErrLedgerWrite", err)
	}
	if flaky.attempts != h.opts.LedgerRetries+1 {
		t.Errorf("upsert attempts = %d, want %d", flaky.attempts, h.opts.LedgerRetries+1)
	}
	if h.pub.postCount() != 1 {
		t.Errorf("posts = %d, want 1 (cycle must stop after the unrecorded post)", h.pub.postCount())
	}
}

func TestRun_LedgerWriteRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.opts.RefreshBatch = -1
	flaky := &flakyRefs{References: h.ledger.References(), failures: 2}
	h.deps.References = flaky
	h.src.authors["A1"] = []string{"P1"}
	h.src.addPub("P1", "A1", "100")

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Published) != 1 {
		t.Errorf("Published = %+v", report.Published)
	}
	if flaky.attempts != 3 {
		t.Errorf("upsert attempts = %d, want 3", flaky.attempts)
	}
}

func TestRun_DryRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.opts.DryRun = true
	h.deps.Publisher = nil
	h.deps.IDs = nil
	h.src.authors["A1"] = []string{"P1"}
	h.src.addPub("P1", "A1", "100")

	report, err := h.engine(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.DryRun || len(report.Allowed) != 1 || len(report.Published) != 0 {
		t.Errorf("report = %+v", report)
	}
	if counter, _ := h.idStore.LoadCounter(ctx); counter != 0 {
		t.Errorf("allocator counter = %d, want 0", counter)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	h := newHarness(t)
	h.src.authors["A1"] = []string{"P1"}
	h.src.addPub("P1", "A1", "100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.engine(t).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if h.pub.postCount() != 0 {
		t.Error("posted after cancellation")
	}
}

func TestRun_ReportTimes(t *testing.T) {
	h := newHarness(t)
	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.StartedAt.Equal(testNow) || !report.FinishedAt.Equal(testNow) {
		t.Errorf("times = %v, %v", report.StartedAt, report.FinishedAt)
	}
	if report.CycleID == "" {
		t.Error("CycleID is empty")
	}
	if report.New == nil {
		t.Error("New is nil, want empty slice")
	}
}
