package conversation_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/ishe/pkg/conversation"
	"github.com/haivivi/ishe/pkg/embed"
	"github.com/haivivi/ishe/pkg/kv"
	"github.com/haivivi/ishe/pkg/vecstore"
)

type opener func(t *testing.T) conversation.Store

func stores() map[string]opener {
	m := map[string]opener{
		"kv-memory": func(t *testing.T) conversation.Store {
			s, err := conversation.OpenKV(context.Background(), kv.NewMemory(), vecstore.NewMemory(), nil)
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"kv-badger": func(t *testing.T) conversation.Store {
			db, err := kv.OpenBadger(kv.BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatal(err)
			}
			s, err := conversation.OpenKV(context.Background(), db, vecstore.NewMemory(), nil)
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"sqlite": func(t *testing.T) conversation.Store {
			s, err := conversation.OpenSQLite(context.Background(), ":memory:")
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
	if dsn := os.Getenv("ISHE_TEST_POSTGRES_DSN"); dsn != "" {
		m["postgres"] = func(t *testing.T) conversation.Store {
			s, err := conversation.OpenPostgres(context.Background(), dsn, embed.DefaultDimension)
			if err != nil {
				t.Fatal(err)
			}
			return s
		}
	}
	return m
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T, open opener) *conversation.Service {
	t.Helper()
	clock := &stepClock{t: time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)}
	svc := conversation.NewService(open(t), embed.NewHash(embed.DefaultDimension), conversation.WithClock(clock.now))
	t.Cleanup(func() { svc.Close() })
	return svc
}

// uniqueUser keeps runs against a shared postgres database apart.
func uniqueUser(t *testing.T, name string) string {
	return name + "-" + strings.ReplaceAll(t.Name(), "/", "-") + "-" + time.Now().Format("150405.000000")
}

func exchange(respID, user, assistant string) (map[string]any, map[string]any) {
	return map[string]any{
			conversation.KeyType:       conversation.TypeUserInput,
			conversation.KeyResponseID: respID,
		}, map[string]any{
			conversation.KeyType:       conversation.TypeAssistantResponse,
			conversation.KeyResponseID: respID,
			conversation.KeyUserInput:  user,
		}
}

func TestStores(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("Dedup", func(t *testing.T) { testDedup(t, open) })
			t.Run("History", func(t *testing.T) { testHistory(t, open) })
			t.Run("Search", func(t *testing.T) { testSearch(t, open) })
			t.Run("EmptyText", func(t *testing.T) { testEmptyText(t, open) })
		})
	}
}

func testDedup(t *testing.T, open opener) {
	ctx := context.Background()
	svc := newService(t, open)
	alice, bob := uniqueUser(t, "alice"), uniqueUser(t, "bob")
	_, md := exchange("resp_1", "selam", "merhaba")

	if _, err := svc.Add(ctx, alice, "merhaba", md); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Add(ctx, alice, "merhaba tekrar", md)
	if !errors.Is(err, conversation.ErrDuplicate) {
		t.Fatalf("second insert err = %v, want ErrDuplicate", err)
	}
	// Another user may reuse the response id.
	if _, err := svc.Add(ctx, bob, "merhaba", md); err != nil {
		t.Fatalf("other user: %v", err)
	}
	// Records without a response id are never deduplicated.
	for range 2 {
		if _, err := svc.Add(ctx, alice, "serbest not", nil); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := svc.ByUser(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("alice has %d records, want 3", len(recs))
	}
	if recs[0].Text != "merhaba" {
		t.Errorf("first record = %q", recs[0].Text)
	}
}

func testHistory(t *testing.T, open opener) {
	ctx := context.Background()
	svc := newService(t, open)
	user := uniqueUser(t, "u")
	turns := []struct{ id, user, assistant string }{
		{"resp_a", "nasılsın", "iyiyim"},
		{"resp_b", "hava nasıl", "güneşli"},
		{"resp_c", "teşekkürler", "rica ederim"},
	}
	for _, tt := range turns {
		umd, amd := exchange(tt.id, tt.user, tt.assistant)
		if _, err := svc.Add(ctx, user, tt.user, umd); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Add(ctx, user, tt.assistant, amd); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.History(ctx, user, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("history = %+v, want the 2 newest exchanges", got)
	}
	if got[0].UserInput != "hava nasıl" || got[0].AssistantResponse != "güneşli" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].AssistantResponse != "rica ederim" {
		t.Errorf("got[1] = %+v", got[1])
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("history not chronological: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}

	pc, err := svc.Context(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	want := "User: nasılsın\nAssistant: iyiyim\n\nUser: hava nasıl\nAssistant: güneşli\n\nUser: teşekkürler\nAssistant: rica ederim"
	if pc != want {
		t.Errorf("context =\n%s\nwant\n%s", pc, want)
	}
}

func testSearch(t *testing.T, open opener) {
	ctx := context.Background()
	svc := newService(t, open)
	alice, bob := uniqueUser(t, "alice"), uniqueUser(t, "bob")
	for _, text := range []string{"kedim çok tatlı", "yarın toplantım var", "en sevdiğim yemek mantı"} {
		if _, err := svc.Add(ctx, alice, text, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Add(ctx, bob, "kedim çok tatlı", nil); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Search(ctx, alice, "kedim çok tatlı", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Text != "kedim çok tatlı" || got[0].UserID != alice {
		t.Errorf("top match = %+v", got[0])
	}
	if got[0].Similarity < 0.99 {
		t.Errorf("identical text similarity = %v", got[0].Similarity)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Errorf("not sorted: %v < %v", got[0].Similarity, got[1].Similarity)
	}
}

func testEmptyText(t *testing.T, open opener) {
	ctx := context.Background()
	svc := newService(t, open)
	user := uniqueUser(t, "u")
	if _, err := svc.Add(ctx, user, "  \n", nil); !errors.Is(err, conversation.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	// Text with no embeddable tokens is stored but not searchable.
	if _, err := svc.Add(ctx, user, "...", nil); err != nil {
		t.Fatal(err)
	}
	recs, err := svc.ByUser(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
}

func TestKVReloadsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := embed.NewHash(64)

	db, err := kv.OpenBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	s, err := conversation.OpenKV(ctx, db, vecstore.NewMemory(), nil)
	if err != nil {
		t.Fatal(err)
	}
	svc := conversation.NewService(s, embedder)
	if _, err := svc.Add(ctx, "u1", "istanbul boğazı", nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = kv.OpenBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	idx := vecstore.NewMemory()
	s, err = conversation.OpenKV(ctx, db, idx, nil)
	if err != nil {
		t.Fatal(err)
	}
	svc = conversation.NewService(s, embedder)
	defer svc.Close()
	if idx.Len() != 1 {
		t.Fatalf("index has %d vectors after reload", idx.Len())
	}
	got, err := svc.Search(ctx, "u1", "istanbul boğazı", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "istanbul boğazı" {
		t.Errorf("search after reload = %+v", got)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	now := time.Date(2025, 6, 3, 9, 30, 0, 123e6, time.FixedZone("TRT", 3*3600))
	got := conversation.NormalizeMetadata(map[string]any{
		"type":   "user_input",
		"count":  float64(3),
		"ok":     true,
		"nested": map[string]any{"a": float64(1)},
		"list":   []any{"x"},
		"gone":   nil,
	}, now)
	want := map[string]string{
		"type":      "user_input",
		"count":     "3",
		"ok":        "true",
		"nested":    `{"a":1}`,
		"list":      `["x"]`,
		"timestamp": "2025-06-03T06:30:00.123Z",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestGroupHistory(t *testing.T) {
	at := func(s int) time.Time { return time.Date(2025, 1, 1, 0, 0, s, 0, time.UTC) }
	rec := func(text, typ, resp, input string, ts time.Time) conversation.Record {
		md := map[string]string{conversation.KeyType: typ, conversation.KeyResponseID: resp}
		if input != "" {
			md[conversation.KeyUserInput] = input
		}
		return conversation.Record{Text: text, Metadata: md, Timestamp: ts}
	}
	got := conversation.GroupHistory([]conversation.Record{
		rec("late answer", conversation.TypeAssistantResponse, "r2", "", at(5)),
		rec("q1", conversation.TypeUserInput, "r1", "", at(1)),
		rec("a1", conversation.TypeAssistantResponse, "r1", "", at(2)),
		rec("q2", conversation.TypeUserInput, "r2", "", at(4)),
		rec("orphan question", conversation.TypeUserInput, "r3", "", at(6)),
		{Text: "no response id", Timestamp: at(0)},
	})
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].UserInput != "q1" || got[0].AssistantResponse != "a1" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].UserInput != "q2" || got[1].AssistantResponse != "late answer" || !got[1].Timestamp.Equal(at(5)) {
		t.Errorf("got[1] = %+v", got[1])
	}

	if s := conversation.FormatContext(got); s != "User: q1\nAssistant: a1\n\nUser: q2\nAssistant: late answer" {
		t.Errorf("FormatContext = %q", s)
	}
	if s := conversation.FormatContext([]conversation.Exchange{{AssistantResponse: "hi"}}); s != "Assistant: hi" {
		t.Errorf("FormatContext without input = %q", s)
	}
}
