package source

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"oip/txguard/internal/ingest"
	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
	"oip/txguard/pkg/lmstfy"
	"oip/txguard/pkg/logger"
)

func TestSequenceMatchesReferenceModel(t *testing.T) {
	s := NewSequence(14, 5, 5000)
	ctx := context.Background()
	for i := 0; i < 14; i++ {
		tx, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if tx.AccountID != i%5 || tx.Amount != int64(i%7)*1000 {
			t.Fatalf("i=%d tx=%+v", i, tx)
		}
		wantLabel := i%7 == 6
		if tx.IsLabeledAnomalous() != wantLabel {
			t.Fatalf("i=%d label=%s", i, tx.Classification)
		}
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestSimulatorIsSeeded(t *testing.T) {
	a := NewSimulator(200, 10, 42, 0.2)
	b := NewSimulator(200, 10, 42, 0.2)
	ctx := context.Background()

	anomalous := 0
	for i := 0; i < 200; i++ {
		x, err := a.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		y, _ := b.Next(ctx)
		if x.AccountID != y.AccountID || x.Amount != y.Amount || x.Classification != y.Classification {
			t.Fatalf("i=%d diverged: %+v vs %+v", i, x, y)
		}
		if err := x.Validate(10); err != nil {
			t.Fatalf("invalid simulated tx: %v", err)
		}
		if x.IsLabeledAnomalous() {
			anomalous++
		} else if x.Amount < normalMinAmount || x.Amount > normalMaxAmount {
			t.Fatalf("normal amount out of range: %d", x.Amount)
		}
	}
	if anomalous == 0 {
		t.Fatal("expected some anomalous transactions at rate 0.2")
	}
	if _, err := a.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestFeedPushAndClose(t *testing.T) {
	f := NewFeed(2)
	ctx := context.Background()
	if err := f.Push(ctx, model.Transaction{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	f.Close()
	f.Close()

	if err := f.Push(ctx, model.Transaction{ID: "b"}); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("want ErrFeedClosed, got %v", err)
	}
	tx, err := f.Next(ctx)
	if err != nil || tx.ID != "a" {
		t.Fatalf("tx=%+v err=%v", tx, err)
	}
	if _, err := f.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestFeedTracksAcceptedAndPending(t *testing.T) {
	f := NewFeed(4)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := f.Push(ctx, model.Transaction{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Next(ctx); err != nil {
		t.Fatal(err)
	}
	f.Close()
	_ = f.Push(ctx, model.Transaction{ID: "late"})

	if f.Accepted() != 3 || f.Pending() != 2 {
		t.Fatalf("accepted=%d pending=%d", f.Accepted(), f.Pending())
	}
	for f.Pending() > 0 {
		if _, err := f.Next(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestFeedNextHonoursContext(t *testing.T) {
	f := NewFeed(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

// fakeConsumer 按顺序返回消息
type fakeConsumer struct {
	msgs  []*lmstfy.Message
	errs  []error
	acked []string
}

func (c *fakeConsumer) Consume(_ string, _, _ time.Duration) (*lmstfy.Message, error) {
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	if len(c.msgs) == 0 {
		return nil, nil
	}
	m := c.msgs[0]
	c.msgs = c.msgs[1:]
	return m, nil
}

func (c *fakeConsumer) Ack(_ string, id string) error {
	c.acked = append(c.acked, id)
	return nil
}

func TestLmstfySourceDecodesAndAcks(t *testing.T) {
	good, _ := ingest.NewTransactionJob(model.Transaction{ID: "t1", AccountID: 1, Amount: 10})
	c := &fakeConsumer{msgs: []*lmstfy.Message{
		{ID: "j1", Data: []byte("{bad")},
		{ID: "j2", Data: good},
	}}
	src := NewLmstfy(LmstfyConfig{QueueName: "q", Accounts: 5}, c, logger.NewNop())

	tx, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tx.ID != "t1" {
		t.Fatalf("tx=%+v", tx)
	}
	if len(c.acked) != 2 || c.acked[0] != "j1" || c.acked[1] != "j2" {
		t.Fatalf("acked=%v", c.acked)
	}
}

func TestLmstfySourceConsumeErrorIsRetryable(t *testing.T) {
	c := &fakeConsumer{errs: []error{errors.New("dial tcp: refused")}}
	src := NewLmstfy(LmstfyConfig{QueueName: "q", Accounts: 5}, c, logger.NewNop())

	_, err := src.Next(context.Background())
	if !errorutil.IsRetryable(err) {
		t.Fatalf("want retryable error, got %v", err)
	}
}

func TestLmstfySourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewLmstfy(LmstfyConfig{QueueName: "q"}, &fakeConsumer{}, logger.NewNop())
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want Canceled, got %v", err)
	}
}
