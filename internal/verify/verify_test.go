package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/nntp"
	"github.com/pior/nntp/internal/testutils"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeServer answers STAT from a table without a network.
type fakeServer struct {
	addr   string
	exists map[string]bool
	fail   map[string]error
	calls  atomic.Int32
}

func (s *fakeServer) Addr() string { return s.addr }

func (s *fakeServer) Stat(ctx context.Context, id string) (*nntp.Request, error) {
	s.calls.Add(1)
	if err := s.fail[id]; err != nil {
		return nil, err
	}

	req := nntp.NewRequest("STAT", id)
	if s.exists[id] {
		req.Code, req.Message = 223, "0 "+id
	} else {
		req.Code, req.Message = 430, "No Such Article"
	}
	return req, nil
}

func TestCheckBuckets(t *testing.T) {
	srv := &fakeServer{
		addr:   "a:119",
		exists: map[string]bool{"<1@x>": true, "<3@x>": true},
		fail:   map[string]error{"<4@x>": nntp.ErrConnectionClosed},
	}

	var progress atomic.Int32
	checker := New([]Server{srv}, Options{
		Concurrency: 2,
		Logger:      quietLogger(),
		Progress:    func(Outcome) { progress.Add(1) },
	})

	report, err := checker.Check(context.Background(), []string{"<1@x>", "<2@x>", "<3@x>", "<1@x>", "<4@x>"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Available)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Unknown)
	assert.Equal(t, 1, report.Duplicates)
	assert.EqualValues(t, 4, progress.Load())
	assert.EqualValues(t, 4, srv.calls.Load())

	var ids []string
	for _, o := range report.Outcomes {
		ids = append(ids, o.ID)
		assert.Equal(t, "a:119", o.Server)
	}
	assert.Equal(t, []string{"<1@x>", "<2@x>", "<3@x>", "<4@x>"}, ids)

	assert.Equal(t, Available, report.Outcomes[0].Result)
	assert.Equal(t, 223, report.Outcomes[0].Code)
	assert.Equal(t, Missing, report.Outcomes[1].Result)
	assert.Equal(t, Unknown, report.Outcomes[3].Result)
	assert.ErrorIs(t, report.Outcomes[3].Err, nntp.ErrConnectionClosed)
}

func TestCheckSpreadsOverServers(t *testing.T) {
	servers := []*fakeServer{{addr: "a:119"}, {addr: "b:119"}, {addr: "c:119"}}
	list := make([]Server, len(servers))
	for i, s := range servers {
		list[i] = s
	}

	var ids []string
	for i := 0; i < 300; i++ {
		ids = append(ids, fmt.Sprintf("<%d@x>", i))
	}

	report, err := New(list, Options{Logger: quietLogger()}).Check(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 300, report.Missing)

	for _, s := range servers {
		assert.Greater(t, s.calls.Load(), int32(50), s.addr)
	}

	// The same id always goes to the same server.
	for _, o := range report.Outcomes {
		assert.Equal(t, list[JumpSelector(o.ID, 3)].Addr(), o.Server)
	}
}

func TestCheckNoServers(t *testing.T) {
	_, err := New(nil, Options{}).Check(context.Background(), []string{"<1@x>"})
	require.ErrorIs(t, err, ErrNoServers)
}

func TestCheckCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	srv := &fakeServer{addr: "a:119"}
	checker := New([]Server{srv}, Options{
		Concurrency: 1,
		Logger:      quietLogger(),
		Progress:    func(Outcome) { once.Do(cancel) },
	})

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("<%d@x>", i)
	}

	report, err := checker.Check(ctx, ids)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Less(t, len(report.Outcomes), 100)
}

func TestCheckAgainstPool(t *testing.T) {
	srv := testutils.NewServer(t, testutils.Serve("200 hello", testutils.StatResponder(map[string]bool{"<1@x>": true})))

	r, err := nntp.NewReactor(quietLogger())
	require.NoError(t, err)
	loop := r.Start()
	defer func() {
		require.NoError(t, loop.Stop())
		require.NoError(t, r.Close())
	}()

	pool, err := nntp.NewPool(r, nntp.PoolConfig{
		Config:  nntp.Config{Host: srv.Host, Port: srv.Port, Logger: quietLogger()},
		MaxSize: 2,
	})
	require.NoError(t, err)
	defer pool.Close()

	report, err := New([]Server{pool}, Options{Logger: quietLogger()}).Check(context.Background(), []string{"<1@x>", "<2@x>"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Available)
	assert.Equal(t, 1, report.Missing)
}

func TestReadIDs(t *testing.T) {
	input := strings.Join([]string{
		"# exported ids",
		"<1@x>",
		"",
		"  2@x  ",
		"<3@x",
	}, "\n")

	ids, err := ReadIDs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"<1@x>", "<2@x>", "<3@x>"}, ids)

	_, err = ReadIDs(strings.NewReader("<1@x> extra\n"))
	require.Error(t, err)
}

func TestDedupe(t *testing.T) {
	ids, dropped := Dedupe([]string{"<a>", "<b>", "<a>", "<c>", "<b>"})
	assert.Equal(t, []string{"<a>", "<b>", "<c>"}, ids)
	assert.Equal(t, 2, dropped)
}

func TestJumpSelector(t *testing.T) {
	assert.Zero(t, JumpSelector("<1@x>", 0))
	assert.Zero(t, JumpSelector("<1@x>", 1))

	moved := 0
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("<%d@x>", i)
		n := JumpSelector(id, 4)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 4)
		if JumpSelector(id, 5) != n {
			moved++
		}
	}
	// About a fifth of the ids move to the new server.
	assert.Less(t, moved, 300)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "available", Available.String())
	assert.Equal(t, "missing", Missing.String())
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "unknown", Result(9).String())
}

func TestErrorsStayPerID(t *testing.T) {
	boom := errors.New("boom")
	srv := &fakeServer{addr: "a:119", fail: map[string]error{"<1@x>": boom}}

	report, err := New([]Server{srv}, Options{Logger: quietLogger()}).Check(context.Background(), []string{"<1@x>", "<2@x>"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unknown)
	assert.Equal(t, 1, report.Missing)
}
