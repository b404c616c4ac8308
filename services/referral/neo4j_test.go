package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/services/account"
)

type graphMock struct {
	readFn  func(ctx context.Context, cypher string, params map[string]any) (graph.Result, error)
	writes  []map[string]any
	writeFn func(ctx context.Context, cypher string, params map[string]any) (graph.Result, error)
}

func (m *graphMock) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (graph.Result, error) {
	m.writes = append(m.writes, params)
	if m.writeFn != nil {
		return m.writeFn(ctx, cypher, params)
	}
	return graph.Result{}, nil
}

func (m *graphMock) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (graph.Result, error) {
	if m.readFn != nil {
		return m.readFn(ctx, cypher, params)
	}
	return graph.Result{}, nil
}

func (m *graphMock) VerifyConnectivity(context.Context) error { return nil }
func (m *graphMock) Close(context.Context) error              { return nil }

func TestNeo4jSourceWalk(t *testing.T) {
	edges := map[string]any{"d": "u1", "u1": "u2", "u2": nil}
	client := &graphMock{
		readFn: func(_ context.Context, _ string, params map[string]any) (graph.Result, error) {
			id := params["id"].(string)
			ref, ok := edges[id]
			if !ok {
				return graph.Result{}, nil
			}
			return graph.Result{Records: []graph.Record{{"id": id, "code": "c-" + id, "referrer_id": ref}}}, nil
		},
	}

	upline, err := NewWalker(NewNeo4jSource(client)).UplineOf(context.Background(), "d", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids(upline))
	require.Equal(t, "c-u1", upline[0].Code)
	require.False(t, upline[1].HasReferrer())
}

func TestNeo4jSourceMissingAccount(t *testing.T) {
	acc, err := NewNeo4jSource(&graphMock{}).Account(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, acc)
}

func TestNeo4jSourceMirror(t *testing.T) {
	client := &graphMock{}
	src := NewNeo4jSource(client)
	ref := "root"

	require.NoError(t, src.Mirror(context.Background(), account.Account{ID: "root", Code: "r"}))
	require.Len(t, client.writes, 1)
	require.Nil(t, client.writes[0]["referrer_id"])

	require.NoError(t, src.Mirror(context.Background(), account.Account{ID: "leaf", Code: "l", ReferrerID: &ref}))
	require.Len(t, client.writes, 2)
	require.Equal(t, "leaf", client.writes[1]["id"])
	require.Equal(t, "root", client.writes[1]["referrer_id"])
}

func TestNeo4jSourceMirrorFailure(t *testing.T) {
	down := errors.New("connection refused")
	client := &graphMock{
		writeFn: func(context.Context, string, map[string]any) (graph.Result, error) {
			return graph.Result{}, down
		},
	}

	err := NewNeo4jSource(client).Mirror(context.Background(), account.Account{ID: "leaf", Code: "l"})
	require.ErrorIs(t, err, down)
	require.Len(t, client.writes, 1)
}
