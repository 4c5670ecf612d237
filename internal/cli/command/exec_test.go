package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecAction(t *testing.T) {
	svc := &fakeControlService{execResult: `{"resultSet":null,"profile":{}}`}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table", "SELECT 1")
	require.NoError(t, ExecCommand().Action(c))
}

func TestExecAction_RequiresStatement(t *testing.T) {
	svc := &fakeControlService{}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table")
	require.Error(t, ExecCommand().Action(c))
}

func TestArticleAction_Found(t *testing.T) {
	svc := &fakeControlService{articles: map[string]string{"42": "hello world"}}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table", "42")
	require.NoError(t, ArticleCommand().Action(c))
}

func TestArticleAction_NotFound(t *testing.T) {
	svc := &fakeControlService{articles: map[string]string{}}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table", "42")
	require.Error(t, ArticleCommand().Action(c))
}
