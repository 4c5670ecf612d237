package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

func TestRegisterAction(t *testing.T) {
	svc := &fakeControlService{}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table", "127.0.0.1:9001")
	require.NoError(t, RegisterCommand().Action(c))
	assert.Equal(t, []string{"127.0.0.1:9001"}, svc.registered)
}

func TestRegisterAction_RequiresURI(t *testing.T) {
	svc := &fakeControlService{}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table")
	require.Error(t, RegisterCommand().Action(c))
}

func TestStatusAction(t *testing.T) {
	svc := &fakeControlService{serverMap: map[uint64]cluster.BackendMeta{
		1: {Uri: "127.0.0.1:9001", Status: cluster.Alive, Shard: cluster.Shard1},
	}}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table")
	require.NoError(t, StatusCommand().Action(c))
}

func TestClusterInitAction_PropagatesError(t *testing.T) {
	svc := &fakeControlService{initErr: ddbserrors.New(ddbserrors.ServerNotAlive, "backend down")}
	addr, closeAll := startTestControlServer(t, svc)
	defer closeAll()

	c := testContext(t, addr, "table")
	require.Error(t, ClusterInitCommand().Action(c))
}
