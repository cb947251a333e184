package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/apache/ozone-scm/pkg/types"
)

func TestJSONCodecRegisteredUnderJSONName(t *testing.T) {
	c := encoding.GetCodec("json")
	require.NotNil(t, c)
	_, ok := c.(jsonCodec)
	require.True(t, ok, "the codec registered under \"json\" must be this package's jsonCodec")
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	req := &RegisterRequest{
		Node: NodeDetails{NodeID: types.NodeID("dn-1"), Hostname: "h1", IP: "10.0.0.1", Port: 9859},
		PipelineIDs: []types.PipelineID{"p1", "p2"},
	}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var out RegisterRequest
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, req.Node, out.Node)
	require.Equal(t, req.PipelineIDs, out.PipelineIDs)
}

func TestJSONCodecName(t *testing.T) {
	require.Equal(t, "json", jsonCodec{}.Name())
}
