package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	req := &DispatchRequest{
		Action:  "scheduler:run",
		Account: "111111111111",
		Region:  "us-east-1",
		Service: types.ServiceEC2,
	}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var out DispatchRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, req.Account, out.Account)
	assert.Equal(t, req.Service, out.Service)
	assert.Equal(t, "json", c.Name())
}

func TestDispatchRequestOmitsEmptyInlinedPayload(t *testing.T) {
	req := &DispatchRequest{
		Action:       "scheduler:run",
		Account:      "111",
		Region:       "us-east-1",
		Service:      types.ServiceRDS,
		CurrentDT:    time.Now(),
		DispatchTime: time.Now(),
	}

	data, err := jsonCodec{}.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"schedules"`)
	assert.NotContains(t, string(data), `"periods"`)
}

func TestServiceDescHasFiveMethods(t *testing.T) {
	assert.Equal(t, serviceName, ServiceDesc.ServiceName)
	assert.Len(t, ServiceDesc.Methods, 5)
}
