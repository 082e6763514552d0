package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/instance-scheduler/pkg/types"
)

func TestGroupTargetsDedupsAndPreservesOrder(t *testing.T) {
	instances := []*types.RegisteredInstance{
		{Account: "111", Region: "us-east-1", Service: types.ServiceEC2, ResourceID: "i-1"},
		{Account: "111", Region: "us-east-1", Service: types.ServiceEC2, ResourceID: "i-2"},
		{Account: "111", Region: "us-east-1", Service: types.ServiceRDS, ResourceID: "db-1"},
		{Account: "222", Region: "us-west-2", Service: types.ServiceAutoScaling, ResourceID: "asg-1"},
	}

	got := groupTargets(instances)

	assert.Equal(t, []target{
		{account: "111", region: "us-east-1", service: types.ServiceEC2},
		{account: "111", region: "us-east-1", service: types.ServiceRDS},
		{account: "222", region: "us-west-2", service: types.ServiceAutoScaling},
	}, got)
}

func TestGroupTargetsEmpty(t *testing.T) {
	assert.Empty(t, groupTargets(nil))
}
