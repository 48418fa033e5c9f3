package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/reconcile"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

var outputs = perimeter.Outputs{
	LoadBalancerDNS:  "emit-alb-1000000.us-east-1.elb.amazonaws.com",
	InstanceID:       "i-0000000000000001",
	DatabaseEndpoint: "emit-db.abcdef012345.us-east-1.rds.amazonaws.com",
}

func TestRender_Formats(t *testing.T) {
	text := func(w io.Writer) error {
		printOutputs(w, outputs)
		return nil
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, "json", outputs, text))
	assert.Contains(t, buf.String(), `"load_balancer_dns": "emit-alb-1000000.us-east-1.elb.amazonaws.com"`)

	buf.Reset()
	require.NoError(t, render(&buf, "yaml", outputs, text))
	assert.Contains(t, buf.String(), "instance_id: i-0000000000000001\n")

	buf.Reset()
	require.NoError(t, render(&buf, "text", outputs, text))
	assert.Contains(t, buf.String(), "database_endpoint = emit-db.abcdef012345.us-east-1.rds.amazonaws.com\n")
}

func TestPrintResult(t *testing.T) {
	res := &perimeter.Result{
		DryRun: true,
		Actions: []reconcile.Change{
			{Resource: "vpc", Kind: domain.KindVPC, Action: reconcile.ActionNoop, PhysicalID: "vpc-1"},
			{Resource: "sg-data", Kind: domain.KindSecurityGroup, Action: reconcile.ActionUpdate, PhysicalID: "sg-3",
				Details: []string{"revoke tcp/5432 from 0.0.0.0/0"}},
			{Resource: "app", Kind: domain.KindInstance, Action: reconcile.ActionReplace, PhysicalID: "i-1"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, res))
	out := buf.String()

	assert.NotContains(t, out, "vpc-1")
	assert.Contains(t, out, "  ~ update sg-data (security-group) sg-3\n      revoke tcp/5432 from 0.0.0.0/0\n")
	assert.Contains(t, out, "-/+ replace app")
	assert.Contains(t, out, "2 of 3 resources to change.")
}
