package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadBalancerURL(t *testing.T) {
	assert.Equal(t, "http://emit-alb-1000000.us-east-1.elb.amazonaws.com/health",
		loadBalancerURL("emit-alb-1000000.us-east-1.elb.amazonaws.com", 80, "/health"))
	assert.Equal(t, "http://lb.example:8080/status",
		loadBalancerURL("lb.example", 8080, "/status"))
}
