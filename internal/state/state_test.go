package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eleven-am/perimeter/internal/domain"
)

func TestNext(t *testing.T) {
	first := Next("emit", "run-1", nil)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, StatusPartial, first.Status)
	assert.NotNil(t, first.Resources)

	first.Resources["sg-edge"] = Record{Kind: domain.KindSecurityGroup, PhysicalID: "sg-1", Attributes: map[string]string{"vpc": "vpc-1"}}
	first.Outputs.InstanceID = "i-1"

	second := Next("emit", "run-2", first)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "run-2", second.RunID)
	assert.Equal(t, "i-1", second.Outputs.InstanceID)
	assert.Equal(t, "sg-1", second.Resources["sg-edge"].PhysicalID)

	second.Resources["sg-edge"].Attributes["vpc"] = "changed"
	assert.Equal(t, "vpc-1", first.Resources["sg-edge"].Attr("vpc"), "attributes must not alias")
}

func TestSnapshot_Clone(t *testing.T) {
	s := Next("emit", "run-1", nil)
	s.Resources["db"] = Record{Kind: domain.KindDBInstance, PhysicalID: "emit-db"}
	c := s.Clone()
	delete(c.Resources, "db")
	assert.Contains(t, s.Resources, "db")
}
