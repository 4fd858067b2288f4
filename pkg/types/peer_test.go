package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributes_Clone(t *testing.T) {
	a := Attributes{AttrID: "p1", AttrName: "board"}
	c := a.Clone()
	c[AttrName] = "changed"

	assert.Equal(t, "board", a[AttrName])
	assert.True(t, Attributes(nil).Clone().Equal(Attributes{}))
}

func TestAttributes_Transient(t *testing.T) {
	a := Attributes{
		AttrID:           "p1",
		AttrHost:         "10.0.0.1",
		AttrDNSName:      "board.lan",
		AttrTransient:    "true",
		"Custom.Unknown": "kept",
	}

	stripped := a.WithoutTransient()
	assert.Equal(t, Attributes{AttrID: "p1", AttrHost: "10.0.0.1", "Custom.Unknown": "kept"}, stripped)

	merged := Attributes{AttrID: "p1", AttrDNSName: "fresh"}.MergeTransient(a)
	assert.Equal(t, "fresh", merged[AttrDNSName])
	assert.Equal(t, "true", merged[AttrTransient])
	assert.NotContains(t, merged, AttrHost)
}

func TestAttributes_Transport(t *testing.T) {
	assert.Equal(t, TransportTCP, Attributes{}.Transport())
	assert.Equal(t, TransportPipe, Attributes{AttrTransportName: "pipe"}.Transport())
	assert.NotNil(t, Attributes{AttrHost: "127.0.0.1"}.HostIP())
	assert.Nil(t, Attributes{AttrHost: "localhost"}.HostIP())
}

func TestOpenFlags(t *testing.T) {
	assert.True(t, FlagNoValueAdd.Normalize().Has(FlagForceNew))
	assert.False(t, OpenFlags(0).Has(FlagForceNew))
	assert.Equal(t, "shared", OpenFlags(0).String())
	assert.Equal(t, "forceNew|noValueAdd", FlagNoValueAdd.String())
	assert.Equal(t, "open", ChannelOpen.String())
}
