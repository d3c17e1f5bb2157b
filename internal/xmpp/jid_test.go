package xmpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToJID(t *testing.T) {
	tests := []struct {
		pacs string
		jid  string
	}{
		{"jbloggs", "jbloggs@cdhb"},
		{"jBloggs", "j|bloggs@cdhb"},
		{"JBloggs", "|j|bloggs@cdhb"},
		{"jOBrien2", "j|o|brien2@cdhb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.jid, ToJID(tt.pacs))
	}
}

func TestToPACS(t *testing.T) {
	tests := []struct {
		jid  string
		pacs string
	}{
		{"jbloggs@cdhb", "jbloggs"},
		{"j|bloggs@cdhb", "jBloggs"},
		{"|j|bloggs@cdhb", "JBloggs"},
		{"j|o|brien2@cdhb/spark", "jOBrien2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.pacs, ToPACS(bareJID(tt.jid)))
	}
}

func TestJIDRoundTrip(t *testing.T) {
	for _, pacs := range []string{"jbloggs", "jBloggs", "ABCdef", "x9Y"} {
		assert.Equal(t, pacs, ToPACS(ToJID(pacs)))
	}
}

func TestBareJID(t *testing.T) {
	assert.Equal(t, "j|bloggs@cdhb", bareJID("j|bloggs@cdhb/InteleViewer"))
	assert.Equal(t, "j|bloggs@cdhb", bareJID("j|bloggs@cdhb"))
}
