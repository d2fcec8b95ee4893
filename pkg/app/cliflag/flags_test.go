package cliflag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamedFlagSets_Order(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("http").String("http.addr", ":8000", "addr")
	fss.FlagSet("rag").Int("rag.top-k", 4, "k")
	fss.FlagSet("http").Duration("http.read-timeout", 0, "timeout")

	assert.Equal(t, []string{"http", "rag"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["http"].Lookup("http.read-timeout"))

	var buf bytes.Buffer
	PrintSections(&buf, fss, 0)
	assert.Contains(t, buf.String(), "Http flags:")
	assert.Contains(t, buf.String(), "--rag.top-k")
}
