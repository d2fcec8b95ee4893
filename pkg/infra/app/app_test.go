package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/app/cliflag"
)

type testOptions struct {
	Addr    string        `mapstructure:"addr"`
	TopK    int           `mapstructure:"top-k"`
	Timeout time.Duration `mapstructure:"timeout"`
	Key     string        `mapstructure:"key"`

	completed bool
}

func (o *testOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("test")
	fs.StringVar(&o.Addr, "addr", o.Addr, "addr")
	fs.IntVar(&o.TopK, "top-k", o.TopK, "k")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "timeout")
	fs.StringVar(&o.Key, "key", o.Key, "key")
	return fss
}

func (o *testOptions) Complete() error { o.completed = true; return nil }
func (o *testOptions) Validate() error { return nil }

func TestApp_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "docqa-test.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("addr: \":9000\"\ntop-k: 8\nkey: ${DOCQA_TEST_SECRET}\n"), 0o600))

	t.Setenv("DOCQA_TEST_SECRET", "s3cret")
	t.Setenv("DOCQA_TEST_TIMEOUT", "3s")

	opts := &testOptions{Addr: ":8000", TopK: 4}
	var ran bool
	a := NewApp(
		WithName("docqa-test"),
		WithOptions(opts),
		WithNoVersion(),
		WithNoDotEnv(),
		WithRunFunc(func() error { ran = true; return nil }),
	)

	cmd := a.Command()
	cmd.SetArgs([]string{"--config", cfg, "--top-k", "2"})
	require.NoError(t, cmd.Execute())

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, ":9000", opts.Addr)
	assert.Equal(t, 2, opts.TopK)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, "s3cret", opts.Key)
}

func TestApp_MissingExplicitConfigFails(t *testing.T) {
	a := NewApp(
		WithName("docqa-test"),
		WithOptions(&testOptions{}),
		WithNoVersion(),
		WithNoDotEnv(),
	)
	cmd := a.Command()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}
