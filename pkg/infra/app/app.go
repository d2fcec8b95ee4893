// Package app provides application bootstrapping with Cobra, Viper, and Pflag.
//
// Configuration precedence, highest first:
//
//	command line flags > DOCQA_* environment variables > config file > defaults
//
// Usage:
//
//	app := app.NewApp(
//	    app.WithName("docqa"),
//	    app.WithDescription("Document question answering service"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(run),
//	)
//	app.Run()
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	options "github.com/kart-io/docqa/pkg/app"
	"github.com/kart-io/docqa/pkg/app/cliflag"
)

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     options.CliOptions
	runFunc     RunFunc
	cmd         *cobra.Command
	viper       *viper.Viper
	noVersion   bool
	noConfig    bool
	noDotEnv    bool
}

// RunFunc is the application's run function.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) {
		a.shortDesc = desc
	}
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the CLI options.
func WithOptions(opts options.CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithNoVersion disables version flag.
func WithNoVersion() Option {
	return func(a *App) {
		a.noVersion = true
	}
}

// WithNoConfig disables config file loading.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithNoDotEnv disables loading of ./.env.
func WithNoDotEnv() Option {
	return func(a *App) {
		a.noDotEnv = true
	}
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{
		name:  filepath.Base(os.Args[0]),
		viper: viper.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.buildCommand()
	return a
}

// buildCommand creates the cobra command.
func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:          a.name,
		Short:        a.shortDesc,
		Long:         a.description,
		RunE:         a.runCommand,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	a.addGlobalFlags(cmd)

	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}

		cmd.SetUsageFunc(func(c *cobra.Command) error {
			fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s\n", c.UseLine())
			cliflag.PrintSections(c.OutOrStderr(), fss, 0)
			return nil
		})
		cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "%s\n\nUsage:\n  %s\n", c.Long, c.UseLine())
			cliflag.PrintSections(c.OutOrStdout(), fss, 0)
		})
	}

	a.cmd = cmd
}

// addGlobalFlags adds global flags to the command.
func (a *App) addGlobalFlags(cmd *cobra.Command) {
	if !a.noConfig {
		cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	}

	if !a.noVersion {
		version.AddFlags(cmd.PersistentFlags())
	}
}

// runCommand is the main run function for the command.
func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if !a.noDotEnv {
		// .env 不存在时忽略
		_ = godotenv.Load()
	}

	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc != nil {
		return a.runFunc()
	}

	return nil
}

// envPrefix returns the environment variable prefix, e.g. DOCQA.
func (a *App) envPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
}

// loadConfig loads configuration from file, environment, and flags.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper
	configFile, _ := cmd.Flags().GetString("config")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+a.name))
		v.AddConfigPath("/etc/" + a.name)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	expandEnvVars(v)

	v.SetEnvPrefix(a.envPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// 记录显式设置的 flag，反序列化配置后重新应用以保证优先级
	changedFlags := make(map[string]string)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changedFlags[f.Name] = f.Value.String()
		}
	})

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(cmd.Flags(), a.envPrefix(), changedFlags); err != nil {
		return err
	}

	for name, val := range changedFlags {
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}

	return nil
}

// applyEnv sets every flag that was not given on the command line from its
// environment variable, e.g. chat.api-key <- DOCQA_CHAT_API_KEY.
func applyEnv(fs *pflag.FlagSet, prefix string, changed map[string]string) error {
	replacer := strings.NewReplacer(".", "_", "-", "_")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if _, ok := changed[f.Name]; ok {
			return
		}
		key := prefix + "_" + strings.ToUpper(replacer.Replace(f.Name))
		if val, ok := os.LookupEnv(key); ok {
			if setErr := fs.Set(f.Name, val); setErr != nil {
				err = fmt.Errorf("invalid value for %s: %w", key, setErr)
			}
		}
	})
	return err
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR} and $VAR style environment variables in config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(strVal, func(match string) string {
			var varName string
			if strings.HasPrefix(match, "${") {
				varName = match[2 : len(match)-1]
			} else {
				varName = match[1:]
			}
			if envVal := os.Getenv(varName); envVal != "" {
				return envVal
			}
			return match // 保留原样，如果环境变量不存在
		})
		if expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// Run executes the application.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
