// Package redis provides Redis connection options.
package redis

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
	"github.com/kart-io/docqa/pkg/utils/json"
)

var _ options.IOptions = (*Options)(nil)

// redactedPassword is the placeholder used when serializing passwords.
const redactedPassword = "[REDACTED]"

// Options defines configuration options for Redis.
type Options struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Password     string        `json:"-" mapstructure:"password"`
	Database     int           `json:"database" mapstructure:"database"`
	MaxRetries   int           `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int           `json:"min-idle-conns" mapstructure:"min-idle-conns"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
}

type optionsForJSON struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	Database     int           `json:"database"`
	MaxRetries   int           `json:"max-retries"`
	PoolSize     int           `json:"pool-size"`
	MinIdleConns int           `json:"min-idle-conns"`
	DialTimeout  time.Duration `json:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout"`
}

func (o *Options) redacted() string {
	if o.Password == "" {
		return ""
	}
	return redactedPassword
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	return json.Marshal(optionsForJSON{
		Host:         o.Host,
		Port:         o.Port,
		Password:     o.redacted(),
		Database:     o.Database,
		MaxRetries:   o.MaxRetries,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	})
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	return fmt.Sprintf("Redis{host=%s, port=%d, password=%s, database=%d}",
		o.Host, o.Port, o.redacted(), o.Database)
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:         "127.0.0.1",
		Port:         6379,
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns host:port.
func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// NewClient creates a go-redis client from the options.
func (o *Options) NewClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         o.Addr(),
		Password:     o.Password,
		DB:           o.Database,
		MaxRetries:   o.MaxRetries,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	})
}

// Complete reads the password from REDIS_PASSWORD when not configured.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("redis.host is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port must be in 1-65535"))
	}
	if o.Database < 0 {
		errs = append(errs, fmt.Errorf("redis.database must not be negative"))
	}
	return errs
}

// AddFlags adds flags for Redis options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Host, p+"redis.host", o.Host, "Redis host")
	fs.IntVar(&o.Port, p+"redis.port", o.Port, "Redis port")
	fs.StringVar(&o.Password, p+"redis.password", o.Password, "Redis password (prefer the REDIS_PASSWORD env var)")
	fs.IntVar(&o.Database, p+"redis.database", o.Database, "Redis database")
	fs.IntVar(&o.MaxRetries, p+"redis.max-retries", o.MaxRetries, "Redis max retries")
	fs.IntVar(&o.PoolSize, p+"redis.pool-size", o.PoolSize, "Redis pool size")
	fs.IntVar(&o.MinIdleConns, p+"redis.min-idle-conns", o.MinIdleConns, "Redis min idle connections")
	fs.DurationVar(&o.DialTimeout, p+"redis.dial-timeout", o.DialTimeout, "Redis dial timeout")
	fs.DurationVar(&o.ReadTimeout, p+"redis.read-timeout", o.ReadTimeout, "Redis read timeout")
	fs.DurationVar(&o.WriteTimeout, p+"redis.write-timeout", o.WriteTimeout, "Redis write timeout")
}
